package router

import (
	"strings"
	"sync"
	"time"
)

// PatternStats tracks per-fingerprint escalation/downgrade counters (spec
// §3). It is mutated only by Router; everywhere else it is read-only.
type PatternStats struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	CurrentTier          Tier
	LastUpdated          time.Time
}

// statsMap is the single-writer store keyed by fingerprint.
type statsMap struct {
	mu    sync.Mutex
	byKey map[string]*PatternStats
}

func newStatsMap() *statsMap {
	return &statsMap{byKey: make(map[string]*PatternStats)}
}

// Snapshot returns a value copy of the stats for a fingerprint, or the zero
// value (CurrentTier == "") if unseen.
func (m *statsMap) Snapshot(fingerprint string) PatternStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byKey[fingerprint]; ok {
		return *s
	}
	return PatternStats{}
}

// Fingerprint computes a token-set-derived key for a piece of task text:
// lowercase, whitespace-split, deduplicated, sorted tokens joined by '|'.
// Equal token sets always produce equal fingerprints, which is what the
// Jaccard-similarity inheritance rule (spec §4.4) depends on.
func Fingerprint(text string) string {
	set := tokenSet(text)
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sortStrings(tokens)
	return strings.Join(tokens, "|")
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func sortStrings(s []string) {
	// insertion sort is fine: fingerprints are short token lists.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// JaccardSimilarity computes the Jaccard index between the whitespace-split
// token sets of two raw texts.
func JaccardSimilarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

// FingerprintSimilarity computes the Jaccard index between two fingerprint
// keys as produced by Fingerprint (sorted, deduplicated tokens joined by
// '|'). It splits each key back on '|' to recover its token set before
// comparing. JaccardSimilarity would be wrong here: it splits on whitespace,
// so a whole '|'-joined key is treated as a single token and any two
// distinct fingerprints compare as entirely disjoint (similarity 0), which
// is why pattern inheritance (spec §4.4) must go through this function
// instead.
func FingerprintSimilarity(a, b string) float64 {
	return jaccard(fingerprintTokenSet(a), fingerprintTokenSet(b))
}

func fingerprintTokenSet(fingerprint string) map[string]struct{} {
	if fingerprint == "" {
		return map[string]struct{}{}
	}
	parts := strings.Split(fingerprint, "|")
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		set[p] = struct{}{}
	}
	return set
}

func jaccard(setA, setB map[string]struct{}) float64 {
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// InheritanceThreshold is the Jaccard similarity at or above which a new
// fingerprint inherits tier preference from an existing one (spec §4.4).
const InheritanceThreshold = 0.80
