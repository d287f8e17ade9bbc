package executor

// FilteredContext is the only state a subagent ever receives: a narrow,
// immutable slice of the parent's world (spec §4.5). A subagent never sees
// the parent's mutable state directly.
type FilteredContext struct {
	SeedSummary    string
	CurrentAC      string
	RecentHistory  []string // last 3 entries, oldest first
	RelevantFacts  map[string]string
}

const recentHistoryWindow = 3

// NewFilteredContext builds a FilteredContext for acID, trimming history to
// the last 3 entries.
func NewFilteredContext(seedSummary, acID string, history []string, facts map[string]string) FilteredContext {
	start := 0
	if len(history) > recentHistoryWindow {
		start = len(history) - recentHistoryWindow
	}
	trimmed := make([]string, len(history)-start)
	copy(trimmed, history[start:])
	return FilteredContext{
		SeedSummary:   seedSummary,
		CurrentAC:     acID,
		RecentHistory: trimmed,
		RelevantFacts: facts,
	}
}
