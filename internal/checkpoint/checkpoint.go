// Package checkpoint implements hash-stamped snapshot/rollback (spec §4.2).
// Checkpoints are taken periodically and at every phase boundary; corruption
// (bad hash or parse failure) triggers rollback to the next older of three
// rotated slots before the lineage is marked FAILED.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"symbiogen/internal/eventstore"
	"symbiogen/internal/logging"
)

// MaxRollback is the hard ceiling on rollback attempts (spec §4.2, §8).
const MaxRollback = 3

// Checkpoint is a hash-stamped snapshot of live state at a phase boundary.
type Checkpoint struct {
	SeedID      string
	Phase       string
	Generation  int
	StateBlob   []byte
	ContentHash string
	Timestamp   time.Time
}

// CorruptionError is returned when a checkpoint's hash does not match its
// blob, or the blob fails to parse (spec §7 kind 4).
type CorruptionError struct {
	Slot   int
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("checkpoint: corruption at slot %d: %s", e.Slot, e.Reason)
}

// newCheckpoint hashes state and stamps the result.
func newCheckpoint(seedID, phase string, generation int, state interface{}) (Checkpoint, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: failed to serialize state: %w", err)
	}
	sum := sha256.Sum256(blob)
	return Checkpoint{
		SeedID: seedID, Phase: phase, Generation: generation,
		StateBlob: blob, ContentHash: hex.EncodeToString(sum[:]), Timestamp: time.Now().UTC(),
	}, nil
}

// Verify recomputes the hash of StateBlob and compares it against
// ContentHash (spec §8 invariant: sha256(serialize(c.state)) == c.content_hash).
func (c Checkpoint) Verify() error {
	sum := sha256.Sum256(c.StateBlob)
	if hex.EncodeToString(sum[:]) != c.ContentHash {
		return &CorruptionError{Reason: "content hash mismatch"}
	}
	return nil
}

// Unmarshal parses StateBlob into out after verifying the hash.
func (c Checkpoint) Unmarshal(out interface{}) error {
	if err := c.Verify(); err != nil {
		return err
	}
	if err := json.Unmarshal(c.StateBlob, out); err != nil {
		return &CorruptionError{Reason: "parse failure: " + err.Error()}
	}
	return nil
}

// Store rotates four slots (current, -1, -2, -3) per seed and
// appends a `persistence.checkpoint.rotated` event for every rotation
// (resolving spec §9's open question in favor of "rotation is an event").
type Store struct {
	events eventstore.Store
	slots  map[string][]Checkpoint // key -> newest-first slots, len <= 4
}

// NewStore creates a checkpoint store backed by the given event log.
func NewStore(events eventstore.Store) *Store {
	return &Store{events: events, slots: make(map[string][]Checkpoint)}
}

func slotKey(seedID string) string { return seedID }

// Save takes a new snapshot, pushes it onto slot 0, and rotates older slots
// down, dropping anything beyond MaxRollback+1 total slots.
func (s *Store) Save(ctx context.Context, seedID, phase string, generation int, state interface{}) (Checkpoint, error) {
	cp, err := newCheckpoint(seedID, phase, generation, state)
	if err != nil {
		return Checkpoint{}, err
	}
	key := slotKey(seedID)
	s.slots[key] = append([]Checkpoint{cp}, s.slots[key]...)
	if len(s.slots[key]) > MaxRollback+1 {
		s.slots[key] = s.slots[key][:MaxRollback+1]
	}

	ev := eventstore.NewEvent(eventstore.AggregateExecution, seedID, "persistence.checkpoint.rotated", map[string]interface{}{
		"phase": phase, "generation": generation, "content_hash": cp.ContentHash,
	})
	if err := s.events.Append(ctx, ev); err != nil {
		return cp, err
	}
	logging.Get(logging.CategoryCheckpoint).Info("checkpoint saved seed=%s phase=%s gen=%d hash=%s", seedID, phase, generation, cp.ContentHash)
	return cp, nil
}

// Load returns the newest valid checkpoint for seedID, rolling back through
// older slots on corruption up to MaxRollback attempts. If all slots are
// corrupt, it returns a CorruptionError and the caller must mark the lineage
// FAILED (spec §4.2).
func (s *Store) Load(ctx context.Context, seedID string) (Checkpoint, int, error) {
	slots := s.slots[slotKey(seedID)]
	if len(slots) == 0 {
		return Checkpoint{}, 0, fmt.Errorf("checkpoint: no checkpoints for seed %s", seedID)
	}

	attempts := 0
	for depth, cp := range slots {
		if depth > MaxRollback {
			break
		}
		attempts++
		if err := cp.Verify(); err != nil {
			logging.Get(logging.CategoryCheckpoint).Warn("checkpoint slot %d corrupt for seed %s: %v", depth, seedID, err)
			if s.events != nil {
				_ = s.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateExecution, seedID,
					"persistence.checkpoint.corruption_detected", map[string]interface{}{"depth": depth}))
			}
			continue
		}
		if depth > 0 {
			_ = s.events.Append(ctx, eventstore.NewEvent(eventstore.AggregateExecution, seedID,
				"persistence.checkpoint.rolled_back", map[string]interface{}{"depth": depth}))
		}
		return cp, depth, nil
	}
	return Checkpoint{}, attempts, &CorruptionError{Slot: attempts - 1, Reason: "all rollback slots exhausted"}
}

// ReplayFrom reconstructs live state by replaying every event for seedID
// that postdates the checkpoint's timestamp (spec §4.2 recovery at startup).
func (s *Store) ReplayFrom(ctx context.Context, seedID string, cp Checkpoint) ([]eventstore.Event, error) {
	ts := cp.Timestamp
	return s.events.Query(ctx, "", seedID, &ts)
}
