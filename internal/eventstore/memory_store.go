package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by short-lived tool
// invocations that do not need durability. It satisfies the same ordering
// and atomicity guarantees as SQLiteStore.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory event log.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, ev Event) error {
	if err := ValidateEventType(ev.EventType); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Replay implements Store.
func (m *MemoryStore) Replay(_ context.Context, aggregateID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	sortByTime(out)
	return out, nil
}

// Query implements Store.
func (m *MemoryStore) Query(_ context.Context, aggType AggregateType, aggregateID string, since *time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if aggType != "" && ev.AggregateType != aggType {
			continue
		}
		if aggregateID != "" && ev.AggregateID != aggregateID {
			continue
		}
		if since != nil && ev.Timestamp.Before(*since) {
			continue
		}
		out = append(out, ev)
	}
	sortByTime(out)
	return out, nil
}

func sortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
}

// Begin implements Store. MemoryStore's UnitOfWork flushes directly into the
// backing slice under the store's own lock.
func (m *MemoryStore) Begin(ctx context.Context) (*UnitOfWork, error) {
	return &UnitOfWork{ctx: ctx, target: m}, nil
}

// commitBatch implements batchCommitter.
func (m *MemoryStore) commitBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		if err := ValidateEventType(ev.EventType); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Close implements Store; MemoryStore holds no external resources.
func (m *MemoryStore) Close() error { return nil }
