package eventstore

import (
	"context"
	"time"
)

// Store is the append-only event log contract (spec §4.1). Implementations
// must guarantee invariant I3: within one aggregate_id, append order equals
// timestamp order.
type Store interface {
	// Append writes one event atomically. It never blocks on readers.
	Append(ctx context.Context, ev Event) error

	// Replay returns every event for aggregateID in chronological order.
	Replay(ctx context.Context, aggregateID string) ([]Event, error)

	// Query supports the external event-export interface (spec §6):
	// aggregateType and aggregateID may be empty to mean "any"; since, if
	// non-nil, filters to events at or after that time.
	Query(ctx context.Context, aggregateType AggregateType, aggregateID string, since *time.Time) ([]Event, error)

	// Begin opens a Unit-of-Work scoped to one phase. Events appended through
	// the returned UnitOfWork are invisible to Replay/Query until Commit.
	Begin(ctx context.Context) (*UnitOfWork, error)

	// Close releases underlying resources (e.g. the SQLite handle).
	Close() error
}
