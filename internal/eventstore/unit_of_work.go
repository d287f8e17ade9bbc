package eventstore

import (
	"context"
	"fmt"

	"symbiogen/internal/logging"
)

// batchCommitter is implemented by any Store backend that can flush a batch
// of buffered events atomically.
type batchCommitter interface {
	commitBatch(ctx context.Context, events []Event) error
}

// UnitOfWork buffers events for one phase and flushes them atomically on
// Commit. On Abort (or if Commit is never called) the buffer is discarded and
// nothing becomes visible to Replay/Query (spec §4.1).
type UnitOfWork struct {
	ctx     context.Context
	target  batchCommitter
	pending []Event
	done    bool
}

// Append buffers ev; it is not visible to readers until Commit succeeds.
func (u *UnitOfWork) Append(ev Event) error {
	if u.done {
		return fmt.Errorf("eventstore: unit of work already closed")
	}
	if err := ValidateEventType(ev.EventType); err != nil {
		return err
	}
	u.pending = append(u.pending, ev)
	return nil
}

// Commit flushes every buffered event as one atomic batch (a single SQL
// transaction for SQLiteStore): either all of the phase's events become
// visible, or none do.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return fmt.Errorf("eventstore: unit of work already closed")
	}
	u.done = true
	if len(u.pending) == 0 {
		return nil
	}

	if err := u.target.commitBatch(u.ctx, u.pending); err != nil {
		return err
	}
	logging.Get(logging.CategoryEventStore).Info("unit of work committed %d events", len(u.pending))
	return nil
}

// Abort discards the buffer. Safe to call after Commit (no-op).
func (u *UnitOfWork) Abort() {
	if u.done {
		return
	}
	u.done = true
	logging.Get(logging.CategoryEventStore).Debug("unit of work aborted, discarding %d buffered events", len(u.pending))
	u.pending = nil
}
