package eventstore

import "fmt"

// PersistenceError wraps a failure to append events or write a checkpoint
// (spec §7 kind 3). It is recoverable by rollback; if recurrent, the caller
// should mark the lineage FAILED.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("eventstore: persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
