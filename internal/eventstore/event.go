// Package eventstore implements the single-table append-only event log and
// its Unit-of-Work (spec §4.1). Events are immutable and never deleted or
// updated; the store is the exclusive owner of persisted events, and every
// other component holds only value copies returned from Append/Replay.
package eventstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AggregateType groups events by the subsystem that owns them.
type AggregateType string

const (
	AggregateOntology  AggregateType = "ontology"
	AggregateExecution AggregateType = "execution"
	AggregateConsensus AggregateType = "consensus"
	AggregateEvolution AggregateType = "evolution"
	AggregateRouting   AggregateType = "routing"
	AggregateResilience AggregateType = "resilience"
)

// Event is one immutable fact appended to the log. EventType follows
// "dot.notation.past_tense" (invariant I2).
type Event struct {
	ID            string
	AggregateType AggregateType
	AggregateID   string
	EventType     string
	Payload       map[string]interface{}
	Timestamp     time.Time
	ConsensusID   string // optional
}

// NewEvent constructs an Event with a fresh UUID and a UTC timestamp. It does
// not append it to any store.
func NewEvent(aggType AggregateType, aggID, eventType string, payload map[string]interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		AggregateType: aggType,
		AggregateID:   aggID,
		EventType:     eventType,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
}

// ValidateEventType checks invariant I2: event_type must be dot-notation,
// past-tense-looking (we only check the lexical shape — at least two dots,
// lowercase segments — since true past-tense detection is a style
// convention, not a machine-checkable one).
func ValidateEventType(eventType string) error {
	segments := 1
	for _, r := range eventType {
		if r == '.' {
			segments++
		} else if !(r >= 'a' && r <= 'z' || r == '_') {
			return fmt.Errorf("eventstore: event_type %q has invalid character %q", eventType, r)
		}
	}
	if segments < 3 {
		return fmt.Errorf("eventstore: event_type %q must follow domain.entity.verb_past_tense", eventType)
	}
	return nil
}
