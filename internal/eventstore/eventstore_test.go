package eventstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	sqlitePath := filepath.Join(t.TempDir(), "events.db")
	sq, err := OpenSQLiteStore(sqlitePath)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func TestStore_AppendAndReplay(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e1 := NewEvent(AggregateRouting, "agg-1", "routing.tier.selected", map[string]interface{}{"tier": "frugal"})
			e2 := NewEvent(AggregateRouting, "agg-1", "routing.tier.escalated", map[string]interface{}{"tier": "standard"})
			require.NoError(t, s.Append(ctx, e1))
			require.NoError(t, s.Append(ctx, e2))

			events, err := s.Replay(ctx, "agg-1")
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "routing.tier.selected", events[0].EventType)
			assert.Equal(t, "routing.tier.escalated", events[1].EventType)
		})
	}
}

func TestStore_ReplayIsPrefixStable(t *testing.T) {
	// For every pair of reads of the same aggregate_id, one is a prefix of the other.
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := s.Replay(ctx, "agg-x")
			require.NoError(t, err)
			require.NoError(t, s.Append(ctx, NewEvent(AggregateEvolution, "agg-x", "evolution.generation.started", nil)))
			second, err := s.Replay(ctx, "agg-x")
			require.NoError(t, err)
			require.NoError(t, s.Append(ctx, NewEvent(AggregateEvolution, "agg-x", "evolution.generation.completed", nil)))
			third, err := s.Replay(ctx, "agg-x")
			require.NoError(t, err)

			assertPrefix(t, first, second)
			assertPrefix(t, second, third)
		})
	}
}

func assertPrefix(t *testing.T, a, b []Event) {
	t.Helper()
	shorter, longer := a, b
	if len(b) < len(a) {
		shorter, longer = b, a
	}
	for i := range shorter {
		assert.Equal(t, shorter[i].ID, longer[i].ID)
	}
}

func TestUnitOfWork_CommitIsAtomic(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			uow, err := s.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, uow.Append(NewEvent(AggregateExecution, "phase-1", "execution.phase.started", nil)))
			require.NoError(t, uow.Append(NewEvent(AggregateExecution, "phase-1", "execution.phase.completed", nil)))

			// Not visible before commit.
			events, err := s.Replay(ctx, "phase-1")
			require.NoError(t, err)
			assert.Empty(t, events)

			require.NoError(t, uow.Commit())
			events, err = s.Replay(ctx, "phase-1")
			require.NoError(t, err)
			assert.Len(t, events, 2)
		})
	}
}

func TestUnitOfWork_AbortDiscardsBuffer(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			uow, err := s.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, uow.Append(NewEvent(AggregateExecution, "phase-2", "execution.phase.started", nil)))
			uow.Abort()

			events, err := s.Replay(ctx, "phase-2")
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestValidateEventType(t *testing.T) {
	assert.NoError(t, ValidateEventType("routing.tier.escalated"))
	assert.Error(t, ValidateEventType("NoDots"))
	assert.Error(t, ValidateEventType("Routing.Tier.Escalated"))
	assert.Error(t, ValidateEventType("only.one"))
}

func TestQuery_FiltersByAggregateType(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, NewEvent(AggregateRouting, "a", "routing.tier.selected", nil)))
			require.NoError(t, s.Append(ctx, NewEvent(AggregateExecution, "b", "execution.phase.started", nil)))

			events, err := s.Query(ctx, AggregateRouting, "", nil)
			require.NoError(t, err)
			for _, ev := range events {
				assert.Equal(t, AggregateRouting, ev.AggregateType)
			}
		})
	}
}
