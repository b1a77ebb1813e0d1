package saga

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDef(t *testing.T, b *Builder) *Definition {
	t.Helper()
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func TestRunExecutesStepsInDeclarationOrder(t *testing.T) {
	var order []StepName
	b := NewBuilder("ordered")
	for _, name := range []StepName{"one", "two", "three", "four"} {
		name := name
		require.NoError(t, b.Append(NewStep(name,
			func(context.Context, *RunContext) (any, error) {
				order = append(order, name)
				return string(name) + "-done", nil
			}, nil)))
	}

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	rc := NewRunContext()
	result, err := exec.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, []StepName{"one", "two", "three", "four"}, order)
	assert.Equal(t, 4, rc.ResultCount())
	v, ok := rc.Result("two")
	require.True(t, ok)
	assert.Equal(t, "two-done", v)
}

func TestRunFoldsResultsAfterCheckpoint(t *testing.T) {
	store := NewMemoryCheckpointStore()
	b := NewBuilder("payments")
	require.NoError(t, b.Append(NewStep("reserve-inventory",
		func(context.Context, *RunContext) (any, error) {
			return map[string]any{"sku": "sku-1", "units": float64(3)}, nil
		}, nil)))
	require.NoError(t, b.Append(NewStep("charge-payment",
		func(_ context.Context, rc *RunContext) (any, error) {
			reservation, ok := LookupAs[map[string]any](rc, "reserve-inventory")
			require.True(t, ok)
			require.Equal(t, "sku-1", reservation["sku"])
			return "ch-1", nil
		}, nil)))

	exec := NewExecutor(buildDef(t, b), store)
	_, err := exec.Run(context.Background(), NewRunContext())
	require.NoError(t, err)

	record, err := store.Load(context.Background(), "reserve-inventory")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestRunReplaysCompletedCheckpoints(t *testing.T) {
	store := NewMemoryCheckpointStore()
	executions := 0
	step := NewStep("idempotent",
		func(context.Context, *RunContext) (any, error) {
			executions++
			return "fresh", nil
		}, nil)

	// A prior run already completed the step with a different value.
	require.NoError(t, store.Save(context.Background(), "idempotent",
		CheckpointRecord{Status: StatusCompleted, Result: []byte(`"stored"`)}))

	b := NewBuilder("replay")
	require.NoError(t, b.Append(step))
	exec := NewExecutor(buildDef(t, b), store)

	rc := NewRunContext()
	result, err := exec.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Zero(t, executions, "replayed step must not execute")
	v, ok := rc.Result("idempotent")
	require.True(t, ok)
	assert.Equal(t, "stored", v)
}

func TestRunRollsBackCompletedStepsOnFailure(t *testing.T) {
	var compensated []StepName
	record := func(name StepName) *FuncStep {
		return NewStep(name,
			func(context.Context, *RunContext) (any, error) { return string(name), nil },
			func(_ context.Context, _ *RunContext, _ any) error {
				compensated = append(compensated, name)
				return nil
			})
	}

	boom := errors.New("insufficient funds")
	b := NewBuilder("checkout")
	require.NoError(t, b.Append(record("reserve-inventory")))
	require.NoError(t, b.Append(record("create-shipment")))
	require.NoError(t, b.Append(NewStep("charge-payment",
		func(context.Context, *RunContext) (any, error) { return nil, boom },
		func(context.Context, *RunContext, any) error {
			t.Fatal("failed step must not be compensated")
			return nil
		})))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	_, err := exec.Run(context.Background(), NewRunContext())
	require.Error(t, err)
	// The step's error reaches the caller as-is, not wrapped.
	assert.Equal(t, boom, err)

	assert.Equal(t, []StepName{"create-shipment", "reserve-inventory"}, compensated)
}

func TestRunRetriesExecuteWithinBudget(t *testing.T) {
	attempts := 0
	b := NewBuilder("flaky")
	require.NoError(t, b.Append(NewStep("unstable",
		func(context.Context, *RunContext) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("transient %d", attempts)
			}
			return "ok", nil
		}, nil,
		WithExecuteRetries(3))))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	result, err := exec.Run(context.Background(), NewRunContext())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 3, attempts)
}

func TestRunExhaustsExecuteRetriesThenRollsBack(t *testing.T) {
	attempts := 0
	compensatedFirst := false
	b := NewBuilder("flaky")
	require.NoError(t, b.Append(NewStep("first",
		func(context.Context, *RunContext) (any, error) { return "v", nil },
		func(context.Context, *RunContext, any) error {
			compensatedFirst = true
			return nil
		})))
	require.NoError(t, b.Append(NewStep("always-down",
		func(context.Context, *RunContext) (any, error) {
			attempts++
			return nil, errors.New("still down")
		}, nil,
		WithExecuteRetries(2))))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	_, err := exec.Run(context.Background(), NewRunContext())
	require.EqualError(t, err, "still down")
	assert.Equal(t, 3, attempts)
	assert.True(t, compensatedFirst)
}

func TestRunSerializationFailureRollsBack(t *testing.T) {
	compensated := false
	b := NewBuilder("serial")
	require.NoError(t, b.Append(NewStep("good",
		func(context.Context, *RunContext) (any, error) { return 1, nil },
		func(context.Context, *RunContext, any) error {
			compensated = true
			return nil
		})))
	require.NoError(t, b.Append(NewStep("bad",
		func(context.Context, *RunContext) (any, error) {
			// Channels cannot be encoded as JSON.
			return make(chan int), nil
		}, nil)))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	_, err := exec.Run(context.Background(), NewRunContext())
	require.Error(t, err)

	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StepName("bad"), serr.Step)
	assert.True(t, compensated)
}

func TestRunRejectsNilRunContext(t *testing.T) {
	b := NewBuilder("nilrc")
	require.NoError(t, b.Append(noopStep("a")))
	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	_, err := exec.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRunHooksFireInRegistrationOrder(t *testing.T) {
	var calls []string
	hook := func(label string) Hook {
		return func(_ context.Context, event StepEvent) {
			calls = append(calls, label+":"+string(event.Step))
		}
	}

	b := NewBuilder("hooked")
	require.NoError(t, b.Append(noopStep("a")))
	require.NoError(t, b.Append(NewStep("b",
		func(context.Context, *RunContext) (any, error) { return nil, errors.New("nope") }, nil)))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore(), WithHooks(Hooks{
		BeforeExecute:  []Hook{hook("before1"), hook("before2")},
		AfterExecute:   []Hook{hook("after")},
		OnError:        []Hook{hook("error")},
		OnCompensation: []Hook{hook("comp")},
	}))

	_, err := exec.Run(context.Background(), NewRunContext())
	require.Error(t, err)
	assert.Equal(t, []string{
		"before1:a", "before2:a", "after:a",
		"before1:b", "before2:b", "error:b",
		"comp:a",
	}, calls)
}

func TestRunReplayedStepSkipsHooks(t *testing.T) {
	store := NewMemoryCheckpointStore()
	require.NoError(t, store.Save(context.Background(), "a",
		CheckpointRecord{Status: StatusCompleted, Result: []byte(`"v"`)}))

	hookCalls := 0
	b := NewBuilder("replayhooks")
	require.NoError(t, b.Append(noopStep("a")))

	exec := NewExecutor(buildDef(t, b), store, WithHooks(Hooks{
		BeforeExecute: []Hook{func(context.Context, StepEvent) { hookCalls++ }},
		AfterExecute:  []Hook{func(context.Context, StepEvent) { hookCalls++ }},
	}))
	_, err := exec.Run(context.Background(), NewRunContext())
	require.NoError(t, err)
	assert.Zero(t, hookCalls)
}

func TestRunTraceRecordsLifecycle(t *testing.T) {
	b := NewBuilder("traced")
	require.NoError(t, b.Append(noopStep("a")))
	require.NoError(t, b.Append(NewStep("b",
		func(context.Context, *RunContext) (any, error) { return nil, errors.New("down") }, nil)))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore())
	_, err := exec.Run(context.Background(), NewRunContext())
	require.Error(t, err)

	var types []EventType
	for _, event := range exec.Events() {
		types = append(types, event.Type)
	}
	assert.Equal(t, []EventType{
		EventExecuteStarted, EventExecuteSucceeded,
		EventExecuteStarted, EventExecuteFailed,
		EventCompensateStarted, EventCompensateSucceeded,
	}, types)

	assert.Equal(t, StateCompensated, exec.trace.stateOf("a"))
	assert.Equal(t, StateFailed, exec.trace.stateOf("b"))
	assert.Equal(t, StateNotStarted, exec.trace.stateOf("never-ran"))
}
