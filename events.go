package saga

import (
	"fmt"
	"sync"
	"time"
)

// StepState is the lifecycle state of a step within a single run.
type StepState string

const (
	StateNotStarted      StepState = "not_started"
	StateExecuting       StepState = "executing"
	StateCompleted       StepState = "completed"
	StatePendingApproval StepState = "pending_approval"
	StateFailed          StepState = "failed"
	StateCompensating    StepState = "compensating"
	StateCompensated     StepState = "compensated"
)

// EventType classifies run trace events.
type EventType string

const (
	EventExecuteStarted      EventType = "execute_started"
	EventExecuteSucceeded    EventType = "execute_succeeded"
	EventExecuteFailed       EventType = "execute_failed"
	EventApprovalRequested   EventType = "approval_requested"
	EventReplayed            EventType = "replayed"
	EventCompensateStarted   EventType = "compensate_started"
	EventCompensateSucceeded EventType = "compensate_succeeded"
	EventCompensateFailed    EventType = "compensate_failed"
)

// Event is one entry of a run's trace.
type Event struct {
	Step StepName
	Type EventType
	At   time.Time
}

// runTrace accumulates the ordered event log of a single run and tracks
// per-step state so illegal transitions surface as warnings instead of
// silently corrupting the trace.
type runTrace struct {
	mu     sync.Mutex
	events []Event
	states map[StepName]StepState
}

func newRunTrace() *runTrace {
	return &runTrace{states: make(map[StepName]StepState)}
}

// transitions maps an event type to the states it may fire from and the
// state it lands in.
var transitions = map[EventType]struct {
	from []StepState
	to   StepState
}{
	EventExecuteStarted:      {[]StepState{StateNotStarted, StateExecuting}, StateExecuting},
	EventExecuteSucceeded:    {[]StepState{StateExecuting}, StateCompleted},
	EventExecuteFailed:       {[]StepState{StateExecuting}, StateFailed},
	EventApprovalRequested:   {[]StepState{StateExecuting}, StatePendingApproval},
	EventReplayed:            {[]StepState{StateNotStarted}, StateCompleted},
	EventCompensateStarted:   {[]StepState{StateCompleted, StateCompensating}, StateCompensating},
	EventCompensateSucceeded: {[]StepState{StateCompensating}, StateCompensated},
	EventCompensateFailed:    {[]StepState{StateCompensating}, StateFailed},
}

// record appends the event. The event is always kept; the error reports a
// transition that should not have been possible.
func (t *runTrace) record(step StepName, typ EventType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, Event{Step: step, Type: typ, At: time.Now()})

	rule, ok := transitions[typ]
	if !ok {
		return fmt.Errorf("unknown event type %q", typ)
	}
	current, ok := t.states[step]
	if !ok {
		current = StateNotStarted
	}
	legal := false
	for _, from := range rule.from {
		if current == from {
			legal = true
			break
		}
	}
	t.states[step] = rule.to
	if !legal {
		return fmt.Errorf("step %q: %s fired in state %s", step, typ, current)
	}
	return nil
}

// stateOf returns the step's current state within the run.
func (t *runTrace) stateOf(step StepName) StepState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[step]
	if !ok {
		return StateNotStarted
	}
	return state
}

// Events returns a copy of the trace so far.
func (t *runTrace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}
