package saga

import "context"

// StepEvent is the payload delivered to hooks.
type StepEvent struct {
	Saga   SagaName
	SagaID SagaID
	Step   StepName

	// Group is set when the step ran as a member of a concurrent group.
	Group bool

	// Result carries the step result on after-execute events.
	Result any

	// Err carries the failure on error and compensation events.
	Err error
}

// Hook observes the lifecycle of a run. Hooks cannot veto or alter
// execution and have no error return.
type Hook func(ctx context.Context, event StepEvent)

// Hooks is the set of observer lists an executor dispatches during a run.
// Hooks of one executor never run concurrently with each other, even for
// group members: before-execute hooks fire before the group is launched
// and the other lists fire after the group has joined, all on the run's
// own goroutine and in registration order.
type Hooks struct {
	// BeforeExecute fires before each step's forward action, replayed
	// steps excluded.
	BeforeExecute []Hook

	// AfterExecute fires after each successful forward action, replayed
	// steps excluded.
	AfterExecute []Hook

	// OnError fires once per failed step with the failure.
	OnError []Hook

	// OnCompensation fires after each successful rollback action.
	OnCompensation []Hook
}
