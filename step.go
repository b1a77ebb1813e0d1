package saga

import (
	"context"
)

// DefaultCompensationRetries is the number of compensation retries applied
// to steps built with NewStep unless WithCompensationRetries overrides it.
const DefaultCompensationRetries = 3

// StepMetadata carries optional per-step configuration.
type StepMetadata struct {
	// Description is shown in dry-run plans and definition exports.
	Description string

	// ExecuteRetries is the number of times Execute is retried after its
	// first failure, with exponential backoff. Approval signals and
	// serialization failures are never retried.
	ExecuteRetries int

	// CompensationRetries is the number of times Compensate is retried
	// after its first failure during rollback. Zero means a single attempt.
	CompensationRetries int

	// SkipOnDryRun marks the step as skipped in dry-run plans.
	SkipOnDryRun bool

	// IdempotencyKey overrides the checkpoint key for this step.
	// Defaults to the step name.
	IdempotencyKey string
}

// Step is the building block of sagas: a forward action paired with the
// compensating action that undoes it.
//
// Execute may return any JSON-serializable value; the engine checkpoints
// it and folds it into the RunContext. Compensate receives that value back
// during rollback. Compensate must tolerate being retried and must not
// fail for state that is already undone: the engine gates it with an
// idempotency checkpoint, but the store gives no hard exactly-once
// guarantee across crashes.
type Step interface {
	Name() StepName
	Execute(ctx context.Context, rc *RunContext) (any, error)
	Compensate(ctx context.Context, rc *RunContext, result any) error
	Metadata() StepMetadata
}

// ExecuteFunc is the forward action of a func-backed step.
type ExecuteFunc func(ctx context.Context, rc *RunContext) (any, error)

// CompensateFunc is the rollback action of a func-backed step.
type CompensateFunc func(ctx context.Context, rc *RunContext, result any) error

// FuncStep is an implementation of Step that uses ordinary functions.
type FuncStep struct {
	name       StepName
	execute    ExecuteFunc
	compensate CompensateFunc
	meta       StepMetadata
}

// StepOption configures the metadata of a step built with NewStep.
type StepOption func(*StepMetadata)

// WithDescription sets the human-readable step description.
func WithDescription(description string) StepOption {
	return func(m *StepMetadata) {
		m.Description = description
	}
}

// WithExecuteRetries sets the execute retry budget.
func WithExecuteRetries(retries int) StepOption {
	return func(m *StepMetadata) {
		if retries >= 0 {
			m.ExecuteRetries = retries
		}
	}
}

// WithCompensationRetries sets the compensation retry budget. Passing zero
// disables retries so Compensate is attempted exactly once.
func WithCompensationRetries(retries int) StepOption {
	return func(m *StepMetadata) {
		if retries >= 0 {
			m.CompensationRetries = retries
		}
	}
}

// WithSkipOnDryRun marks the step as skipped in dry-run plans.
func WithSkipOnDryRun() StepOption {
	return func(m *StepMetadata) {
		m.SkipOnDryRun = true
	}
}

// WithIdempotencyKey overrides the checkpoint key for the step.
func WithIdempotencyKey(key string) StepOption {
	return func(m *StepMetadata) {
		m.IdempotencyKey = key
	}
}

// NewStep constructs a func-backed step. A nil compensate installs a no-op
// rollback action for steps without side effects worth undoing.
func NewStep(name StepName, execute ExecuteFunc, compensate CompensateFunc, opts ...StepOption) *FuncStep {
	meta := StepMetadata{CompensationRetries: DefaultCompensationRetries}
	for _, opt := range opts {
		opt(&meta)
	}
	if compensate == nil {
		compensate = NoOpCompensate
	}
	return &FuncStep{
		name:       name,
		execute:    execute,
		compensate: compensate,
		meta:       meta,
	}
}

// NoOpCompensate is a rollback action that does nothing.
func NoOpCompensate(_ context.Context, _ *RunContext, _ any) error {
	return nil
}

// Name implements the Step interface.
func (s *FuncStep) Name() StepName {
	return s.name
}

// Execute implements the Step interface.
func (s *FuncStep) Execute(ctx context.Context, rc *RunContext) (any, error) {
	return s.execute(ctx, rc)
}

// Compensate implements the Step interface.
func (s *FuncStep) Compensate(ctx context.Context, rc *RunContext, result any) error {
	return s.compensate(ctx, rc, result)
}

// Metadata implements the Step interface.
func (s *FuncStep) Metadata() StepMetadata {
	return s.meta
}

// idempotencyKey derives the checkpoint key for a step: the explicit
// override when set, the step name otherwise.
func idempotencyKey(step Step) string {
	if key := step.Metadata().IdempotencyKey; key != "" {
		return key
	}
	return string(step.Name())
}
