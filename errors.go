package saga

import (
	"errors"
	"fmt"
)

// ApprovalError is the distinguished signal a step returns from Execute
// when the saga must pause for external approval. It is control flow, not
// a failure: the engine records the pause and returns without compensating.
//
// Inside a concurrent group the signal is handled as an ordinary failure
// of that member, because a group is atomic from the saga's point of view.
type ApprovalError struct {
	Step   StepName
	Reason string
}

// RequestApproval builds the approval signal for a step to return from
// Execute. The engine fills in the step name.
func RequestApproval(reason string) error {
	return &ApprovalError{Reason: reason}
}

func (e *ApprovalError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("step %q requires approval", e.Step)
	}
	return fmt.Sprintf("step %q requires approval: %s", e.Step, e.Reason)
}

// SerializationError reports a step result that cannot round-trip through
// the checkpoint encoding. It is handled exactly like any other execute
// failure: completed steps are rolled back and the error is surfaced.
type SerializationError struct {
	Step StepName
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("result of step %q is not checkpoint-serializable: %v", e.Step, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// CompensationError is raised when a single step's rollback exhausts its
// retry budget. Rollback of still-earlier steps stops at that point, so
// the saga needs operator attention; this error supersedes the execute
// failure that started the rollback.
type CompensationError struct {
	Step StepName
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for step %q failed permanently: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// ErrNoPendingApproval is returned by Resume when no step is currently
// awaiting approval.
var ErrNoPendingApproval = errors.New("no step is pending approval")
