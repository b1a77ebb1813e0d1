package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the terminal state of a successful Run call. Failed runs
// report through the error return instead.
type Outcome string

const (
	// OutcomeCompleted means every step executed (or replayed) successfully.
	OutcomeCompleted Outcome = "completed"

	// OutcomePaused means a step requested approval; the run stopped with
	// all prior work intact and can continue via Resume.
	OutcomePaused Outcome = "paused"

	// OutcomePlanned means the run was a dry run; Plan holds the steps
	// that would have executed.
	OutcomePlanned Outcome = "planned"
)

// RunResult is the report of a Run or Resume call that did not fail.
type RunResult struct {
	Outcome Outcome

	// PendingStep and Reason are set when Outcome is OutcomePaused.
	PendingStep StepName
	Reason      string

	// Plan is set when Outcome is OutcomePlanned.
	Plan []PlanEntry
}

// Executor drives one saga instance against a checkpoint store. It is
// bound to a single run context at a time; concurrent sagas get their own
// executors over the same (shared) store.
type Executor struct {
	def     *Definition
	store   CheckpointStore
	hooks   Hooks
	logger  *slog.Logger
	metrics *MetricsRecorder
	id      SagaID
	trace   *runTrace
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics *MetricsRecorder) Option {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// WithHooks attaches lifecycle hooks.
func WithHooks(hooks Hooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithSagaID pins the saga instance ID instead of generating one. Required
// when resuming a paused saga in a fresh process so log and metric labels
// stay stable across the pause.
func WithSagaID(id SagaID) Option {
	return func(e *Executor) {
		e.id = id
	}
}

// NewExecutor creates an executor for one instance of the definition.
func NewExecutor(def *Definition, store CheckpointStore, opts ...Option) *Executor {
	e := &Executor{
		def:    def,
		store:  store,
		logger: slog.Default(),
		id:     NewSagaID(),
		trace:  newRunTrace(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("saga", def.Name().String(), "saga_id", e.id.String())
	return e
}

// ID returns the saga instance ID.
func (e *Executor) ID() SagaID {
	return e.id
}

// Events returns the run trace recorded so far.
func (e *Executor) Events() []Event {
	return e.trace.Events()
}

// Run executes the definition against the run context. Steps execute in
// declaration order, group members concurrently. Completed checkpoints are
// replayed instead of re-executed, so calling Run again after a crash or a
// failure is safe.
//
// On a step failure Run compensates every completed step in reverse order
// and returns the step's error; if a compensation itself fails permanently
// the CompensationError supersedes it. On an approval request Run persists
// the pause and returns OutcomePaused without compensating.
func (e *Executor) Run(ctx context.Context, rc *RunContext) (RunResult, error) {
	if rc == nil {
		return RunResult{}, fmt.Errorf("run context must not be nil")
	}
	if rc.DryRun {
		return RunResult{Outcome: OutcomePlanned, Plan: e.def.Plan()}, nil
	}

	e.trace = newRunTrace()
	e.metrics.RecordSagaStart(e.def.Name())
	start := time.Now()

	var completed []completedStep
	for _, entry := range e.def.Entries() {
		if entry.IsGroup() {
			if err := e.runGroup(ctx, rc, entry.Group, &completed); err != nil {
				return e.failSaga(ctx, rc, completed, start, err)
			}
			continue
		}

		step := entry.Step
		key := idempotencyKey(step)

		record, err := e.store.Load(ctx, key)
		if err != nil {
			return e.failSaga(ctx, rc, completed, start,
				fmt.Errorf("load checkpoint for step %q: %w", step.Name(), err))
		}
		if record != nil {
			switch record.Status {
			case StatusCompleted:
				value, err := unmarshalResult(record.Result)
				if err != nil {
					return e.failSaga(ctx, rc, completed, start,
						fmt.Errorf("decode checkpoint for step %q: %w", step.Name(), err))
				}
				e.recordEvent(step.Name(), EventReplayed)
				e.logger.Info("step replayed from checkpoint", "step", step.Name())
				rc.setResult(step.Name(), value)
				completed = append(completed, completedStep{step: step, result: value, key: key})
				continue
			case StatusPendingApproval:
				e.logger.Info("step is awaiting approval, pausing", "step", step.Name())
				e.metrics.RecordSagaEnd(ctx, e.def.Name(), "paused", time.Since(start))
				return RunResult{Outcome: OutcomePaused, PendingStep: step.Name()}, nil
			}
		}

		e.dispatch(ctx, e.hooks.BeforeExecute, StepEvent{Step: step.Name()})
		out := e.executeStep(ctx, rc, step, key)
		switch {
		case out.approval != nil:
			e.dispatch(ctx, e.hooks.OnError, StepEvent{Step: step.Name(), Err: out.approval})
			if err := e.recordPause(ctx, step, key, out.approval); err != nil {
				return e.failSaga(ctx, rc, completed, start, err)
			}
			e.metrics.RecordSagaEnd(ctx, e.def.Name(), "paused", time.Since(start))
			return RunResult{
				Outcome:     OutcomePaused,
				PendingStep: step.Name(),
				Reason:      out.approval.Reason,
			}, nil
		case out.err != nil:
			e.dispatch(ctx, e.hooks.OnError, StepEvent{Step: step.Name(), Err: out.err})
			return e.failSaga(ctx, rc, completed, start, out.err)
		default:
			e.dispatch(ctx, e.hooks.AfterExecute, StepEvent{Step: step.Name(), Result: out.result})
			rc.setResult(step.Name(), out.result)
			completed = append(completed, completedStep{step: step, result: out.result, key: key})
		}
	}

	e.metrics.RecordSagaEnd(ctx, e.def.Name(), "completed", time.Since(start))
	e.logger.Info("saga completed", "steps", len(completed))
	return RunResult{Outcome: OutcomeCompleted}, nil
}

// Resume completes a paused saga. The approved value is checkpointed as
// the pending step's result, the pending marker is cleared, and the saga
// continues from the step after it. Returns ErrNoPendingApproval when
// nothing is paused.
func (e *Executor) Resume(ctx context.Context, rc *RunContext, approved any) (RunResult, error) {
	if rc == nil {
		return RunResult{}, fmt.Errorf("run context must not be nil")
	}

	marker, err := e.store.Load(ctx, PendingStepKey)
	if err != nil {
		return RunResult{}, fmt.Errorf("load pending-step marker: %w", err)
	}
	if marker == nil || marker.Status != StatusPendingApproval {
		return RunResult{}, ErrNoPendingApproval
	}

	var name StepName
	if err := json.Unmarshal(marker.Result, &name); err != nil {
		return RunResult{}, fmt.Errorf("decode pending-step marker: %w", err)
	}
	step, ok := e.def.findStep(name)
	if !ok {
		return RunResult{}, fmt.Errorf("pending step %q is not part of saga %q", name, e.def.Name())
	}

	raw, err := marshalResult(approved)
	if err != nil {
		return RunResult{}, &SerializationError{Step: name, Err: err}
	}
	key := idempotencyKey(step)
	if err := e.store.Save(ctx, key, CheckpointRecord{Status: StatusCompleted, Result: raw}); err != nil {
		return RunResult{}, fmt.Errorf("save approved result for step %q: %w", name, err)
	}
	if err := e.store.Save(ctx, PendingStepKey, CheckpointRecord{Status: StatusCleared}); err != nil {
		return RunResult{}, fmt.Errorf("clear pending-step marker: %w", err)
	}

	e.logger.Info("saga resumed", "step", name)
	return e.Run(ctx, rc)
}

// attemptOutcome is the three-way result of executeStep: success, failure,
// or an approval request. At most one of err and approval is set.
type attemptOutcome struct {
	result   any
	err      error
	approval *ApprovalError
}

// executeStep runs one step's forward action with its retry budget and
// checkpoints the result. It dispatches no hooks and writes nothing to the
// run context, so group members may call it concurrently.
func (e *Executor) executeStep(ctx context.Context, rc *RunContext, step Step, key string) attemptOutcome {
	meta := step.Metadata()
	attempts := meta.ExecuteRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, backoffDelay(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		e.recordEvent(step.Name(), EventExecuteStarted)
		begun := time.Now()
		result, err := step.Execute(ctx, rc)
		e.metrics.RecordStepExecution(ctx, e.def.Name(), step.Name(), err, time.Since(begun))

		if err != nil {
			var approval *ApprovalError
			if errors.As(err, &approval) {
				approval.Step = step.Name()
				e.recordEvent(step.Name(), EventApprovalRequested)
				e.logger.Info("step requested approval", "step", step.Name(), "reason", approval.Reason)
				return attemptOutcome{approval: approval}
			}
			lastErr = err
			e.logger.Warn("step attempt failed",
				"step", step.Name(), "attempt", attempt, "attempts", attempts, "error", err)
			continue
		}

		raw, err := marshalResult(result)
		if err != nil {
			serr := &SerializationError{Step: step.Name(), Err: err}
			e.recordEvent(step.Name(), EventExecuteFailed)
			e.logger.Error("step result is not serializable", "step", step.Name(), "error", err)
			return attemptOutcome{err: serr}
		}
		if err := e.store.Save(ctx, key, CheckpointRecord{Status: StatusCompleted, Result: raw}); err != nil {
			e.recordEvent(step.Name(), EventExecuteFailed)
			return attemptOutcome{err: fmt.Errorf("save checkpoint for step %q: %w", step.Name(), err)}
		}
		e.recordEvent(step.Name(), EventExecuteSucceeded)
		e.logger.Info("step completed", "step", step.Name(), "attempt", attempt)
		return attemptOutcome{result: result}
	}

	e.recordEvent(step.Name(), EventExecuteFailed)
	// The step's own error goes back to the caller untouched; the step
	// name is carried by logs, hooks, and the event trace.
	return attemptOutcome{err: lastErr}
}

// recordPause persists the pause: the step's own checkpoint plus the
// reserved marker naming it, so Resume can find the step without a scan.
func (e *Executor) recordPause(ctx context.Context, step Step, key string, approval *ApprovalError) error {
	if err := e.store.Save(ctx, key, CheckpointRecord{Status: StatusPendingApproval}); err != nil {
		return fmt.Errorf("save pause checkpoint for step %q: %w", step.Name(), err)
	}
	name, err := json.Marshal(step.Name())
	if err != nil {
		return fmt.Errorf("encode pending-step marker: %w", err)
	}
	if err := e.store.Save(ctx, PendingStepKey, CheckpointRecord{
		Status: StatusPendingApproval,
		Result: name,
	}); err != nil {
		return fmt.Errorf("save pending-step marker: %w", err)
	}
	e.logger.Info("saga paused for approval", "step", step.Name(), "reason", approval.Reason)
	return nil
}

// failSaga rolls back the completed steps and reports the failure. A
// permanent compensation failure supersedes the original error; otherwise
// the original error is returned unchanged.
func (e *Executor) failSaga(ctx context.Context, rc *RunContext, completed []completedStep, start time.Time, cause error) (RunResult, error) {
	e.logger.Error("saga failed, rolling back", "error", cause, "completed_steps", len(completed))
	if err := e.rollback(ctx, rc, completed); err != nil {
		e.metrics.RecordSagaEnd(ctx, e.def.Name(), "failed", time.Since(start))
		return RunResult{}, err
	}
	e.metrics.RecordSagaEnd(ctx, e.def.Name(), "compensated", time.Since(start))
	return RunResult{}, cause
}

// dispatch invokes a hook list in registration order, filling in the saga
// identity. Never called concurrently with itself.
func (e *Executor) dispatch(ctx context.Context, hooks []Hook, event StepEvent) {
	if len(hooks) == 0 {
		return
	}
	event.Saga = e.def.Name()
	event.SagaID = e.id
	for _, hook := range hooks {
		hook(ctx, event)
	}
}

// recordEvent appends to the run trace; an illegal transition is a bug
// worth a warning but never interrupts the run.
func (e *Executor) recordEvent(step StepName, typ EventType) {
	if err := e.trace.record(step, typ); err != nil {
		e.logger.Warn("irregular step transition", "error", err)
	}
}
