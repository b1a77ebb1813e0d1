package saga

import (
	"context"
	"time"
)

// completedStep is a forward action the current run has folded in, with
// everything rollback needs to undo it.
type completedStep struct {
	step   Step
	result any
	key    string
}

// compensationBackoffBase is the delay before the first retry; each
// further retry doubles it.
const compensationBackoffBase = 100 * time.Millisecond

// backoffDelay returns the delay after the given number of failures.
func backoffDelay(failures int) time.Duration {
	return compensationBackoffBase << (failures - 1)
}

// sleepContext waits for the delay unless the context ends first.
func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rollback compensates the completed steps in reverse completion order.
// Each step's rollback gets its retry budget with exponential backoff; the
// first step whose budget is exhausted aborts the whole rollback, leaving
// the earlier steps uncompensated for operator attention.
//
// A step whose compensation checkpoint already reads compensated is
// skipped, so re-running a failed saga never undoes the same work twice.
func (e *Executor) rollback(ctx context.Context, rc *RunContext, completed []completedStep) error {
	for i := len(completed) - 1; i >= 0; i-- {
		cs := completed[i]
		name := cs.step.Name()
		compKey := compensationKey(cs.key)

		record, err := e.store.Load(ctx, compKey)
		if err != nil {
			e.logger.Warn("unable to load compensation checkpoint, compensating anyway",
				"step", name, "error", err)
		}
		if record != nil && record.Status == StatusCompensated {
			e.logger.Info("compensation already recorded, skipping", "step", name)
			continue
		}

		e.recordEvent(name, EventCompensateStarted)
		attempts := cs.step.Metadata().CompensationRetries + 1

		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				if err := sleepContext(ctx, backoffDelay(attempt-1)); err != nil {
					lastErr = err
					break
				}
			}
			err := cs.step.Compensate(ctx, rc, cs.result)
			e.metrics.RecordCompensation(ctx, e.def.Name(), name, err)
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
			e.logger.Warn("compensation attempt failed",
				"step", name, "attempt", attempt, "attempts", attempts, "error", err)
		}

		if lastErr != nil {
			e.recordEvent(name, EventCompensateFailed)
			e.logger.Error("compensation failed permanently, aborting rollback",
				"step", name, "remaining_steps", i)
			return &CompensationError{Step: name, Err: lastErr}
		}

		e.dispatch(ctx, e.hooks.OnCompensation, StepEvent{Step: name, Result: cs.result})
		if err := e.store.Save(ctx, compKey, CheckpointRecord{Status: StatusCompensated}); err != nil {
			e.logger.Warn("unable to persist compensation checkpoint", "step", name, "error", err)
		}
		e.recordEvent(name, EventCompensateSucceeded)
		e.logger.Info("step compensated", "step", name)
	}
	return nil
}
