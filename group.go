package saga

import (
	"context"
	"fmt"
	"sync"
)

// groupMember is the per-member bookkeeping of one concurrent group run.
type groupMember struct {
	step Step
	key  string

	// replayed members carry their checkpointed result and never launch.
	replayed bool
	result   any

	out attemptOutcome
}

// runGroup executes a group's members concurrently and joins them all
// before folding any result. Checkpoint consults and before-execute hooks
// happen sequentially up front; results, after-execute hooks, and error
// hooks are folded in declaration order after the join, so the run context
// and the hook lists only ever see one goroutine.
//
// The group is atomic for the saga: an approval request by a member is
// treated as that member failing, and no pause is recorded. On any member
// failure the first one by declaration position becomes the group's error;
// members that succeeded are still checkpointed and folded, so rollback
// covers them.
func (e *Executor) runGroup(ctx context.Context, rc *RunContext, steps []Step, completed *[]completedStep) error {
	members := make([]*groupMember, len(steps))
	for i, step := range steps {
		m := &groupMember{step: step, key: idempotencyKey(step)}
		members[i] = m

		record, err := e.store.Load(ctx, m.key)
		if err != nil {
			return fmt.Errorf("load checkpoint for step %q: %w", step.Name(), err)
		}
		if record != nil {
			switch record.Status {
			case StatusCompleted:
				value, err := unmarshalResult(record.Result)
				if err != nil {
					return fmt.Errorf("decode checkpoint for step %q: %w", step.Name(), err)
				}
				m.replayed = true
				m.result = value
				e.recordEvent(step.Name(), EventReplayed)
				e.logger.Info("step replayed from checkpoint", "step", step.Name(), "group", true)
				continue
			case StatusPendingApproval:
				// A pause checkpoint inside a group cannot be honored;
				// the member counts as failed and the group with it.
				m.out = attemptOutcome{err: fmt.Errorf(
					"step %q has a pending approval checkpoint inside a concurrent group", step.Name())}
				continue
			}
		}
		e.dispatch(ctx, e.hooks.BeforeExecute, StepEvent{Step: step.Name(), Group: true})
	}

	var wg sync.WaitGroup
	for _, m := range members {
		if m.replayed || m.out.err != nil {
			continue
		}
		wg.Add(1)
		go func(m *groupMember) {
			defer wg.Done()
			m.out = e.executeStep(ctx, rc, m.step, m.key)
		}(m)
	}
	wg.Wait()

	// Fold in declaration order: successes first-class, then the first
	// failure by position wins.
	var firstErr error
	for _, m := range members {
		name := m.step.Name()
		switch {
		case m.replayed:
			rc.setResult(name, m.result)
			*completed = append(*completed, completedStep{step: m.step, result: m.result, key: m.key})
		case m.out.approval != nil:
			err := fmt.Errorf("step %q requested approval inside a concurrent group: %w", name, m.out.approval)
			e.dispatch(ctx, e.hooks.OnError, StepEvent{Step: name, Group: true, Err: err})
			if firstErr == nil {
				firstErr = err
			}
		case m.out.err != nil:
			e.dispatch(ctx, e.hooks.OnError, StepEvent{Step: name, Group: true, Err: m.out.err})
			if firstErr == nil {
				firstErr = m.out.err
			}
		default:
			e.dispatch(ctx, e.hooks.AfterExecute, StepEvent{Step: name, Group: true, Result: m.out.result})
			rc.setResult(name, m.out.result)
			*completed = append(*completed, completedStep{step: m.step, result: m.out.result, key: m.key})
		}
	}
	return firstErr
}
