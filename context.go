package saga

import (
	"encoding/json"

	"github.com/tidwall/btree"
)

// RunContext is the mutable record threaded through every step invocation
// of a run. It holds one result per completed step, keyed by step name,
// plus the dry-run flag.
//
// The context is owned by the caller before and after a run. During a run
// only the engine writes the results map: a result is folded in strictly
// after the step's forward action has been durably checkpointed, and the
// engine writes from a single goroutine even while a concurrent group is
// in flight, so steps may read prior results without locking. Step bodies
// must not write results themselves.
//
// Callers add domain fields by embedding RunContext in their own struct;
// the zero value is ready to use.
type RunContext struct {
	// DryRun short-circuits Run into returning a plan without invoking
	// any step, hook, or checkpoint call.
	DryRun bool

	results btree.Map[StepName, any]
}

// NewRunContext returns an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// Result returns the recorded result of a previously completed step.
func (rc *RunContext) Result(name StepName) (any, bool) {
	return rc.results.Get(name)
}

// Results returns a copy of the results map.
func (rc *RunContext) Results() map[StepName]any {
	out := make(map[StepName]any, rc.results.Len())
	rc.results.Scan(func(name StepName, value any) bool {
		out[name] = value
		return true
	})
	return out
}

// ResultCount returns the number of recorded step results.
func (rc *RunContext) ResultCount() int {
	return rc.results.Len()
}

// setResult records a step result. Engine use only.
func (rc *RunContext) setResult(name StepName, value any) {
	rc.results.Set(name, value)
}

// LookupAs retrieves a prior step's result as type R. A live result is
// returned by direct type assertion; a replayed result (decoded from a
// checkpoint into generic JSON values) is re-marshaled into R.
func LookupAs[R any](rc *RunContext, name StepName) (R, bool) {
	var zero R
	value, ok := rc.Result(name)
	if !ok {
		return zero, false
	}
	if typed, ok := value.(R); ok {
		return typed, true
	}
	data, err := json.Marshal(value)
	if err != nil {
		return zero, false
	}
	var out R
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}
