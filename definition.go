package saga

// Entry is one position in a definition: either a single sequential step
// or a group of steps that run concurrently. Exactly one of Step and
// Group is set.
type Entry struct {
	Step  Step
	Group []Step
}

// IsGroup reports whether the entry is a concurrent group.
func (e Entry) IsGroup() bool {
	return len(e.Group) > 0
}

// steps returns the entry's members in declaration order.
func (e Entry) steps() []Step {
	if e.IsGroup() {
		return e.Group
	}
	return []Step{e.Step}
}

// Definition is a frozen, reusable saga: an ordered list of entries plus
// identity and description. Definitions are immutable after Build and safe
// to execute from multiple goroutines, each run with its own Executor.
type Definition struct {
	name        SagaName
	description string
	entries     []Entry
	dot         string
}

// Name returns the saga name.
func (d *Definition) Name() SagaName {
	return d.name
}

// Description returns the saga description.
func (d *Definition) Description() string {
	return d.description
}

// Entries returns the definition's entries in declaration order.
func (d *Definition) Entries() []Entry {
	return d.entries
}

// Steps returns every step, flattened in declaration order with group
// members in their declared positions.
func (d *Definition) Steps() []Step {
	var steps []Step
	for _, entry := range d.entries {
		steps = append(steps, entry.steps()...)
	}
	return steps
}

// Dot returns the definition's dependency graph in Graphviz DOT format.
func (d *Definition) Dot() string {
	return d.dot
}

// findStep locates a step by name.
func (d *Definition) findStep(name StepName) (Step, bool) {
	for _, step := range d.Steps() {
		if step.Name() == name {
			return step, true
		}
	}
	return nil, false
}
