package saga

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/encoding"

	"github.com/franruedaesq/agentic-sage-coordinator/dag"
	"github.com/franruedaesq/agentic-sage-coordinator/set"
)

// Builder assembles a saga definition as an append-only sequence of
// stages. Append adds a single sequential step; AppendParallel adds a
// stage whose members run concurrently. Each stage depends on the one
// appended before it.
//
// Internally the builder maintains a directed graph: every step is a
// node, and every node of a stage gets an edge from every node of the
// previous stage. Build groups the graph into dependency levels to
// produce the frozen entry list, and keeps a DOT rendering for
// inspection.
type Builder struct {
	name        SagaName
	description string

	graph *dag.Graph
	steps map[int64]Step

	// firstAdded holds the root stage, lastAdded the most recently
	// appended stage; the next stage will depend on lastAdded.
	firstAdded []int64
	lastAdded  []int64

	names set.Set[StepName]
}

// NewBuilder creates a Builder for a saga with the given name.
func NewBuilder(name SagaName) *Builder {
	return &Builder{
		name:  name,
		graph: dag.New(),
		steps: make(map[int64]Step),
	}
}

// WithDescription sets the definition description read by tool-wrapping
// collaborators. Returns the builder for chaining.
func (b *Builder) WithDescription(description string) *Builder {
	b.description = description
	return b
}

// Append adds a single step as the next sequential entry.
func (b *Builder) Append(step Step) error {
	return b.appendStage([]Step{step})
}

// AppendParallel adds a stage of steps that run concurrently.
func (b *Builder) AppendParallel(steps ...Step) error {
	return b.appendStage(steps)
}

func (b *Builder) appendStage(steps []Step) error {
	// An empty stage would disconnect the graph; there is nothing
	// sensible it could mean.
	if len(steps) == 0 {
		return fmt.Errorf("empty stage")
	}

	added := make([]int64, 0, len(steps))
	for _, step := range steps {
		name := step.Name()
		if name == "" {
			return fmt.Errorf("step has no name")
		}
		if b.names.Contains(name) {
			return fmt.Errorf("step with name %q already exists", name)
		}
		b.names.Insert(name)

		node := b.graph.NewNode()
		if err := node.SetAttribute(encoding.Attribute{Key: "label", Value: string(name)}); err != nil {
			return fmt.Errorf("set node label: %w", err)
		}
		b.graph.AddNode(node)
		b.steps[node.ID()] = step

		for _, prev := range b.lastAdded {
			b.graph.SetEdge(b.graph.NewEdge(b.graph.Node(prev), node))
		}
		added = append(added, node.ID())
	}

	if len(b.firstAdded) == 0 {
		b.firstAdded = added
	}
	b.lastAdded = added
	return nil
}

// Build freezes the definition. The builder may keep being used
// afterwards; the returned definition is an immutable snapshot and is
// not affected by later appends.
func (b *Builder) Build() (*Definition, error) {
	if len(b.firstAdded) == 0 {
		return nil, fmt.Errorf("definition has no steps")
	}

	levels, err := b.executionLevels()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(levels))
	for _, level := range levels {
		if len(level) == 1 {
			entries = append(entries, Entry{Step: b.steps[level[0]]})
			continue
		}
		group := make([]Step, 0, len(level))
		for _, id := range level {
			group = append(group, b.steps[id])
		}
		entries = append(entries, Entry{Group: group})
	}

	dot, err := b.graph.MarshalDOT(string(b.name))
	if err != nil {
		return nil, err
	}

	return &Definition{
		name:        b.name,
		description: b.description,
		entries:     entries,
		dot:         dot,
	}, nil
}

// executionLevels groups the graph's nodes into dependency levels: a node
// joins a level once every node it depends on is in an earlier level.
// Stages appended together always land in the same level, ordered by node
// ID, which matches declaration order.
func (b *Builder) executionLevels() ([][]int64, error) {
	dependencies := make(map[int64][]int64, len(b.steps))
	for id := range b.steps {
		var deps []int64
		predecessors := b.graph.To(id)
		for predecessors.Next() {
			deps = append(deps, predecessors.Node().ID())
		}
		dependencies[id] = deps
	}

	remaining := make([]int64, 0, len(dependencies))
	for id := range dependencies {
		remaining = append(remaining, id)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })

	placed := make(map[int64]bool, len(remaining))
	var levels [][]int64
	for len(placed) < len(remaining) {
		var level []int64
		for _, id := range remaining {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range dependencies[id] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("unable to order steps: dependency cycle")
		}
		for _, id := range level {
			placed[id] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}
