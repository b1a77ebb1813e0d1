// Package dag wraps gonum's directed graph with DOT attribute support so
// a saga definition can be inspected as Graphviz output.
package dag

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// Graph is a directed graph whose nodes and edges carry DOT attributes.
type Graph struct {
	*simple.DirectedGraph
	attrs encoding.Attributes
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{DirectedGraph: simple.NewDirectedGraph()}
}

// NewNode allocates an attribute-carrying node. The caller must still add
// it to the graph with AddNode.
func (g *Graph) NewNode() *Node {
	return &Node{Node: g.DirectedGraph.NewNode()}
}

// NewEdge allocates an attribute-carrying edge between two nodes.
func (g *Graph) NewEdge(from, to graph.Node) graph.Edge {
	return &edge{Edge: g.DirectedGraph.NewEdge(from, to)}
}

// Attributes returns the graph-level DOT attributes.
func (g *Graph) Attributes() []encoding.Attribute {
	return g.attrs.Attributes()
}

// SetAttribute sets a graph-level DOT attribute.
func (g *Graph) SetAttribute(attr encoding.Attribute) error {
	return g.attrs.SetAttribute(attr)
}

// MarshalDOT renders the graph in Graphviz DOT format.
func (g *Graph) MarshalDOT(name string) (string, error) {
	data, err := dot.Marshal(g, name, "", "")
	if err != nil {
		return "", fmt.Errorf("marshal graph to DOT: %w", err)
	}
	return string(data), nil
}

// Node is a graph node with DOT attributes.
type Node struct {
	graph.Node
	attrs encoding.Attributes
}

// Attributes returns the node's DOT attributes.
func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

// SetAttribute sets a DOT attribute on the node.
func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

type edge struct {
	graph.Edge
	attrs encoding.Attributes
}

func (e *edge) Attributes() []encoding.Attribute {
	return e.attrs.Attributes()
}

func (e *edge) SetAttribute(attr encoding.Attribute) error {
	return e.attrs.SetAttribute(attr)
}
