// Filename: flow/graph.go
package flow

import "github.com/xkilldash9x/lancet/internal/syntax"

// FlowGraph records one propagation step per edge: taint observed at `from`
// was observed at `to` next. It lives for a single Analyze call and exists so
// result consumers can reconstruct how a marked expression was reached.
type FlowGraph struct {
	nodes map[uintptr]syntax.Node
	succ  map[uintptr][]uintptr
	// pred keeps the first inbound edge per node, which is the path the
	// forward pass discovered it through.
	pred  map[uintptr]uintptr
	edges int
}

// NewFlowGraph returns an empty graph.
func NewFlowGraph() *FlowGraph {
	return &FlowGraph{
		nodes: make(map[uintptr]syntax.Node),
		succ:  make(map[uintptr][]uintptr),
		pred:  make(map[uintptr]uintptr),
	}
}

// AddNode registers a propagation root.
func (g *FlowGraph) AddNode(n syntax.Node) {
	if n.IsNil() {
		return
	}
	if _, ok := g.nodes[n.ID()]; !ok {
		g.nodes[n.ID()] = n
	}
}

// AddEdge records a propagation step, ignoring duplicates.
func (g *FlowGraph) AddEdge(from, to syntax.Node) {
	if from.IsNil() || to.IsNil() {
		return
	}
	g.AddNode(from)
	g.AddNode(to)
	for _, s := range g.succ[from.ID()] {
		if s == to.ID() {
			return
		}
	}
	g.succ[from.ID()] = append(g.succ[from.ID()], to.ID())
	if _, ok := g.pred[to.ID()]; !ok {
		g.pred[to.ID()] = from.ID()
	}
	g.edges++
}

// Len returns the node count.
func (g *FlowGraph) Len() int { return len(g.nodes) }

// Edges returns the edge count.
func (g *FlowGraph) Edges() int { return g.edges }

// PathTo reconstructs the discovery path from a propagation root to n,
// inclusive. It returns nil for nodes the graph never saw.
func (g *FlowGraph) PathTo(n syntax.Node) []syntax.Node {
	if _, ok := g.nodes[n.ID()]; !ok {
		return nil
	}
	var rev []syntax.Node
	cur := n
	for {
		rev = append(rev, cur)
		if len(rev) > len(g.nodes) {
			break
		}
		p, ok := g.pred[cur.ID()]
		if !ok {
			break
		}
		cur = g.nodes[p]
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
