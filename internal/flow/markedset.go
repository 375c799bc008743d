// Filename: flow/markedset.go
package flow

import (
	"sort"

	"github.com/xkilldash9x/lancet/internal/syntax"
)

// MarkedSet is the engine's output: every expression taint was observed at,
// deduplicated by node identity. It is owned by the caller once Analyze
// returns.
type MarkedSet struct {
	byID  map[uintptr]syntax.Node
	nodes []syntax.Node
}

// NewMarkedSet returns an empty set.
func NewMarkedSet() *MarkedSet {
	return &MarkedSet{byID: make(map[uintptr]syntax.Node)}
}

// Add inserts a node and reports whether it was newly added. Nil nodes are
// ignored.
func (m *MarkedSet) Add(n syntax.Node) bool {
	if n.IsNil() {
		return false
	}
	if _, ok := m.byID[n.ID()]; ok {
		return false
	}
	m.byID[n.ID()] = n
	m.nodes = append(m.nodes, n)
	return true
}

// Has reports whether the node is marked.
func (m *MarkedSet) Has(n syntax.Node) bool {
	_, ok := m.byID[n.ID()]
	return ok && !n.IsNil()
}

// Len returns the number of marked expressions.
func (m *MarkedSet) Len() int { return len(m.nodes) }

// Nodes returns the marked expressions ordered by source position. When two
// spans start at the same byte the wider one sorts first, so an annotating
// consumer emits the outer expression's marker before the inner one's.
func (m *MarkedSet) Nodes() []syntax.Node {
	out := append([]syntax.Node(nil), m.nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartByte() != out[j].StartByte() {
			return out[i].StartByte() < out[j].StartByte()
		}
		return out[i].EndByte() > out[j].EndByte()
	})
	return out
}
