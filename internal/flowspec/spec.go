// Filename: flowspec/spec.go
// Package flowspec defines the classification contract the flow engine
// consumes: which expressions originate data of interest (sources), which
// consume it (sinks), and which neutralize it (sanitizers). A specification
// can be assembled programmatically from predicates or compiled from a YAML
// rule file.
package flowspec

import "github.com/xkilldash9x/lancet/internal/syntax"

// Spec classifies expressions. Implementations must be safe for concurrent
// use: one Spec is shared by every parallel scope analysis in a run.
type Spec interface {
	IsSource(n syntax.Node, c *syntax.Cursor) bool
	IsSink(n syntax.Node, c *syntax.Cursor) bool
	IsSanitizer(n syntax.Node, c *syntax.Cursor) bool
}

// Predicates adapts three plain functions into a Spec. Nil fields never
// match, so a sources-only specification is just {Source: fn}.
type Predicates struct {
	Source    func(n syntax.Node, c *syntax.Cursor) bool
	Sink      func(n syntax.Node, c *syntax.Cursor) bool
	Sanitizer func(n syntax.Node, c *syntax.Cursor) bool
}

func (p Predicates) IsSource(n syntax.Node, c *syntax.Cursor) bool {
	return p.Source != nil && p.Source(n, c)
}

func (p Predicates) IsSink(n syntax.Node, c *syntax.Cursor) bool {
	return p.Sink != nil && p.Sink(n, c)
}

func (p Predicates) IsSanitizer(n syntax.Node, c *syntax.Cursor) bool {
	return p.Sanitizer != nil && p.Sanitizer(n, c)
}
