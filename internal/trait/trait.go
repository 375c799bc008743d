// Filename: trait/trait.go
// Package trait turns raw tree positions into typed semantic facades. A view
// is computed on demand from a cursor and never stored; the analysis layers
// ask "is this position a call?" here instead of pattern-matching node
// shapes themselves.
package trait

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/lancet/internal/syntax"
)

// View is the capability shared by every typed facade: it knows the node it
// interprets.
type View interface {
	Node() syntax.Node
}

// Factory attempts one interpretation of a cursor. Build returns a
// *MissError when the position does not represent the factory's construct;
// that is a normal negative result, not a failure.
type Factory interface {
	Name() string
	Build(c *syntax.Cursor) (View, error)
}

// Miss records one factory that declined a cursor.
type Miss struct {
	Factory string
	Reason  string
}

// MissError accumulates every attempted interpretation of a cursor. Callers
// check for it with IsMiss and treat it as "none of the requested views
// apply here".
type MissError struct {
	Kind   string
	Misses []Miss
}

func (e *MissError) Error() string {
	if len(e.Misses) == 1 {
		return fmt.Sprintf("no %s view at %s node: %s", e.Misses[0].Factory, e.Kind, e.Misses[0].Reason)
	}
	parts := make([]string, 0, len(e.Misses))
	for _, m := range e.Misses {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Factory, m.Reason))
	}
	return fmt.Sprintf("no view at %s node (%s)", e.Kind, strings.Join(parts, "; "))
}

// IsMiss reports whether err is a view-resolution miss.
func IsMiss(err error) bool {
	var miss *MissError
	return errors.As(err, &miss)
}

func newMiss(node syntax.Node, factory, reason string) *MissError {
	return &MissError{
		Kind:   node.Kind(),
		Misses: []Miss{{Factory: factory, Reason: reason}},
	}
}

// FindFirst tries each factory in order and returns the first view that
// claims the cursor. Ordering is the precedence contract: once a factory
// succeeds no later one is consulted. When every factory declines, the
// misses are folded into a single *MissError for diagnostics.
func FindFirst(c *syntax.Cursor, factories ...Factory) (View, error) {
	acc := &MissError{Kind: c.Node().Kind()}
	for _, f := range factories {
		view, err := f.Build(c)
		if err == nil {
			return view, nil
		}
		var miss *MissError
		if errors.As(err, &miss) {
			acc.Misses = append(acc.Misses, miss.Misses...)
			continue
		}
		// A non-miss error from a factory is a genuine fault and stops the
		// chain.
		return nil, err
	}
	return nil, acc
}
