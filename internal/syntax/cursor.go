// Filename: syntax/cursor.go
package syntax

// Cursor is a lightweight handle on one tree position plus the ancestor
// chain above it. Cursors are cheap to derive and never share mutable state:
// every traversal owns the cursors it creates.
type Cursor struct {
	node Node
}

// NewCursor positions a cursor at n.
func NewCursor(n Node) *Cursor {
	return &Cursor{node: n}
}

// Node returns the position the cursor is bound to.
func (c *Cursor) Node() Node { return c.node }

// At derives an independent cursor for another node in the same tree.
func (c *Cursor) At(n Node) *Cursor { return &Cursor{node: n} }

// Parent returns the immediate ancestor, or a nil Node at the root.
func (c *Cursor) Parent() Node { return c.node.Parent() }

// FirstAncestor walks up the parent chain, excluding the node itself, and
// returns the nearest ancestor satisfying pred.
func (c *Cursor) FirstAncestor(pred func(Node) bool) (Node, bool) {
	for p := c.node.Parent(); !p.IsNil(); p = p.Parent() {
		if pred(p) {
			return p, true
		}
	}
	return Node{}, false
}

// FirstAncestorOfKind is FirstAncestor specialized to a grammar kind.
func (c *Cursor) FirstAncestorOfKind(kind string) (Node, bool) {
	return c.FirstAncestor(func(n Node) bool { return n.Kind() == kind })
}

// EnclosingStatement returns the statement-level ancestor of the cursor's
// node: the outermost expression chain ends where the parent stops being an
// expression (expression_statement, declarator, argument list owner, ...).
func (c *Cursor) EnclosingStatement() (Node, bool) {
	return c.FirstAncestor(func(n Node) bool {
		switch n.Kind() {
		case "expression_statement", "local_variable_declaration", "return_statement",
			"if_statement", "while_statement", "for_statement", "enhanced_for_statement",
			"throw_statement", "resource":
			return true
		}
		return false
	})
}
