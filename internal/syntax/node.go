// Filename: syntax/node.go
package syntax

import sitter "github.com/smacker/go-tree-sitter"

// Node is a position in a parsed tree together with the source it was parsed
// from. The zero Node is "no node"; check IsNil before navigating. Identity
// is stable for the lifetime of the owning Tree and is what the flow engine
// keys its marked sets on.
type Node struct {
	inner *sitter.Node
	src   []byte
}

// IsNil reports whether the node is absent (missing child, walked off the
// tree, etc.).
func (n Node) IsNil() bool { return n.inner == nil }

// ID returns the node's identity within its tree.
func (n Node) ID() uintptr {
	if n.inner == nil {
		return 0
	}
	return n.inner.ID()
}

// Equal reports whether two handles point at the same tree position.
func (n Node) Equal(o Node) bool { return n.ID() == o.ID() && n.inner != nil }

// Kind returns the grammar type of the node, e.g. "method_invocation".
func (n Node) Kind() string {
	if n.inner == nil {
		return ""
	}
	return n.inner.Type()
}

// Content returns the source text the node spans.
func (n Node) Content() string {
	if n.inner == nil {
		return ""
	}
	return n.inner.Content(n.src)
}

// IsNamed reports whether the node is a named grammar node rather than an
// anonymous token such as "(" or "+".
func (n Node) IsNamed() bool { return n.inner != nil && n.inner.IsNamed() }

// StartByte returns the byte offset the node starts at.
func (n Node) StartByte() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.StartByte())
}

// EndByte returns the byte offset just past the node.
func (n Node) EndByte() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.EndByte())
}

// Line returns the 1-based line the node starts on.
func (n Node) Line() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.StartPoint().Row) + 1
}

// Column returns the 0-based column the node starts at.
func (n Node) Column() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.StartPoint().Column)
}

// Parent returns the enclosing node, or a nil Node at the root.
func (n Node) Parent() Node {
	if n.inner == nil {
		return Node{}
	}
	return Node{inner: n.inner.Parent(), src: n.src}
}

// ChildByField returns the child bound to a grammar field such as "name",
// "object" or "arguments".
func (n Node) ChildByField(field string) Node {
	if n.inner == nil {
		return Node{}
	}
	return Node{inner: n.inner.ChildByFieldName(field), src: n.src}
}

// Child returns the i-th child, counting anonymous tokens.
func (n Node) Child(i int) Node {
	if n.inner == nil {
		return Node{}
	}
	return Node{inner: n.inner.Child(i), src: n.src}
}

// ChildCount counts all children including anonymous tokens.
func (n Node) ChildCount() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.ChildCount())
}

// NamedChild returns the i-th named child.
func (n Node) NamedChild(i int) Node {
	if n.inner == nil {
		return Node{}
	}
	return Node{inner: n.inner.NamedChild(i), src: n.src}
}

// NamedChildCount counts named children only.
func (n Node) NamedChildCount() int {
	if n.inner == nil {
		return 0
	}
	return int(n.inner.NamedChildCount())
}

// NamedChildren collects the named children into a slice.
func (n Node) NamedChildren() []Node {
	count := n.NamedChildCount()
	if count == 0 {
		return nil
	}
	children := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		children = append(children, n.NamedChild(i))
	}
	return children
}

// ChildrenByField collects every child bound to the given repeated grammar
// field, e.g. the "declarator" children of a local_variable_declaration.
func (n Node) ChildrenByField(field string) []Node {
	if n.inner == nil {
		return nil
	}
	var out []Node
	cursor := sitter.NewTreeCursor(n.inner)
	defer cursor.Close()
	if !cursor.GoToFirstChild() {
		return nil
	}
	for {
		if cursor.CurrentFieldName() == field {
			out = append(out, Node{inner: cursor.CurrentNode(), src: n.src})
		}
		if !cursor.GoToNextSibling() {
			break
		}
	}
	return out
}

// Contains reports whether o lies within n's span (inclusive of n itself).
func (n Node) Contains(o Node) bool {
	if n.inner == nil || o.inner == nil {
		return false
	}
	return n.StartByte() <= o.StartByte() && o.EndByte() <= n.EndByte()
}
