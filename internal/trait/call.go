// Filename: trait/call.go
package trait

import "github.com/xkilldash9x/lancet/internal/syntax"

// ConstructorName is the reserved callee name reported for constructor
// invocations, so that `new T(..)` and a method that happens to be called
// like the type never collide.
const ConstructorName = "<constructor>"

// Call interprets a cursor as an invocation: a method call or a constructor
// call. It exposes the callee name, the receiver expression, the ordered
// argument expressions and whether the produced value is consumed.
type Call struct {
	node syntax.Node
	name string
	// typeName is the raw constructed type text for constructor calls.
	typeName string
	receiver syntax.Node
	args     []syntax.Node
	ctor     bool
}

type callFactory struct{}

// CallFactory builds Call views. It claims method_invocation and
// object_creation_expression nodes.
var CallFactory Factory = callFactory{}

func (callFactory) Name() string { return "call" }

func (callFactory) Build(c *syntax.Cursor) (View, error) {
	call, err := AsCall(c)
	if err != nil {
		return nil, err
	}
	return call, nil
}

// AsCall is the typed form of CallFactory.Build.
func AsCall(c *syntax.Cursor) (*Call, error) {
	n := c.Node()
	switch n.Kind() {
	case "method_invocation":
		nameNode := n.ChildByField("name")
		if nameNode.IsNil() {
			return nil, newMiss(n, "call", "method_invocation without a name")
		}
		return &Call{
			node:     n,
			name:     nameNode.Content(),
			receiver: n.ChildByField("object"),
			args:     argumentList(n),
		}, nil

	case "object_creation_expression":
		typeNode := n.ChildByField("type")
		if typeNode.IsNil() {
			return nil, newMiss(n, "call", "object_creation_expression without a type")
		}
		return &Call{
			node:     n,
			name:     ConstructorName,
			typeName: typeNode.Content(),
			args:     argumentList(n),
			ctor:     true,
		}, nil
	}
	return nil, newMiss(n, "call", "not an invocation")
}

func argumentList(n syntax.Node) []syntax.Node {
	argsNode := n.ChildByField("arguments")
	if argsNode.IsNil() {
		return nil
	}
	return argsNode.NamedChildren()
}

// Node returns the invocation expression itself.
func (v *Call) Node() syntax.Node { return v.node }

// Name returns the invoked method name, or ConstructorName for constructor
// calls.
func (v *Call) Name() string { return v.name }

// IsConstructor reports whether the call constructs a new object.
func (v *Call) IsConstructor() bool { return v.ctor }

// TypeName returns the raw constructed type text (generics included) for
// constructor calls and "" otherwise.
func (v *Call) TypeName() string { return v.typeName }

// Receiver returns the receiver expression. ok is false for constructor
// calls and for implicit-receiver invocations such as `helper(x)`.
func (v *Call) Receiver() (syntax.Node, bool) {
	if v.receiver.IsNil() {
		return syntax.Node{}, false
	}
	return v.receiver, true
}

// Arguments returns the ordered argument expressions.
func (v *Call) Arguments() []syntax.Node { return v.args }

// BaseReceiver descends a fluent chain to the expression the chain hangs
// off: for `sb.append(a).append(b)` it returns the `sb` identifier. For
// receiverless calls ok is false.
func (v *Call) BaseReceiver() (syntax.Node, bool) {
	recv := v.receiver
	for !recv.IsNil() && recv.Kind() == "method_invocation" {
		recv = recv.ChildByField("object")
	}
	if recv.IsNil() {
		return syntax.Node{}, false
	}
	return recv, true
}

// ValueConsumed reports whether the call's result feeds an enclosing
// expression. A call whose direct parent is an expression_statement is in
// statement position and its value is discarded.
func (v *Call) ValueConsumed() bool {
	return v.node.Parent().Kind() != "expression_statement"
}
