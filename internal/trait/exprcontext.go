// Filename: trait/exprcontext.go
package trait

import (
	"fmt"

	"github.com/xkilldash9x/lancet/internal/syntax"
)

// ConsumerKind classifies what an expression's value feeds.
type ConsumerKind string

const (
	ConsumerAssignment ConsumerKind = "assignment"
	ConsumerArgument   ConsumerKind = "argument"
	ConsumerReceiver   ConsumerKind = "receiver"
	ConsumerOperand    ConsumerKind = "operand"
	ConsumerReturn     ConsumerKind = "return"
)

// ExprContext interprets a cursor as "an expression with a data-consuming
// parent": the governing assignment, the enclosing call argument or receiver
// slot, a binary operand position, or a return. Write positions (the left
// side of an assignment) are not expression contexts.
type ExprContext struct {
	node     syntax.Node
	consumer syntax.Node
	kind     ConsumerKind
	// target is the variable name node for assignment-like consumers.
	target   syntax.Node
	argIndex int
}

type exprContextFactory struct{}

// ExprContextFactory builds ExprContext views.
var ExprContextFactory Factory = exprContextFactory{}

func (exprContextFactory) Name() string { return "expr-context" }

func (exprContextFactory) Build(c *syntax.Cursor) (View, error) {
	ec, err := AsExprContext(c)
	if err != nil {
		return nil, err
	}
	return ec, nil
}

// AsExprContext is the typed form of ExprContextFactory.Build.
func AsExprContext(c *syntax.Cursor) (*ExprContext, error) {
	node := c.Node()
	if node.IsNil() {
		return nil, newMiss(node, "expr-context", "no node")
	}

	// Parenthesized wrappers do not change what consumes the value.
	expr := node
	parent := expr.Parent()
	for !parent.IsNil() && parent.Kind() == "parenthesized_expression" {
		expr = parent
		parent = parent.Parent()
	}
	if parent.IsNil() {
		return nil, newMiss(node, "expr-context", "expression has no parent")
	}

	ctx := &ExprContext{node: node, consumer: parent, argIndex: -1}

	switch parent.Kind() {
	case "variable_declarator":
		if !parent.ChildByField("value").Equal(expr) {
			return nil, newMiss(node, "expr-context", "declarator name is a write position")
		}
		ctx.kind = ConsumerAssignment
		ctx.target = parent.ChildByField("name")

	case "resource":
		if !parent.ChildByField("value").Equal(expr) {
			return nil, newMiss(node, "expr-context", "resource name is a write position")
		}
		ctx.kind = ConsumerAssignment
		ctx.target = parent.ChildByField("name")

	case "assignment_expression":
		if !parent.ChildByField("right").Equal(expr) {
			return nil, newMiss(node, "expr-context", "assignment target is a write position")
		}
		ctx.kind = ConsumerAssignment
		ctx.target = parent.ChildByField("left")

	case "binary_expression":
		ctx.kind = ConsumerOperand

	case "argument_list":
		call := parent.Parent()
		if call.IsNil() {
			return nil, newMiss(node, "expr-context", "argument list without a call")
		}
		ctx.kind = ConsumerArgument
		ctx.consumer = call
		for i, arg := range parent.NamedChildren() {
			if arg.Equal(expr) {
				ctx.argIndex = i
				break
			}
		}

	case "method_invocation":
		if !parent.ChildByField("object").Equal(expr) {
			return nil, newMiss(node, "expr-context", "not in a value position of the invocation")
		}
		ctx.kind = ConsumerReceiver

	case "return_statement":
		ctx.kind = ConsumerReturn

	default:
		return nil, newMiss(node, "expr-context", fmt.Sprintf("%s is not a data consumer", parent.Kind()))
	}

	return ctx, nil
}

// Node returns the expression the context was resolved for.
func (v *ExprContext) Node() syntax.Node { return v.node }

// Consumer returns the construct that consumes the expression's value.
func (v *ExprContext) Consumer() syntax.Node { return v.consumer }

// Kind classifies the consumer.
func (v *ExprContext) Kind() ConsumerKind { return v.kind }

// Target returns the variable name node receiving the value for
// assignment-like consumers.
func (v *ExprContext) Target() (syntax.Node, bool) {
	if v.target.IsNil() {
		return syntax.Node{}, false
	}
	return v.target, true
}

// ArgIndex returns the zero-based argument position for argument consumers.
func (v *ExprContext) ArgIndex() (int, bool) {
	if v.kind != ConsumerArgument || v.argIndex < 0 {
		return 0, false
	}
	return v.argIndex, true
}

// Describe renders the consumer for human-readable evidence.
func (v *ExprContext) Describe() string {
	switch v.kind {
	case ConsumerAssignment:
		if t, ok := v.Target(); ok {
			return fmt.Sprintf("assigned to %q", t.Content())
		}
		return "assigned"
	case ConsumerArgument:
		callee := v.consumer.ChildByField("name").Content()
		if callee == "" && v.consumer.Kind() == "object_creation_expression" {
			callee = "new " + v.consumer.ChildByField("type").Content()
		}
		return fmt.Sprintf("argument %d of %q", v.argIndex, callee)
	case ConsumerReceiver:
		return fmt.Sprintf("receiver of %q", v.consumer.ChildByField("name").Content())
	case ConsumerOperand:
		return "operand of a binary expression"
	case ConsumerReturn:
		return "returned"
	}
	return string(v.kind)
}
