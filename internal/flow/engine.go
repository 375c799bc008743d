// Filename: flow/engine.go
// Package flow implements the local taint propagation engine: a single
// forward pass over one method or block scope that seeds at source
// expressions, follows assignments, call arguments, receivers and binary
// concatenation in program order, consults the external model store for
// library calls, and stops branches at sanitizers. There is no fixpoint and
// no backward flow; a statement is processed exactly once.
package flow

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/flowspec"
	"github.com/xkilldash9x/lancet/internal/models"
	"github.com/xkilldash9x/lancet/internal/syntax"
	"github.com/xkilldash9x/lancet/internal/trait"
)

// Analyzer holds the collaborators shared by every scope analysis in a run:
// the flow specification, the external model store and a logger. All three
// are read-only here, so one Analyzer serves concurrent Analyze calls.
type Analyzer struct {
	spec   flowspec.Spec
	store  *models.Store
	logger *zap.Logger
}

// New builds an Analyzer. store may be nil to run with builtin rules only.
func New(spec flowspec.Spec, store *models.Store, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{spec: spec, store: store, logger: logger.Named("flow")}
}

// SinkHit records a marked expression the specification classified as a
// sink. Sinks are informational: they never alter propagation, and the
// marked set is full forward reachability whether or not anything matched.
type SinkHit struct {
	Node syntax.Node
}

// Result is what one scope analysis produces. Marked is every expression
// taint reached; Sinks the subset the spec flagged; Graph the step-by-step
// evidence. The caller owns all three.
type Result struct {
	Marked *MarkedSet
	Sinks  []SinkHit
	Graph  *FlowGraph
}

// Analyze runs the forward pass over one scope: a method, constructor or
// initializer declaration, or any block. It never fails; scopes with no
// taint yield an empty set.
func (a *Analyzer) Analyze(scope syntax.Node, types *trait.TypeInfo) *Result {
	run := &analysis{
		spec:     a.spec,
		store:    a.store,
		types:    types,
		logger:   a.logger,
		arena:    make(map[uintptr]*varTaint),
		bindings: make(map[string]uintptr),
		marked:   NewMarkedSet(),
		graph:    NewFlowGraph(),
	}
	if run.types == nil {
		run.types = trait.NewTypeInfo(syntax.Node{})
	}

	body := scope
	switch scope.Kind() {
	case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
		run.declareParameters(scope.ChildByField("parameters"))
		if b := scope.ChildByField("body"); !b.IsNil() {
			body = b
		}
	case "static_initializer":
		for i := 0; i < scope.NamedChildCount(); i++ {
			if c := scope.NamedChild(i); c.Kind() == "block" {
				body = c
				break
			}
		}
	}
	if !body.IsNil() {
		run.visit(body)
	}

	a.logger.Debug("scope analyzed",
		zap.Int("marked", run.marked.Len()),
		zap.Int("sinks", len(run.sinks)),
		zap.Int("steps", run.graph.Edges()))
	return &Result{Marked: run.marked, Sinks: run.sinks, Graph: run.graph}
}

// varTaint is one entry of the per-variable arena, keyed by the declarator
// name node's identity.
type varTaint struct {
	name         string
	declaredType string
	tainted      bool
	// taintedFrom is the byte offset the taint takes effect at; reads
	// before it saw the previous value.
	taintedFrom int
	// origin is the marked expression the taint last flowed out of, used
	// to wire graph edges into later reads.
	origin syntax.Node
}

// analysis is the per-Analyze state.
type analysis struct {
	spec     flowspec.Spec
	store    *models.Store
	types    *trait.TypeInfo
	logger   *zap.Logger
	arena    map[uintptr]*varTaint
	bindings map[string]uintptr
	marked   *MarkedSet
	graph    *FlowGraph
	sinks    []SinkHit
}

// visit walks the scope in program order. Declarations update the arena,
// source expressions seed propagation, and reads of tainted variables extend
// it. Everything else taint touches is reached through propagate, not
// through the walk.
func (s *analysis) visit(n syntax.Node) {
	switch n.Kind() {
	case "local_variable_declaration":
		s.declareLocals(n)
	case "resource":
		s.declareResource(n)
	case "enhanced_for_statement":
		s.declare(n.ChildByField("name"), n.ChildByField("type").Content())
	case "catch_formal_parameter":
		s.declareCatch(n)
	case "lambda_expression", "class_declaration", "interface_declaration",
		"enum_declaration", "record_declaration", "annotation_type_declaration",
		"method_declaration", "constructor_declaration":
		// Deferred or nested executable scopes are analyzed on their own;
		// their statements are not in this scope's program order.
		return
	}

	if s.spec.IsSource(n, syntax.NewCursor(n)) {
		s.reach(n, syntax.Node{})
	} else if n.Kind() == "identifier" {
		s.visitIdentifier(n)
	}

	for i := 0; i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() == "class_body" {
			continue
		}
		s.visit(child)
	}

	if n.Kind() == "assignment_expression" {
		s.finishAssignment(n)
	}
}

// visitIdentifier marks reads of tainted variables.
func (s *analysis) visitIdentifier(n syntax.Node) {
	if !isValueRead(n) {
		return
	}
	v := s.binding(n.Content())
	if v == nil || !v.tainted || n.StartByte() < v.taintedFrom {
		return
	}
	s.reach(n, v.origin)
}

// isValueRead reports whether an identifier occurrence reads a value, as
// opposed to naming a declaration, a write target, a method or a field.
func isValueRead(n syntax.Node) bool {
	parent := n.Parent()
	if parent.IsNil() {
		return false
	}
	switch parent.Kind() {
	case "variable_declarator", "resource":
		return parent.ChildByField("value").Equal(n)
	case "assignment_expression":
		return !parent.ChildByField("left").Equal(n)
	case "method_invocation":
		return !parent.ChildByField("name").Equal(n)
	case "field_access":
		return parent.ChildByField("object").Equal(n)
	case "enhanced_for_statement":
		return parent.ChildByField("value").Equal(n)
	case "method_declaration", "constructor_declaration", "formal_parameter",
		"catch_formal_parameter", "labeled_statement", "break_statement",
		"continue_statement":
		return false
	}
	return true
}

// reach records that taint arrived at expr, wires the discovery edge, and
// unless the expression sanitizes the value resolves where it flows next.
// Re-reaching a marked expression only adds the edge; its consumers were
// already resolved.
func (s *analysis) reach(expr, from syntax.Node) {
	if expr.IsNil() {
		return
	}
	if from.IsNil() {
		s.graph.AddNode(expr)
	} else {
		s.graph.AddEdge(from, expr)
	}
	if !s.marked.Add(expr) {
		return
	}

	c := syntax.NewCursor(expr)
	if s.spec.IsSink(expr, c) {
		s.sinks = append(s.sinks, SinkHit{Node: expr})
	}
	if s.spec.IsSanitizer(expr, c) {
		s.logger.Debug("sanitizer gates propagation",
			zap.Int("line", expr.Line()), zap.String("expr", expr.Content()))
		return
	}
	s.propagate(expr)
}

// propagate pushes taint from a marked expression into whatever consumes
// its value. Positions no rule understands end the branch silently.
func (s *analysis) propagate(expr syntax.Node) {
	ctx, err := trait.AsExprContext(syntax.NewCursor(expr))
	if err != nil {
		return
	}
	switch ctx.Kind() {
	case trait.ConsumerAssignment:
		s.propagateAssignment(expr, ctx)
	case trait.ConsumerOperand:
		s.propagateOperand(expr, ctx)
	case trait.ConsumerArgument:
		s.propagateArgument(expr, ctx)
	case trait.ConsumerReceiver:
		s.propagateReceiver(expr, ctx)
	case trait.ConsumerReturn:
		// The value leaves the scope; intraprocedural flow ends here.
	}
}

// propagateAssignment taints the variable a declarator, resource clause or
// assignment binds; its later reads become propagation points.
func (s *analysis) propagateAssignment(expr syntax.Node, ctx *trait.ExprContext) {
	target, ok := ctx.Target()
	if !ok || target.Kind() != "identifier" {
		// Field and array element writes are heap aliasing, out of scope.
		return
	}
	consumer := ctx.Consumer()
	s.taintVariable(target.Content(), expr, consumer.EndByte())

	// A Java assignment is itself an expression; when consumed it carries
	// the assigned value onward.
	if consumer.Kind() == "assignment_expression" && consumer.Parent().Kind() != "expression_statement" {
		s.reach(consumer, expr)
	}
}

// propagateOperand handles string/value concatenation: a binary add with a
// tainted operand is tainted as a whole. Other operators do not carry taint.
func (s *analysis) propagateOperand(expr syntax.Node, ctx *trait.ExprContext) {
	bin := ctx.Consumer()
	if bin.ChildByField("operator").Content() != "+" {
		return
	}
	s.reach(bin, expr)
}

// propagateArgument handles taint entering a call through an argument
// position: external model rows first, then the builtin constructor, bulk
// copy and mutating builder rules.
func (s *analysis) propagateArgument(expr syntax.Node, ctx *trait.ExprContext) {
	call, err := trait.AsCall(syntax.NewCursor(ctx.Consumer()))
	if err != nil {
		return
	}
	idx, ok := ctx.ArgIndex()
	if !ok {
		return
	}

	if rows, matched := s.modelRows(call); matched {
		s.applyModels(rows, call, expr, idx)
		return
	}

	switch {
	case call.IsConstructor():
		// A tainted argument taints the constructed value.
		s.reach(call.Node(), expr)
	case s.isBulkCopy(call) && idx == 0:
		s.taintDestination(call.Arguments()[2], expr, call.Node().EndByte())
	default:
		if recv, ok := call.Receiver(); ok && s.mutatorRuleFor(call) != nil {
			// The receiver handler applies the mutation semantics.
			s.reach(recv, expr)
		}
	}
}

// propagateReceiver handles taint on a call receiver: external model rows
// with the receiver convention, then the builtin mutator and pass-through
// rules.
func (s *analysis) propagateReceiver(expr syntax.Node, ctx *trait.ExprContext) {
	call, err := trait.AsCall(syntax.NewCursor(ctx.Consumer()))
	if err != nil {
		return
	}

	if rows, matched := s.modelRows(call); matched {
		for _, row := range rows {
			r, ok := row.ArgumentRange()
			if !ok || !r.Contains(models.ReceiverArgument) {
				continue
			}
			if call.ValueConsumed() {
				s.reach(call.Node(), expr)
			}
			return
		}
		// Rows claimed the call without a receiver fact; builtins stay
		// suppressed.
		return
	}

	if rule := s.mutatorRuleFor(call); rule != nil {
		s.applyMutator(rule, call, expr)
		return
	}
	if passThroughMethods[call.Name()] {
		s.reach(call.Node(), expr)
	}
}

// applyMutator implements mutation semantics: the base receiver variable is
// tainted from the call onward, and fluent builders carry the taint out
// through the call expression too.
func (s *analysis) applyMutator(rule *mutatorRule, call *trait.Call, expr syntax.Node) {
	callNode := call.Node()
	origin := expr
	if rule.returnsSelf {
		origin = callNode
	}
	if base, ok := call.BaseReceiver(); ok && base.Kind() == "identifier" && !s.isSanitizer(callNode) {
		s.taintVariable(base.Content(), origin, callNode.EndByte())
	}
	if rule.returnsSelf {
		s.reach(callNode, expr)
	}
}

// applyModels applies the first matching row whose argument range covers the
// tainted position.
func (s *analysis) applyModels(rows []models.ExternalModel, call *trait.Call, expr syntax.Node, idx int) {
	for _, row := range rows {
		r, ok := row.ArgumentRange()
		if !ok || !r.Contains(idx) {
			continue
		}
		s.applyModelFlow(call, expr, idx, r)
		return
	}
}

// applyModelFlow interprets a matched range: a consumed call value receives
// the taint; a discarded one pushes it into the last in-range argument, the
// copy-style destination.
func (s *analysis) applyModelFlow(call *trait.Call, expr syntax.Node, idx int, r models.ArgumentRange) {
	if call.IsConstructor() || call.ValueConsumed() {
		s.reach(call.Node(), expr)
		return
	}
	args := call.Arguments()
	last := r.End
	if last > len(args)-1 {
		last = len(args) - 1
	}
	if last < 0 || last == idx {
		return
	}
	s.taintDestination(args[last], expr, call.Node().EndByte())
}

// taintDestination marks a copy target argument and taints its variable for
// later reads, unless the destination itself sanitizes the value.
func (s *analysis) taintDestination(dest, from syntax.Node, after int) {
	s.reach(dest, from)
	if dest.Kind() != "identifier" || s.isSanitizer(dest) {
		return
	}
	s.taintVariable(dest.Content(), dest, after)
}

// modelRows resolves the call's owner and consults the store. matched is
// true when any row shares the call's identity, with or without a usable
// argument range; such rows take precedence over every builtin rule.
func (s *analysis) modelRows(call *trait.Call) ([]models.ExternalModel, bool) {
	if s.store == nil {
		return nil, false
	}
	owner := s.callOwner(call)
	if owner == "" {
		return nil, false
	}
	rows := s.store.Lookup(owner, call.Name(), s.argumentTypes(call), func(rowOwner string) bool {
		return s.types.AssignableTo(owner, rowOwner)
	})
	return rows, len(rows) > 0
}

// callOwner approximates the call's fully qualified target type: the
// constructed type for constructors, the declared type of a variable
// receiver, or the import-resolved name of a class-shaped receiver.
func (s *analysis) callOwner(call *trait.Call) string {
	if call.IsConstructor() {
		return s.types.Qualify(call.TypeName())
	}
	recv, ok := call.BaseReceiver()
	if !ok {
		return ""
	}
	switch recv.Kind() {
	case "identifier":
		if v := s.binding(recv.Content()); v != nil && v.declaredType != "" {
			return s.types.Qualify(v.declaredType)
		}
		return s.types.Qualify(recv.Content())
	case "field_access", "scoped_identifier":
		return s.types.Qualify(recv.Content())
	case "object_creation_expression":
		return s.types.Qualify(recv.ChildByField("type").Content())
	case "string_literal":
		return "java.lang.String"
	}
	return ""
}

// argumentTypes derives a best-effort static type per argument; "" entries
// act as wildcards in signature matching.
func (s *analysis) argumentTypes(call *trait.Call) []string {
	args := call.Arguments()
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = s.staticType(arg)
	}
	return out
}

func (s *analysis) staticType(expr syntax.Node) string {
	switch expr.Kind() {
	case "identifier":
		if v := s.binding(expr.Content()); v != nil {
			return trait.EraseType(v.declaredType)
		}
	case "string_literal":
		return "String"
	case "character_literal":
		return "char"
	case "decimal_integer_literal", "hex_integer_literal",
		"octal_integer_literal", "binary_integer_literal":
		return "int"
	case "decimal_floating_point_literal":
		return "double"
	case "true", "false":
		return "boolean"
	case "object_creation_expression":
		return trait.EraseType(expr.ChildByField("type").Content())
	}
	return ""
}

// finishAssignment applies the strong update once the right side has been
// fully walked: a plain assignment that did not deliver taint clears the
// variable. Compound assignments keep reading the old value, so existing
// taint survives them.
func (s *analysis) finishAssignment(n syntax.Node) {
	left := n.ChildByField("left")
	if left.Kind() != "identifier" {
		return
	}
	v := s.binding(left.Content())
	if v == nil || !v.tainted {
		return
	}
	if v.taintedFrom >= n.StartByte() {
		return // this assignment is what tainted it
	}
	if n.ChildByField("operator").Content() != "=" {
		return
	}
	v.tainted = false
	s.logger.Debug("variable cleared", zap.String("var", v.name), zap.Int("line", n.Line()))
}

func (s *analysis) taintVariable(name string, origin syntax.Node, from int) {
	v := s.binding(name)
	if v == nil {
		return
	}
	v.tainted = true
	v.taintedFrom = from
	v.origin = origin
	s.logger.Debug("variable tainted", zap.String("var", name), zap.Int("line", origin.Line()))
}

func (s *analysis) isSanitizer(n syntax.Node) bool {
	return s.spec.IsSanitizer(n, syntax.NewCursor(n))
}

// declare registers a variable in the arena and makes it the binding its
// name resolves to from here on. Redeclaring a name in a later sibling block
// shadows the previous binding, which is exactly program order.
func (s *analysis) declare(name syntax.Node, typeName string) {
	if name.IsNil() || name.Kind() != "identifier" {
		return
	}
	id := name.ID()
	s.arena[id] = &varTaint{name: name.Content(), declaredType: typeName}
	s.bindings[name.Content()] = id
}

func (s *analysis) binding(name string) *varTaint {
	id, ok := s.bindings[name]
	if !ok {
		return nil
	}
	return s.arena[id]
}

func (s *analysis) declareLocals(n syntax.Node) {
	typeName := n.ChildByField("type").Content()
	for _, decl := range n.ChildrenByField("declarator") {
		s.declare(decl.ChildByField("name"), typeName)
	}
}

// declareResource registers a try-with-resources variable; its taint spans
// the guarded body and the implicit close.
func (s *analysis) declareResource(n syntax.Node) {
	name := n.ChildByField("name")
	if name.IsNil() {
		return // `try (existingVar)` form
	}
	s.declare(name, n.ChildByField("type").Content())
}

func (s *analysis) declareCatch(n syntax.Node) {
	var typ string
	for i := 0; i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "catch_type" {
			typ = c.Content()
		}
	}
	s.declare(n.ChildByField("name"), typ)
}

func (s *analysis) declareParameters(params syntax.Node) {
	if params.IsNil() {
		return
	}
	for i := 0; i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		switch p.Kind() {
		case "formal_parameter":
			s.declare(p.ChildByField("name"), p.ChildByField("type").Content())
		case "spread_parameter":
			var typ string
			for j := 0; j < p.NamedChildCount(); j++ {
				c := p.NamedChild(j)
				if c.Kind() == "variable_declarator" {
					s.declare(c.ChildByField("name"), typ)
				} else if typ == "" {
					typ = c.Content()
				}
			}
		}
	}
}
