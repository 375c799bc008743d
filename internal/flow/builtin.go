// Filename: flow/builtin.go
// Builtin propagation rules: the syntactic flow facts the engine applies on
// its own when no external model row claims a call. External rows always win
// so a user table can override any of these.
package flow

import "github.com/xkilldash9x/lancet/internal/trait"

// passThroughMethods flow a tainted receiver to the call result: value
// transformations that derive their output from the receiver.
var passThroughMethods = map[string]bool{
	"toString":      true,
	"toLowerCase":   true,
	"toUpperCase":   true,
	"trim":          true,
	"strip":         true,
	"stripLeading":  true,
	"stripTrailing": true,
	"substring":     true,
	"intern":        true,
	"repeat":        true,
}

// mutatorRule describes an append/add/put style method that folds an
// argument into the receiver's value. returnsSelf marks fluent builders
// whose call expression carries the (now tainted) receiver onward.
type mutatorRule struct {
	methods     map[string]bool
	returnsSelf bool
}

// mutators is keyed by the erased declared type of the base receiver.
var mutators = map[string]mutatorRule{
	"StringBuilder": {methods: map[string]bool{"append": true, "insert": true}, returnsSelf: true},
	"StringBuffer":  {methods: map[string]bool{"append": true, "insert": true}, returnsSelf: true},
	"StringJoiner":  {methods: map[string]bool{"add": true, "merge": true}, returnsSelf: true},

	"List":       {methods: map[string]bool{"add": true, "addAll": true}},
	"ArrayList":  {methods: map[string]bool{"add": true, "addAll": true}},
	"LinkedList": {methods: map[string]bool{"add": true, "addAll": true, "push": true, "addFirst": true, "addLast": true}},
	"Set":        {methods: map[string]bool{"add": true, "addAll": true}},
	"HashSet":    {methods: map[string]bool{"add": true, "addAll": true}},
	"Collection": {methods: map[string]bool{"add": true, "addAll": true}},
	"Map":        {methods: map[string]bool{"put": true, "putAll": true, "putIfAbsent": true}},
	"HashMap":    {methods: map[string]bool{"put": true, "putAll": true, "putIfAbsent": true}},
}

// mutatorRuleFor resolves the builtin mutator for a call, or nil. The
// receiver type comes from the declared type of the base receiver variable,
// or from the constructed type when the chain hangs off a new expression;
// unresolvable receivers never match.
func (s *analysis) mutatorRuleFor(call *trait.Call) *mutatorRule {
	if call.IsConstructor() {
		return nil
	}
	base, ok := call.BaseReceiver()
	if !ok {
		return nil
	}
	var typ string
	switch base.Kind() {
	case "identifier":
		if v := s.binding(base.Content()); v != nil {
			typ = trait.EraseType(v.declaredType)
		}
	case "object_creation_expression":
		typ = trait.EraseType(base.ChildByField("type").Content())
	}
	if typ == "" {
		return nil
	}
	rule, ok := mutators[typ]
	if !ok || !rule.methods[call.Name()] {
		return nil
	}
	return &rule
}

// isBulkCopy recognizes the five-argument copy(src, srcPos, dest, destPos,
// length) shape of System.arraycopy. A resolvable receiver must be
// java.lang.System; an unresolvable one is given the benefit of the doubt.
func (s *analysis) isBulkCopy(call *trait.Call) bool {
	if call.Name() != "arraycopy" || len(call.Arguments()) != 5 {
		return false
	}
	if recv, ok := call.BaseReceiver(); ok {
		if owner := s.types.Qualify(recv.Content()); owner != "" && owner != "java.lang.System" {
			return false
		}
	}
	return true
}
