// Filename: flowspec/identifier.go
package flowspec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/lancet/internal/syntax"
	"github.com/xkilldash9x/lancet/internal/trait"
)

// CodeIdentifier names a code element by any combination of its package,
// type and method; empty fields are wildcards. With MatchRegex set each
// non-empty field is compiled as an anchored regular expression instead of
// compared literally.
//
// Identifiers are matched against invocations. The owning package and type
// are resolved syntactically — constructors, static calls and fully
// qualified receivers resolve; calls on instance variables match by method
// name (leave package and type empty for those).
type CodeIdentifier struct {
	Package    string `yaml:"package"`
	Type       string `yaml:"type"`
	Method     string `yaml:"method"`
	MatchRegex bool   `yaml:"match-regex"`
}

func (cid CodeIdentifier) String() string {
	return fmt.Sprintf("{package: %q, type: %q, method: %q}", cid.Package, cid.Type, cid.Method)
}

// compile turns the identifier into its matchable form, reporting every
// field that fails to compile.
func (cid CodeIdentifier) compile() (compiledIdentifier, error) {
	out := compiledIdentifier{raw: cid}
	if !cid.MatchRegex {
		return out, nil
	}
	var firstErr error
	compileField := func(name, expr string) *regexp.Regexp {
		if expr == "" {
			return nil
		}
		re, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("identifier %s: %s pattern: %w", cid, name, err)
		}
		return re
	}
	out.pkg = compileField("package", cid.Package)
	out.typ = compileField("type", cid.Type)
	out.method = compileField("method", cid.Method)
	return out, firstErr
}

type compiledIdentifier struct {
	raw              CodeIdentifier
	pkg, typ, method *regexp.Regexp
}

// matches compares against a resolved call target. Empty identifier fields
// always match; an unresolved owner ("" package and type) only matches
// identifiers that do not constrain the owner.
func (ci compiledIdentifier) matches(pkg, typ, method string) bool {
	return ci.matchField(ci.pkg, ci.raw.Package, pkg) &&
		ci.matchField(ci.typ, ci.raw.Type, typ) &&
		ci.matchField(ci.method, ci.raw.Method, method)
}

func (ci compiledIdentifier) matchField(re *regexp.Regexp, want, got string) bool {
	if want == "" {
		return true
	}
	if re != nil {
		return re.MatchString(got)
	}
	return want == got
}

// callTarget resolves what an identifier can be matched against: the method
// name (constructors resolve to the constructed type's simple name) and,
// when syntactically recoverable, the owning package and type.
func callTarget(call *trait.Call, info *trait.TypeInfo) (pkg, typ, method string) {
	var owner string
	if call.IsConstructor() {
		owner = info.Qualify(call.TypeName())
		method = simpleName(trait.EraseType(call.TypeName()))
	} else {
		method = call.Name()
		if recv, ok := call.BaseReceiver(); ok {
			switch recv.Kind() {
			case "identifier", "field_access", "scoped_identifier":
				// Only class-shaped receivers resolve statically; instance
				// variables stay unresolved here.
				owner = info.Qualify(recv.Content())
			}
		}
	}
	if owner != "" {
		if idx := strings.LastIndex(owner, "."); idx >= 0 {
			return owner[:idx], owner[idx+1:], method
		}
		return "", owner, method
	}
	return "", "", method
}

func simpleName(fqn string) string {
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// matchAny resolves the cursor as a call and tests the identifier list.
// Non-call expressions never match identifier rules.
func matchAny(ids []compiledIdentifier, c *syntax.Cursor, info *trait.TypeInfo) bool {
	if len(ids) == 0 {
		return false
	}
	call, err := trait.AsCall(c)
	if err != nil {
		return false
	}
	pkg, typ, method := callTarget(call, info)
	for _, id := range ids {
		if id.matches(pkg, typ, method) {
			return true
		}
	}
	return false
}
