// Filename: trait/types.go
// Static-type approximation for a single file. The parse tree carries no
// semantic model, so owner types are recovered syntactically: the file's
// import table, the implicit java.lang import, and a fixed assignability
// table for the JDK types the flow rules know about. Anything unresolvable
// degrades to "no rule matches", never to an error.
package trait

import (
	"strings"

	"github.com/xkilldash9x/lancet/internal/syntax"
)

// TypeInfo is the per-file type environment. Built once per tree and shared
// read-only by every scope analysis over that file.
type TypeInfo struct {
	pkg       string
	imports   map[string]string // simple name -> fully qualified
	wildcards []string          // packages imported with .*
}

// NewTypeInfo scans the file's package and import declarations.
func NewTypeInfo(root syntax.Node) *TypeInfo {
	ti := &TypeInfo{imports: make(map[string]string)}
	for i := 0; i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		switch child.Kind() {
		case "package_declaration":
			if name := firstIdentifierish(child); !name.IsNil() {
				ti.pkg = name.Content()
			}
		case "import_declaration":
			ti.addImport(child)
		}
	}
	return ti
}

func (ti *TypeInfo) addImport(decl syntax.Node) {
	var path syntax.Node
	wildcard := false
	for i := 0; i < decl.ChildCount(); i++ {
		child := decl.Child(i)
		switch child.Kind() {
		case "scoped_identifier", "identifier":
			path = child
		case "asterisk":
			wildcard = true
		}
	}
	if path.IsNil() {
		return
	}
	fqn := path.Content()
	if wildcard {
		ti.wildcards = append(ti.wildcards, fqn)
		return
	}
	if idx := strings.LastIndex(fqn, "."); idx >= 0 {
		ti.imports[fqn[idx+1:]] = fqn
	}
}

func firstIdentifierish(n syntax.Node) syntax.Node {
	for i := 0; i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if kind := child.Kind(); kind == "scoped_identifier" || kind == "identifier" {
			return child
		}
	}
	return syntax.Node{}
}

// Package returns the file's declared package.
func (ti *TypeInfo) Package() string { return ti.pkg }

// Qualify resolves a type name as written in source to a fully qualified
// name, or "" when the file gives no way to resolve it. Generic parameters
// and array dimensions are erased first.
func (ti *TypeInfo) Qualify(name string) string {
	name = EraseType(name)
	if name == "" {
		return ""
	}
	if strings.Contains(name, ".") {
		return name
	}
	if fqn, ok := ti.imports[name]; ok {
		return fqn
	}
	if javaLangTypes[name] {
		return "java.lang." + name
	}
	if fqn, ok := wellKnownTypes[name]; ok {
		for _, pkg := range ti.wildcards {
			if strings.HasPrefix(fqn, pkg+".") {
				return fqn
			}
		}
	}
	return ""
}

// AssignableTo reports whether a value of the `from` type can be treated as
// the `to` type, per the builtin JDK hierarchy. Both names are fully
// qualified. Unknown types are assignable only to themselves.
func (ti *TypeInfo) AssignableTo(from, to string) bool {
	if from == "" || to == "" {
		return false
	}
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := append([]string(nil), builtinSupertypes[from]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == to {
			return true
		}
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, builtinSupertypes[next]...)
	}
	return false
}

// EraseType strips generic parameters, array dimensions and annotations from
// a source-level type, leaving the raw name: "List<String>[]" -> "List".
func EraseType(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.IndexByte(name, '<'); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.IndexByte(name, '['); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// javaLangTypes are importable without any import declaration.
var javaLangTypes = map[string]bool{
	"String": true, "StringBuilder": true, "StringBuffer": true, "System": true,
	"Object": true, "CharSequence": true, "Comparable": true, "Iterable": true,
	"Appendable": true, "AutoCloseable": true, "Integer": true, "Long": true,
	"Double": true, "Float": true, "Boolean": true, "Byte": true, "Short": true,
	"Character": true, "Math": true, "Thread": true, "Runnable": true,
	"Exception": true, "RuntimeException": true, "Throwable": true, "Class": true,
	"Runtime": true, "ProcessBuilder": true,
}

// wellKnownTypes resolves wildcard imports for the JDK types the default
// flow models mention.
var wellKnownTypes = map[string]string{
	"List": "java.util.List", "ArrayList": "java.util.ArrayList",
	"LinkedList": "java.util.LinkedList", "Collection": "java.util.Collection",
	"Map": "java.util.Map", "HashMap": "java.util.HashMap",
	"Set": "java.util.Set", "HashSet": "java.util.HashSet",
	"Arrays": "java.util.Arrays", "Objects": "java.util.Objects",
	"StringJoiner": "java.util.StringJoiner", "Scanner": "java.util.Scanner",
	"Iterator": "java.util.Iterator", "Optional": "java.util.Optional",
	"File": "java.io.File", "InputStream": "java.io.InputStream",
	"OutputStream": "java.io.OutputStream",
	"FileInputStream":      "java.io.FileInputStream",
	"FileOutputStream":     "java.io.FileOutputStream",
	"ByteArrayInputStream": "java.io.ByteArrayInputStream",
	"ByteArrayOutputStream": "java.io.ByteArrayOutputStream",
	"Reader": "java.io.Reader", "Writer": "java.io.Writer",
	"BufferedReader": "java.io.BufferedReader",
	"InputStreamReader": "java.io.InputStreamReader",
	"StringWriter": "java.io.StringWriter", "PrintWriter": "java.io.PrintWriter",
	"Path": "java.nio.file.Path", "Paths": "java.nio.file.Paths",
	"Files": "java.nio.file.Files",
	"URI":  "java.net.URI", "URL": "java.net.URL",
	"URLDecoder": "java.net.URLDecoder", "URLEncoder": "java.net.URLEncoder",
}

// builtinSupertypes is the assignability closure consulted when a model row
// sets its subtypes flag. Deliberately small: only types the shipped rules
// reference.
var builtinSupertypes = map[string][]string{
	"java.lang.String":        {"java.lang.CharSequence", "java.lang.Comparable", "java.lang.Object"},
	"java.lang.StringBuilder": {"java.lang.CharSequence", "java.lang.Appendable", "java.lang.Object"},
	"java.lang.StringBuffer":  {"java.lang.CharSequence", "java.lang.Appendable", "java.lang.Object"},

	"java.util.ArrayList":  {"java.util.List", "java.lang.Object"},
	"java.util.LinkedList": {"java.util.List", "java.lang.Object"},
	"java.util.List":       {"java.util.Collection"},
	"java.util.HashSet":    {"java.util.Set", "java.lang.Object"},
	"java.util.Set":        {"java.util.Collection"},
	"java.util.Collection": {"java.lang.Iterable"},
	"java.util.HashMap":    {"java.util.Map", "java.lang.Object"},

	"java.io.FileInputStream":       {"java.io.InputStream", "java.lang.Object"},
	"java.io.ByteArrayInputStream":  {"java.io.InputStream", "java.lang.Object"},
	"java.io.FileOutputStream":      {"java.io.OutputStream", "java.lang.Object"},
	"java.io.ByteArrayOutputStream": {"java.io.OutputStream", "java.lang.Object"},
	"java.io.InputStream":           {"java.io.Closeable", "java.lang.AutoCloseable"},
	"java.io.OutputStream":          {"java.io.Closeable", "java.lang.AutoCloseable"},
	"java.io.BufferedReader":        {"java.io.Reader", "java.lang.Object"},
	"java.io.InputStreamReader":     {"java.io.Reader", "java.lang.Object"},
	"java.io.StringWriter":          {"java.io.Writer", "java.lang.Object"},
	"java.io.PrintWriter":           {"java.io.Writer", "java.lang.Object"},
}
