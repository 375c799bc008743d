// Filename: flow/flow_test.go
package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/internal/flowspec"
	"github.com/xkilldash9x/lancet/internal/models"
	"github.com/xkilldash9x/lancet/internal/syntax"
	"github.com/xkilldash9x/lancet/internal/trait"
)

func parseJava(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	tree, err := syntax.Parse(context.Background(), "Test.java", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

func findMethod(t *testing.T, tree *syntax.Tree, name string) syntax.Node {
	t.Helper()
	var found syntax.Node
	var walk func(n syntax.Node)
	walk = func(n syntax.Node) {
		if !found.IsNil() {
			return
		}
		if n.Kind() == "method_declaration" && n.ChildByField("name").Content() == name {
			found = n
			return
		}
		for i := 0; i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.Root())
	if found.IsNil() {
		t.Fatalf("no method %q in source", name)
	}
	return found
}

// testSpec marks calls to source() as sources and, like the upstream test
// fixture, treats appending the literal "sanitizer" as neutralizing.
func testSpec() flowspec.Spec {
	return flowspec.Predicates{
		Source: func(n syntax.Node, _ *syntax.Cursor) bool {
			return n.Kind() == "method_invocation" && n.ChildByField("name").Content() == "source"
		},
		Sanitizer: func(n syntax.Node, _ *syntax.Cursor) bool {
			if n.Kind() != "binary_expression" {
				return false
			}
			right := n.ChildByField("right")
			return right.Kind() == "string_literal" && right.Content() == `"sanitizer"`
		},
	}
}

func defaultStore(t *testing.T) *models.Store {
	t.Helper()
	store, err := models.NewDefaultStore()
	if err != nil {
		t.Fatalf("default store: %v", err)
	}
	return store
}

func runTaint(t *testing.T, src string) *Result {
	t.Helper()
	return runTaintSpec(t, src, testSpec(), defaultStore(t))
}

func runTaintSpec(t *testing.T, src string, spec flowspec.Spec, store *models.Store) *Result {
	t.Helper()
	tree := parseJava(t, src)
	a := New(spec, store, zaptest.NewLogger(t))
	return a.Analyze(findMethod(t, tree, "test"), trait.NewTypeInfo(tree.Root()))
}

func markedContents(res *Result) []string {
	var out []string
	for _, n := range res.Marked.Nodes() {
		out = append(out, n.Content())
	}
	return out
}

func assertMarked(t *testing.T, res *Result, want []string) {
	t.Helper()
	if diff := cmp.Diff(want, markedContents(res)); diff != "" {
		t.Errorf("marked set mismatch (-want +got):\n%s", diff)
	}
}

func TestTaintThroughStringManipulations(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = n.substring(0, 3);
        String p = o.toUpperCase();
        System.out.println(p);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"n.substring(0, 3)", "n",
		"o.toUpperCase()", "o",
		"p",
	})
}

func TestTaintThroughConcatenation(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = "hello " + n;
        String p = o + " world";
        System.out.println(p);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		`"hello " + n`, "n",
		`o + " world"`, "o",
		"p",
	})
}

func TestSanitizerHaltsPropagation(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String p = n + " world";
        String q = p + "sanitizer";
        String r = q + true;
        System.out.println(r);
    }
}`)
	// The sanitizer expression itself is part of the observed path; nothing
	// derived from it is.
	assertMarked(t, res, []string{
		"source()",
		`n + " world"`, "n",
		`p + "sanitizer"`, "p",
	})
	for _, n := range res.Marked.Nodes() {
		if c := n.Content(); c == "q" || c == "r" || c == "q + true" {
			t.Errorf("taint escaped the sanitizer into %q", c)
		}
	}
}

func TestTaintThroughConstructor(t *testing.T) {
	res := runTaint(t, `
import java.io.File;
import java.net.URI;
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        File o = new File(n);
        URI p = o.toURI();
        System.out.println(p);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"new File(n)", "n",
		"o.toURI()", "o",
		"p",
	})
}

func TestTaintThroughStringJoin(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = String.join(", ", n);
        String p = String.join(" ", "x", o);
        System.out.println(p);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		`String.join(", ", n)`, "n",
		`String.join(" ", "x", o)`, "o",
		"p",
	})
}

func TestArgumentRangeMatching(t *testing.T) {
	rows, err := models.LoadCSV(strings.NewReader(
		"namespace,type,subtypes,name,signature,arguments\n" +
			"com.acme,Util,false,combine,,Argument[0..1]\n"))
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	store := models.NewStore(rows)

	cases := []struct {
		name     string
		args     string
		wantFlow bool
	}{
		{"position 0 in range", `a, "x", "y"`, true},
		{"position 1 in range", `"x", a, "y"`, true},
		{"position 2 out of range", `"x", "y", a`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := fmt.Sprintf(`
import com.acme.Util;
class Test {
    String source() { return null; }
    void test() {
        String a = source();
        String r = Util.combine(%s);
        System.out.println(r);
    }
}`, tc.args)
			res := runTaintSpec(t, src, testSpec(), store)
			gotFlow := false
			for _, n := range res.Marked.Nodes() {
				if strings.HasPrefix(n.Content(), "Util.combine(") {
					gotFlow = true
				}
			}
			if gotFlow != tc.wantFlow {
				t.Errorf("call marked = %v, want %v; marked: %v", gotFlow, tc.wantFlow, markedContents(res))
			}
		})
	}
}

func TestMutatingBuilderPropagation(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        StringBuilder sb = new StringBuilder("hello ");
        sb.append(n);
        sb.append(" world");
        System.out.println(sb);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"sb.append(n)", "sb", "n",
		`sb.append(" world")`, "sb",
		"sb",
	})
}

func TestBuilderAssignmentChain(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        StringBuilder o = new StringBuilder();
        StringBuilder p = o.append(n);
        StringBuilder q = p.append(" world");
        System.out.println(q);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"o.append(n)", "o", "n",
		`p.append(" world")`, "p",
		"q",
	})
}

func TestBulkCopyTwoHopAliasing(t *testing.T) {
	res := runTaint(t, `
class Test {
    String[] source() { return null; }
    void test() {
        String[] n = source();
        String[] m = { "a", "b", "c" };
        String[] o = { "1", "2", "3", "4" };
        System.arraycopy(n, 0, m, 1, 1);
        System.arraycopy(m, 1, o, 2, 2);
        System.out.println(o);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"n", "m",
		"m", "o",
		"o",
	})
	for _, n := range res.Marked.Nodes() {
		if strings.HasPrefix(n.Content(), "System.arraycopy") {
			t.Errorf("bulk copy call itself must not be marked, got %q", n.Content())
		}
	}
}

func TestModelCopyIntoDestination(t *testing.T) {
	res := runTaint(t, `
import org.apache.commons.io.IOUtils;
import java.io.InputStream;
import java.io.OutputStream;
import java.io.FileOutputStream;
class Test {
    InputStream source() { return null; }
    void test() {
        InputStream in = source();
        OutputStream dest = new FileOutputStream("dest.txt");
        IOUtils.copy(in, dest);
        System.out.println(dest);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"in", "dest",
		"dest",
	})
}

func TestModelSignatureRejectsOtherOverloads(t *testing.T) {
	res := runTaint(t, `
import org.apache.commons.io.IOUtils;
import java.io.File;
class Test {
    File source() { return null; }
    void test() {
        File src = source();
        File dest = new File("dest.txt");
        IOUtils.copy(src, dest);
        System.out.println(dest);
    }
}`)
	// The modeled copy overloads take streams; the File pair must not match.
	assertMarked(t, res, []string{"source()", "src"})
}

func TestTaintThroughTryWithResources(t *testing.T) {
	res := runTaint(t, `
import java.io.InputStream;
class Test {
    InputStream source() { return null; }
    void test() {
        try (InputStream in = source()) {
            System.out.println(in.read());
        }
    }
}`)
	assertMarked(t, res, []string{"source()", "in"})
}

func TestTaintReachesReturn(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    String test() {
        String n = source();
        return n.trim();
    }
}`)
	assertMarked(t, res, []string{"source()", "n.trim()", "n"})
}

func TestParameterReassignment(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test(String arg) {
        arg = source();
        System.out.println(arg);
    }
}`)
	assertMarked(t, res, []string{"source()", "arg"})
}

func TestReassignmentClearsTaint(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = n;
        n = "clean";
        String p = n;
        System.out.println(o + p);
    }
}`)
	assertMarked(t, res, []string{
		"source()",
		"n",
		"o + p", "o",
	})
}

func TestCompoundAssignmentKeepsTaint(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = "";
        o += n;
        System.out.println(o);
    }
}`)
	assertMarked(t, res, []string{"source()", "n", "o"})
}

func TestUnknownCallStopsPropagation(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    String mystery(String s) { return s; }
    void test() {
        String n = source();
        String o = mystery(n);
        System.out.println(o);
    }
}`)
	assertMarked(t, res, []string{"source()", "n"})
}

func TestIdempotence(t *testing.T) {
	src := `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = n.substring(0, 3);
        StringBuilder sb = new StringBuilder();
        sb.append(o);
        System.out.println(sb);
    }
}`
	tree := parseJava(t, src)
	scope := findMethod(t, tree, "test")
	info := trait.NewTypeInfo(tree.Root())
	a := New(testSpec(), defaultStore(t), zaptest.NewLogger(t))

	first := a.Analyze(scope, info)
	second := a.Analyze(scope, info)
	if diff := cmp.Diff(markedContents(first), markedContents(second)); diff != "" {
		t.Errorf("repeated analysis diverged (-first +second):\n%s", diff)
	}
	if first.Marked.Len() != second.Marked.Len() {
		t.Errorf("marked count changed between runs: %d vs %d", first.Marked.Len(), second.Marked.Len())
	}
}

// Sinks are informational: they are recorded but never change the marked
// set. An always-false IsSink and an always-true IsSink see identical marks.
func TestSinksAreInformational(t *testing.T) {
	src := `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = n.toUpperCase();
        System.out.println(o);
    }
}`
	base := testSpec().(flowspec.Predicates)
	noSink := base
	allSink := base
	allSink.Sink = func(syntax.Node, *syntax.Cursor) bool { return true }

	store := defaultStore(t)
	without := runTaintSpec(t, src, noSink, store)
	with := runTaintSpec(t, src, allSink, store)

	if diff := cmp.Diff(markedContents(without), markedContents(with)); diff != "" {
		t.Errorf("sink predicate altered the marked set (-without +with):\n%s", diff)
	}
	if len(without.Sinks) != 0 {
		t.Errorf("no-sink spec recorded %d sink hits", len(without.Sinks))
	}
	if len(with.Sinks) != with.Marked.Len() {
		t.Errorf("all-sink spec recorded %d hits for %d marked nodes", len(with.Sinks), with.Marked.Len())
	}
}

func TestFlowGraphPath(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = n.toUpperCase();
        System.out.println(o);
    }
}`)
	var last syntax.Node
	for _, n := range res.Marked.Nodes() {
		if n.Content() == "o" {
			last = n
		}
	}
	if last.IsNil() {
		t.Fatalf("final read not marked; marked: %v", markedContents(res))
	}
	path := res.Graph.PathTo(last)
	if len(path) != 4 {
		t.Fatalf("path length = %d, want 4 (source, read, call, read); path: %v", len(path), pathContents(path))
	}
	if path[0].Content() != "source()" {
		t.Errorf("path starts at %q, want the source", path[0].Content())
	}
	if path[len(path)-1].Content() != "o" {
		t.Errorf("path ends at %q, want the final read", path[len(path)-1].Content())
	}
}

func pathContents(path []syntax.Node) []string {
	var out []string
	for _, n := range path {
		out = append(out, n.Content())
	}
	return out
}

func TestEmptyScopeYieldsEmptyResult(t *testing.T) {
	res := runTaint(t, `
class Test {
    String source() { return null; }
    void test() {
    }
}`)
	if res == nil {
		t.Fatal("Analyze returned nil")
	}
	if res.Marked.Len() != 0 || len(res.Sinks) != 0 {
		t.Errorf("empty scope produced marks: %v", markedContents(res))
	}
}

func TestBuiltinsOnlyWithoutStore(t *testing.T) {
	src := `
class Test {
    String source() { return null; }
    void test() {
        String n = source();
        String o = "pre" + n;
        System.out.println(o);
    }
}`
	res := runTaintSpec(t, src, testSpec(), nil)
	assertMarked(t, res, []string{"source()", `"pre" + n`, "n", "o"})
}

func TestMarkedSetOrderingAndDedup(t *testing.T) {
	tree := parseJava(t, `class A { void f() { g(h(x)); } }`)
	root := tree.Root()
	var call, inner syntax.Node
	var walk func(n syntax.Node)
	walk = func(n syntax.Node) {
		if n.Kind() == "method_invocation" {
			if call.IsNil() {
				call = n
			} else if inner.IsNil() {
				inner = n
			}
		}
		for i := 0; i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	if call.IsNil() || inner.IsNil() {
		t.Fatal("fixture calls not found")
	}

	set := NewMarkedSet()
	if !set.Add(inner) || !set.Add(call) {
		t.Fatal("first insertion must report true")
	}
	if set.Add(call) {
		t.Error("duplicate insertion must report false")
	}
	if set.Len() != 2 {
		t.Errorf("Len = %d, want 2", set.Len())
	}
	nodes := set.Nodes()
	if nodes[0].StartByte() > nodes[1].StartByte() {
		t.Error("Nodes() must be ordered by position")
	}
	if !set.Has(inner) {
		t.Error("Has must find an added node")
	}
}
