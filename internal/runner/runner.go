// Filename: runner/runner.go
// Package runner drives the analysis over a set of input files: every
// executable scope of every file gets one flow-engine pass, and marks and
// sink hits come out as findings carrying structured taint evidence. The
// rule set and model store are shared read-only; each worker owns its parse
// tree and result slice.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/flow"
	"github.com/xkilldash9x/lancet/internal/flowspec"
	"github.com/xkilldash9x/lancet/internal/models"
	"github.com/xkilldash9x/lancet/internal/syntax"
	"github.com/xkilldash9x/lancet/internal/trait"
)

// ModuleName is stamped into every finding this package emits.
const ModuleName = "taint-flow"

const (
	sinkVulnName = "Tainted Data Reaches Sink"
	flowVulnName = "Tainted Data Flow"
)

// Options configures a Runner.
type Options struct {
	// Rules is the compiled source/sink/sanitizer specification. Required.
	Rules *flowspec.RuleSet
	// Models is the external method-flow table. Nil runs builtins only.
	Models *models.Store
	// Concurrency caps the number of files analyzed at once; zero or
	// negative means one worker per CPU.
	Concurrency int
	Logger      *zap.Logger
}

// Runner fans input files out to analysis workers. Safe for a single Run at
// a time; the collaborators it holds never mutate after New.
type Runner struct {
	rules       *flowspec.RuleSet
	store       *models.Store
	concurrency int
	logger      *zap.Logger
}

// New builds a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Rules == nil {
		return nil, errors.New("runner requires a compiled rule set")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Runner{
		rules:       opts.Rules,
		store:       opts.Models,
		concurrency: concurrency,
		logger:      logger.Named("runner"),
	}, nil
}

// Run analyzes every input file and returns the accumulated findings in file
// order. Files that fail to load or parse are logged and skipped; the scan
// only fails when the context is canceled.
func (r *Runner) Run(ctx context.Context, files []InputFile) ([]schemas.Finding, error) {
	started := time.Now()
	perFile := make([][]schemas.Finding, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			findings, err := r.analyzeFile(gctx, file)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("Skipping file",
					zap.String("path", file.Path), zap.Error(err))
				return nil
			}
			perFile[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []schemas.Finding
	for _, findings := range perFile {
		out = append(out, findings...)
	}
	r.logger.Info("Analysis complete",
		zap.Int("files", len(files)),
		zap.Int("findings", len(out)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

// analyzeFile parses one file and runs the engine over each of its scopes.
func (r *Runner) analyzeFile(ctx context.Context, file InputFile) ([]schemas.Finding, error) {
	src, err := file.Load()
	if err != nil {
		return nil, fmt.Errorf("loading: %w", err)
	}
	tree, err := syntax.Parse(ctx, file.Path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	if tree.HasError() {
		r.logger.Debug("Parse tree contains error nodes; analyzing anyway",
			zap.String("path", file.Path))
	}

	info := trait.NewTypeInfo(tree.Root())
	analyzer := flow.New(r.rules.Bind(info), r.store, r.logger)

	var findings []schemas.Finding
	for _, scope := range executableScopes(tree.Root()) {
		res := analyzer.Analyze(scope, info)
		if res.Marked.Len() == 0 {
			continue
		}
		findings = append(findings, r.scopeFindings(file.Path, scopeLabel(scope, info), res)...)
	}
	return findings, nil
}

// executableScopes collects every method, constructor, compact constructor
// and static initializer in the file, nested and local classes included.
// Each runs through the engine independently.
func executableScopes(root syntax.Node) []syntax.Node {
	var scopes []syntax.Node
	var walk func(n syntax.Node)
	walk = func(n syntax.Node) {
		switch n.Kind() {
		case "method_declaration", "constructor_declaration",
			"compact_constructor_declaration", "static_initializer":
			scopes = append(scopes, n)
		}
		for i := 0; i < n.NamedChildCount(); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return scopes
}

// scopeLabel renders a readable owner for a scope, e.g.
// "com.example.App.handle". Static initializers label as <clinit>, anonymous
// class bodies as <anonymous>, constructors carry their class name.
func scopeLabel(scope syntax.Node, info *trait.TypeInfo) string {
	var name string
	if scope.Kind() == "static_initializer" {
		name = "<clinit>"
	} else if n := scope.ChildByField("name"); !n.IsNil() {
		name = n.Content()
	} else {
		for i := 0; i < scope.NamedChildCount(); i++ {
			if c := scope.NamedChild(i); c.Kind() == "identifier" {
				name = c.Content()
				break
			}
		}
	}

	var parts []string
	for n := scope.Parent(); !n.IsNil(); n = n.Parent() {
		switch n.Kind() {
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			if c := n.ChildByField("name"); !c.IsNil() {
				parts = append([]string{c.Content()}, parts...)
			}
		case "object_creation_expression":
			parts = append([]string{"<anonymous>"}, parts...)
		}
	}
	if name != "" {
		parts = append(parts, name)
	}
	if pkg := info.Package(); pkg != "" {
		parts = append([]string{pkg}, parts...)
	}
	return strings.Join(parts, ".")
}

// scopeFindings converts one scope result into findings. Every sink hit
// becomes its own high-severity finding carrying the discovery path; a scope
// where taint propagated without touching a sink yields one informational
// finding so the flow is still visible in reports.
func (r *Runner) scopeFindings(target, scope string, res *flow.Result) []schemas.Finding {
	marked := make([]schemas.MarkedExpr, 0, res.Marked.Len())
	for _, n := range res.Marked.Nodes() {
		marked = append(marked, markedExpr(n))
	}
	now := time.Now().UTC()

	if len(res.Sinks) == 0 {
		return []schemas.Finding{{
			ID:                uuid.NewString(),
			ObservedAt:        now,
			Target:            target,
			Module:            ModuleName,
			VulnerabilityName: flowVulnName,
			Severity:          schemas.SeverityInfo,
			Description: fmt.Sprintf(
				"Untrusted data propagates through %d expression(s) in %s without reaching a known sink.",
				len(marked), scope),
			Evidence: r.encodeEvidence(schemas.TaintEvidence{Scope: scope, Marked: marked}),
			CWE:      []string{"CWE-20"},
		}}
	}

	findings := make([]schemas.Finding, 0, len(res.Sinks))
	for _, hit := range res.Sinks {
		var path []schemas.MarkedExpr
		for _, step := range res.Graph.PathTo(hit.Node) {
			path = append(path, markedExpr(step))
		}
		ev := schemas.TaintEvidence{
			Scope:  scope,
			Marked: marked,
			Sinks:  []schemas.SinkHit{{Sink: markedExpr(hit.Node), Path: path}},
		}
		findings = append(findings, schemas.Finding{
			ID:                uuid.NewString(),
			ObservedAt:        now,
			Target:            target,
			Module:            ModuleName,
			VulnerabilityName: sinkVulnName,
			Severity:          schemas.SeverityHigh,
			Description: fmt.Sprintf(
				"Untrusted data reaches %q at line %d in %s.",
				trimSnippet(hit.Node.Content()), hit.Node.Line(), scope),
			Evidence: r.encodeEvidence(ev),
			CWE:      []string{"CWE-74"},
		})
	}
	return findings
}

func (r *Runner) encodeEvidence(ev schemas.TaintEvidence) []byte {
	raw, err := ev.Encode()
	if err != nil {
		r.logger.Error("Failed to encode taint evidence", zap.Error(err))
		return nil
	}
	return raw
}

// markedExpr positions a node for report output. The engine's columns are
// zero-based; evidence carries the 1-based convention reporters expect.
func markedExpr(n syntax.Node) schemas.MarkedExpr {
	return schemas.MarkedExpr{
		Snippet:   n.Content(),
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		Line:      n.Line(),
		Column:    n.Column() + 1,
	}
}

// trimSnippet squeezes source text onto one short line for descriptions; the
// evidence payload keeps the full text.
func trimSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
