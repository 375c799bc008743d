// Filename: flowspec/rules.go
package flowspec

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/lancet/internal/syntax"
	"github.com/xkilldash9x/lancet/internal/trait"
)

// RuleFile is the on-disk shape of a flow specification: three identifier
// lists classifying calls as sources, sinks and sanitizers.
type RuleFile struct {
	Sources    []CodeIdentifier `yaml:"sources"`
	Sinks      []CodeIdentifier `yaml:"sinks"`
	Sanitizers []CodeIdentifier `yaml:"sanitizers"`
}

// RuleSet is a compiled rule file. It is file-independent and shareable; Bind
// attaches the per-file type environment and yields the Spec the engine
// consumes.
type RuleSet struct {
	sources    []compiledIdentifier
	sinks      []compiledIdentifier
	sanitizers []compiledIdentifier
}

//go:embed default-rules.yaml
var defaultRules []byte

// DefaultRules compiles the embedded rule set: the common Java untrusted
// input sources, injection sinks and encoder sanitizers.
func DefaultRules() (*RuleSet, error) {
	rs, err := Parse(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("embedded rules: %w", err)
	}
	return rs, nil
}

// Load reads and compiles a rule file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse unmarshals and compiles a rule file. Compilation failures are
// accumulated so one pass reports every bad identifier, not just the first.
func Parse(data []byte) (*RuleSet, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}

	rs := &RuleSet{}
	var errs []error
	compileAll := func(kind string, ids []CodeIdentifier) []compiledIdentifier {
		out := make([]compiledIdentifier, 0, len(ids))
		for _, id := range ids {
			ci, err := id.compile()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %w", kind, err))
				continue
			}
			out = append(out, ci)
		}
		return out
	}
	rs.sources = compileAll("source", rf.Sources)
	rs.sinks = compileAll("sink", rf.Sinks)
	rs.sanitizers = compileAll("sanitizer", rf.Sanitizers)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rs, nil
}

// Counts reports how many identifiers compiled per predicate.
func (rs *RuleSet) Counts() (sources, sinks, sanitizers int) {
	return len(rs.sources), len(rs.sinks), len(rs.sanitizers)
}

// Bind attaches a file's type environment, producing the Spec used for that
// file's scopes. The RuleSet itself stays immutable and shareable.
func (rs *RuleSet) Bind(info *trait.TypeInfo) Spec {
	return boundRules{rules: rs, info: info}
}

type boundRules struct {
	rules *RuleSet
	info  *trait.TypeInfo
}

func (b boundRules) IsSource(_ syntax.Node, c *syntax.Cursor) bool {
	return matchAny(b.rules.sources, c, b.info)
}

func (b boundRules) IsSink(_ syntax.Node, c *syntax.Cursor) bool {
	return matchAny(b.rules.sinks, c, b.info)
}

func (b boundRules) IsSanitizer(_ syntax.Node, c *syntax.Cursor) bool {
	return matchAny(b.rules.sanitizers, c, b.info)
}
