// Filename: syntax/syntax.go
// Package syntax wraps the tree-sitter parser for Java sources and exposes
// the node and cursor handles the analysis layers operate on. Nothing above
// this package touches tree-sitter directly.
package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Tree owns one parsed source file. It keeps the source bytes alive for the
// lifetime of every Node handed out, so callers must not mutate src after
// parsing.
type Tree struct {
	filename string
	src      []byte
	tree     *sitter.Tree
}

// Parse parses a Java source buffer. Tree-sitter recovers from syntax errors
// with ERROR nodes, so a non-nil error here means the parser itself failed,
// not that the input was malformed.
func Parse(ctx context.Context, filename string, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter failed to parse %s: %w", filename, err)
	}
	return &Tree{filename: filename, src: src, tree: tree}, nil
}

// Root returns the program node.
func (t *Tree) Root() Node {
	return Node{inner: t.tree.RootNode(), src: t.src}
}

// Filename returns the name the tree was parsed under.
func (t *Tree) Filename() string { return t.filename }

// Source returns the raw bytes backing the tree.
func (t *Tree) Source() []byte { return t.src }

// HasError reports whether the parser inserted any ERROR nodes. Analysis
// still runs over such trees; the caller may want to log it.
func (t *Tree) HasError() bool { return t.tree.RootNode().HasError() }

// Close releases the underlying tree-sitter tree. Nodes derived from the
// tree must not be used afterwards.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}
