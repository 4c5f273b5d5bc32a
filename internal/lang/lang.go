// Package lang provides the tree-sitter grammars the compiler parses with
// and the registry of per-language transpile plugins.
package lang

import (
	"context"
	"embed"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/model"
)

//go:embed queries/*/*.scm
var queryFS embed.FS

// Grammar holds tree-sitter configuration for a native language.
type Grammar struct {
	Name       string
	Extensions []string
	// Slot is the component section this grammar's files supply.
	Slot model.SectionKind
	lang *sitter.Language

	mu      sync.Mutex
	queries map[string]*sitter.Query
}

// GetLanguage returns the tree-sitter Language pointer.
func (g *Grammar) GetLanguage() *sitter.Language {
	return g.lang
}

// NewParser creates a fresh tree-sitter parser for this grammar.
// Each goroutine must use its own parser (not thread-safe).
func (g *Grammar) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(g.lang)
	return p
}

// Query returns the compiled query queries/<grammar>/<name>.scm. Compiled
// queries are cached and safe to share across goroutines.
func (g *Grammar) Query(name string) (*sitter.Query, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if q, ok := g.queries[name]; ok {
		return q, nil
	}
	data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s/%s.scm", g.Name, name))
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	q, err := sitter.NewQuery(data, g.lang)
	if err != nil {
		return nil, fmt.Errorf("compiling query %s: %w", name, err)
	}
	if g.queries == nil {
		g.queries = make(map[string]*sitter.Query)
	}
	g.queries[name] = q
	return q, nil
}

// Parse parses source with a fresh parser and returns the tree. The caller
// must Close the tree.
func (g *Grammar) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	p := g.NewParser()
	defer p.Close()
	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", g.Name, err)
	}
	return tree, nil
}

// Grammars maps native language ids to their grammar.
// Populated by init() functions in per-language files.
var Grammars = map[string]*Grammar{}

var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, g := range Grammars {
			for _, ext := range g.Extensions {
				extensionMap[ext] = g.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the native language id for a file extension, or "" if
// no grammar claims it.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// FirstError returns the first ERROR or missing node under n in document
// order, or nil when the tree is clean.
func FirstError(n *sitter.Node) *sitter.Node {
	if n == nil || !n.HasError() {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := FirstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}
