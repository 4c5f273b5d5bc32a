// Package script finds require calls in JavaScript and rewrites them.
package script

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/lang"
)

// Require is one require("specifier") call site.
type Require struct {
	Specifier string
	// Start and End bound the whole call expression in bytes.
	Start, End int
	// Row and Column locate the call, both 0-based.
	Row, Column int
}

// SyntaxError reports unparseable script code.
type SyntaxError struct {
	Row, Column int
	Near        string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JavaScript near %q", e.Near)
}

// Requires returns every require call in code in source order.
func Requires(ctx context.Context, code string) ([]Require, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	src := []byte(code)
	g := lang.Script()
	q, err := g.Query("require")
	if err != nil {
		return nil, err
	}
	tree, err := g.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := lang.FirstError(root); bad != nil {
		return nil, syntaxError(bad, src)
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var reqs []Require
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, src)

		var call, spec *sitter.Node
		for _, c := range match.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "require":
				call = c.Node
			case "specifier":
				spec = c.Node
			}
		}
		if call == nil || spec == nil {
			continue
		}
		reqs = append(reqs, Require{
			Specifier: unquote(lang.NodeText(spec, src)),
			Start:     int(call.StartByte()),
			End:       int(call.EndByte()),
			Row:       int(call.StartPoint().Row),
			Column:    int(call.StartPoint().Column),
		})
	}

	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Start < reqs[j].Start })
	return reqs, nil
}

func syntaxError(bad *sitter.Node, src []byte) *SyntaxError {
	near := lang.NodeText(bad, src)
	if len(near) > 40 {
		near = near[:40]
	}
	return &SyntaxError{Row: int(bad.StartPoint().Row), Column: int(bad.StartPoint().Column), Near: near}
}

// unquote strips the quotes of a JavaScript string literal and resolves the
// simple escapes a module specifier can contain.
func unquote(lit string) string {
	if len(lit) < 2 {
		return lit
	}
	body := lit[1 : len(lit)-1]
	if !strings.Contains(body, `\`) {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		b.WriteByte(body[i])
	}
	return b.String()
}

// Edit replaces code[Start:End] with Text.
type Edit struct {
	Start, End int
	Text       string
}

// Apply performs non-overlapping edits on code. Newlines inside a replaced
// range are kept after the replacement so later lines keep their row.
func Apply(code string, edits []Edit) string {
	if len(edits) == 0 {
		return code
	}
	sorted := append([]Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	last := 0
	for _, e := range sorted {
		if e.Start < last {
			continue
		}
		b.WriteString(code[last:e.Start])
		b.WriteString(e.Text)
		b.WriteString(strings.Repeat("\n", strings.Count(code[e.Start:e.End], "\n")))
		last = e.End
	}
	b.WriteString(code[last:])
	return b.String()
}
