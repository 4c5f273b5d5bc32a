// Package style compiles CSS into the style object components carry.
package style

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/jsvalue"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
)

var (
	classSelector = regexp.MustCompile(`^\.([A-Za-z_][A-Za-z0-9_-]*)$`)
	numeric       = regexp.MustCompile(`^-?(?:\d+\.?\d*|\.\d+)(px)?$`)
	important     = regexp.MustCompile(`(?i)\s*!important$`)
)

// SyntaxError reports unparseable CSS.
type SyntaxError struct {
	Pos  model.Position
	Near string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid CSS near %q", e.Near)
}

// Compile turns the CSS of sec into {className: {property: value}}. Rules
// whose selectors are not single class selectors are skipped with a warning.
func Compile(ctx context.Context, sec *model.Section) (*jsvalue.Object, error) {
	out := jsvalue.NewObject()
	if strings.TrimSpace(sec.Code) == "" {
		return out, nil
	}
	logger := ctxlog.FromContext(ctx)

	src := []byte(sec.Code)
	tree, err := lang.Stylesheet().Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := lang.FirstError(root); bad != nil {
		near := lang.NodeText(bad, src)
		if len(near) > 40 {
			near = near[:40]
		}
		return nil, &SyntaxError{Pos: pos(sec, bad), Near: near}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		rule := root.NamedChild(i)
		switch rule.Type() {
		case "comment":
			continue
		case "rule_set":
		default:
			logger.Warn("unsupported style statement skipped", "at", pos(sec, rule).String(), "statement", rule.Type())
			continue
		}

		decls := declarations(rule, src)
		for _, sel := range selectors(rule, src) {
			m := classSelector.FindStringSubmatch(sel)
			if m == nil {
				logger.Warn("only class selectors are supported", "at", pos(sec, rule).String(), "selector", sel)
				continue
			}
			props := classObject(out, m[1], pos(sec, rule))
			for _, d := range decls {
				props.Set(d.name, d.value)
			}
		}
	}
	return out, nil
}

type declaration struct {
	name  string
	value jsvalue.Value
}

func classObject(out *jsvalue.Object, class string, at model.Position) *jsvalue.Object {
	if v, ok := out.Get(class); ok {
		return v.(*jsvalue.Object)
	}
	props := jsvalue.NewObject()
	props.Pos = &at
	out.Set(class, props)
	return props
}

func selectors(rule *sitter.Node, src []byte) []string {
	var out []string
	for i := 0; i < int(rule.NamedChildCount()); i++ {
		child := rule.NamedChild(i)
		if child.Type() != "selectors" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			sel := child.NamedChild(j)
			if sel.Type() == "comment" {
				continue
			}
			out = append(out, strings.TrimSpace(lang.NodeText(sel, src)))
		}
	}
	return out
}

func declarations(rule *sitter.Node, src []byte) []declaration {
	var out []declaration
	for i := 0; i < int(rule.NamedChildCount()); i++ {
		block := rule.NamedChild(i)
		if block.Type() != "block" {
			continue
		}
		for j := 0; j < int(block.NamedChildCount()); j++ {
			decl := block.NamedChild(j)
			if decl.Type() != "declaration" {
				continue
			}
			name, raw, ok := strings.Cut(lang.NodeText(decl, src), ":")
			if !ok {
				continue
			}
			raw = strings.TrimSuffix(strings.TrimSpace(raw), ";")
			raw = important.ReplaceAllString(strings.TrimSpace(raw), "")
			out = append(out, declaration{name: PropertyName(name), value: Value(raw)})
		}
	}
	return out
}

func pos(sec *model.Section, n *sitter.Node) model.Position {
	p := n.StartPoint()
	return sec.LinePos(int(p.Row), int(p.Column))
}

// PropertyName converts a CSS property to its camel-cased key.
func PropertyName(prop string) string {
	prop = strings.TrimSpace(prop)
	parts := strings.Split(prop, "-")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	return b.String()
}

// Value normalizes a declaration value: px lengths and bare numbers become
// numbers, anything else stays a string.
func Value(raw string) jsvalue.Value {
	raw = strings.TrimSpace(raw)
	if numeric.MatchString(raw) {
		n, err := strconv.ParseFloat(strings.TrimSuffix(raw, "px"), 64)
		if err == nil {
			return jsvalue.Number(n)
		}
	}
	return jsvalue.String(raw)
}
