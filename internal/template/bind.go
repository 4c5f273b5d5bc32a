package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/jsvalue"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/script"
)

var mustache = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

// globals are identifiers a binding reads from the global scope rather than
// from the component.
var globals = map[string]bool{
	"Array": true, "Boolean": true, "Date": true, "Infinity": true, "JSON": true,
	"Math": true, "NaN": true, "Number": true, "Object": true, "RegExp": true,
	"String": true, "console": true, "decodeURIComponent": true,
	"encodeURIComponent": true, "isFinite": true, "isNaN": true,
	"parseFloat": true, "parseInt": true, "undefined": true,
}

// part is a literal text run or a binding expression of an attribute value.
type part struct {
	text string
	expr bool
}

func splitBindings(s string) []part {
	var parts []part
	last := 0
	for _, m := range mustache.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			parts = append(parts, part{text: s[last:m[0]]})
		}
		parts = append(parts, part{text: strings.TrimSpace(s[m[2]:m[3]]), expr: true})
		last = m[1]
	}
	if last < len(s) {
		parts = append(parts, part{text: s[last:]})
	}
	return parts
}

func hasBinding(s string) bool { return mustache.MatchString(s) }

// unwrap strips one pair of braces around a whole-value binding.
func unwrap(s string) string {
	s = strings.TrimSpace(s)
	if m := mustache.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		return strings.TrimSpace(s[m[2]:m[3]])
	}
	return s
}

// binder rewrites binding expressions so free identifiers read from the
// component instance.
type binder struct {
	ctx context.Context
}

// value compiles an attribute or text value. Values without bindings stay
// strings; bindings become getter functions.
func (b *binder) value(s string, pos model.Position) (jsvalue.Value, error) {
	parts := splitBindings(s)
	if !hasBinding(s) {
		return jsvalue.String(s), nil
	}
	expr, err := b.concat(parts, pos)
	if err != nil {
		return nil, err
	}
	return jsvalue.Func(expr), nil
}

// concat joins parts into one string-valued expression.
func (b *binder) concat(parts []part, pos model.Position) (string, error) {
	if len(parts) == 1 && parts[0].expr {
		return b.expr(parts[0].text, pos)
	}
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if !p.expr {
			terms = append(terms, jsvalue.Quote(p.text))
			continue
		}
		e, err := b.expr(p.text, pos)
		if err != nil {
			return "", err
		}
		terms = append(terms, "("+e+")")
	}
	return strings.Join(terms, " + "), nil
}

// classList compiles a class attribute into a static array or a getter
// returning one.
func (b *binder) classList(s string, pos model.Position) (jsvalue.Value, error) {
	tokens := classTokens(splitBindings(s))
	if !hasBinding(s) {
		arr := make(jsvalue.Array, 0, len(tokens))
		for _, tok := range tokens {
			arr = append(arr, jsvalue.String(tok[0].text))
		}
		return arr, nil
	}
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		e, err := b.concat(tok, pos)
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	return jsvalue.Func("[" + strings.Join(terms, ", ") + "]"), nil
}

// classTokens splits parts at whitespace in literal runs, keeping bindings
// glued to adjacent literal text.
func classTokens(parts []part) [][]part {
	var tokens [][]part
	var cur []part
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, cur)
			cur = nil
		}
	}
	for _, p := range parts {
		if p.expr {
			cur = append(cur, p)
			continue
		}
		s := p.text
		for s != "" {
			i := strings.IndexFunc(s, unicode.IsSpace)
			if i < 0 {
				cur = append(cur, part{text: s})
				break
			}
			if i > 0 {
				cur = append(cur, part{text: s[:i]})
			}
			flush()
			s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
		}
	}
	flush()
	return tokens
}

// expr prefixes the free identifiers of a JavaScript expression with this.
func (b *binder) expr(src string, pos model.Position) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", &SyntaxError{Pos: pos, Msg: "empty binding"}
	}
	code := []byte("(" + src + ")")
	tree, err := lang.Script().Parse(b.ctx, code)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	root := tree.RootNode()
	if lang.FirstError(root) != nil || root.NamedChildCount() != 1 {
		return "", &SyntaxError{Pos: pos, Msg: fmt.Sprintf("invalid binding expression %q", src)}
	}

	var edits []script.Edit
	collectFree(root, code, nil, &edits)
	out := script.Apply(string(code), edits)
	return out[1 : len(out)-1], nil
}

func collectFree(n *sitter.Node, code []byte, scope map[string]bool, edits *[]script.Edit) {
	switch n.Type() {
	case "identifier":
		name := lang.NodeText(n, code)
		if scope[name] || globals[name] {
			return
		}
		*edits = append(*edits, script.Edit{Start: int(n.StartByte()), End: int(n.StartByte()), Text: "this."})
		return
	case "shorthand_property_identifier":
		name := lang.NodeText(n, code)
		if scope[name] {
			return
		}
		*edits = append(*edits, script.Edit{Start: int(n.StartByte()), End: int(n.EndByte()), Text: name + ": this." + name})
		return
	case "arrow_function", "function_expression", "function":
		inner := make(map[string]bool, len(scope))
		for k := range scope {
			inner[k] = true
		}
		if p := n.ChildByFieldName("parameter"); p != nil {
			bindParams(p, code, inner)
		}
		if p := n.ChildByFieldName("parameters"); p != nil {
			bindParams(p, code, inner)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			collectFree(body, code, inner, edits)
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectFree(n.NamedChild(i), code, scope, edits)
	}
}

// bindParams adds every identifier declared by a parameter list to scope.
func bindParams(n *sitter.Node, code []byte, scope map[string]bool) {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		scope[lang.NodeText(n, code)] = true
		return
	case "assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			bindParams(left, code, scope)
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		bindParams(n.NamedChild(i), code, scope)
	}
}
