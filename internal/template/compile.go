package template

import (
	"context"
	"regexp"
	"strings"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/jsvalue"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/style"
)

var repeatForm = regexp.MustCompile(`^(?:\(\s*([A-Za-z_$][\w$]*)\s*,\s*([A-Za-z_$][\w$]*)\s*\)|([A-Za-z_$][\w$]*))\s+in\s+(.+)$`)

// Compile turns the top-level nodes of a template into its tree. inline
// lists the children declared by element tags, in document order; unnamed
// children replace their declaration with a node of their type and named
// ones are dropped from the tree. A nil value is returned for a template
// with no content.
func Compile(ctx context.Context, nodes []*Node, inline []*model.Component) (jsvalue.Value, error) {
	c := &compiler{binder: binder{ctx: ctx}, inline: inline}
	roots, err := c.nodes(nodes)
	if err != nil {
		return nil, err
	}
	var texts []*Node
	for _, n := range nodes {
		if n.IsText() {
			texts = append(texts, n)
		}
	}
	switch {
	case len(texts) > 0:
		return nil, &SyntaxError{Pos: texts[0].Pos, Msg: "text outside the root element"}
	case len(roots) == 0:
		return nil, nil
	case len(roots) > 1:
		return nil, &SyntaxError{Pos: *roots[1].Pos, Msg: "template must have exactly one root element"}
	}
	return roots[0], nil
}

type compiler struct {
	binder
	inline []*model.Component
	next   int
}

func (c *compiler) nodes(nodes []*Node) ([]*jsvalue.Object, error) {
	var out []*jsvalue.Object
	for _, n := range nodes {
		if n.IsText() {
			continue
		}
		if n.Tag == ElementTag {
			obj, err := c.declaration(n)
			if err != nil {
				return nil, err
			}
			if obj != nil {
				out = append(out, obj)
			}
			continue
		}
		obj, err := c.element(n)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// DeclarationError reports an element declaration that no inline child
// was declared for.
type DeclarationError struct {
	Pos model.Position
}

func (e *DeclarationError) Error() string {
	return "element declaration has no inline component"
}

// declaration maps the next element declaration to its inline child.
func (c *compiler) declaration(n *Node) (*jsvalue.Object, error) {
	i := c.next
	c.next++
	if i >= len(c.inline) {
		return nil, &DeclarationError{Pos: n.Pos}
	}
	child := c.inline[i]
	if !child.Synthesized {
		return nil, nil
	}
	pos := n.Pos
	obj := jsvalue.NewObject().Set("type", jsvalue.String(child.Name))
	obj.Pos = &pos
	return obj, nil
}

func (c *compiler) element(n *Node) (*jsvalue.Object, error) {
	var id, appendMode, classList, styleObj, repeat, shown jsvalue.Value
	attr := jsvalue.NewObject()
	events := jsvalue.NewObject()
	var err error

	for _, a := range n.Attrs {
		switch {
		case a.Name == "id":
			id, err = c.value(a.Value, a.Pos)
		case a.Name == "append":
			appendMode = jsvalue.String(a.Value)
		case a.Name == "class":
			classList, err = c.classList(a.Value, a.Pos)
		case a.Name == "style":
			styleObj, err = c.style(a.Value, a.Pos)
		case a.Name == "if":
			var e string
			e, err = c.expr(unwrap(a.Value), a.Pos)
			shown = jsvalue.Func(e)
		case a.Name == "repeat":
			repeat, err = c.repeat(a.Value, a.Pos)
		case len(a.Name) > 2 && strings.HasPrefix(a.Name, "on"):
			events.Set(a.Name[2:], jsvalue.String(unwrap(a.Value)))
		default:
			var v jsvalue.Value
			v, err = c.value(a.Value, a.Pos)
			attr.Set(style.PropertyName(a.Name), v)
		}
		if err != nil {
			return nil, err
		}
	}

	children, err := c.nodes(n.Children)
	if err != nil {
		return nil, err
	}
	if text := leafText(n); text != nil && len(children) == 0 {
		v, err := c.value(text.Text, text.Pos)
		if err != nil {
			return nil, err
		}
		attr.Set("value", v)
	} else if text != nil {
		ctxlog.FromContext(c.ctx).Debug("text beside child elements ignored", "at", text.Pos.String())
	}

	pos := n.Pos
	obj := jsvalue.NewObject()
	obj.Pos = &pos
	obj.Set("type", jsvalue.String(n.Tag))
	setIf(obj, "id", id)
	setIf(obj, "append", appendMode)
	setIf(obj, "classList", classList)
	setIf(obj, "style", styleObj)
	if attr.Len() > 0 {
		obj.Set("attr", attr)
	}
	if events.Len() > 0 {
		obj.Set("events", events)
	}
	setIf(obj, "repeat", repeat)
	setIf(obj, "shown", shown)
	if len(children) > 0 {
		arr := make(jsvalue.Array, len(children))
		for i, ch := range children {
			arr[i] = ch
		}
		obj.Set("children", arr)
	}
	return obj, nil
}

func setIf(obj *jsvalue.Object, key string, v jsvalue.Value) {
	if v != nil {
		obj.Set(key, v)
	}
}

// leafText joins the text runs directly under n, or returns nil.
func leafText(n *Node) *Node {
	var texts []string
	var first *Node
	for _, ch := range n.Children {
		if !ch.IsText() {
			continue
		}
		if first == nil {
			first = ch
		}
		texts = append(texts, ch.Text)
	}
	if first == nil {
		return nil
	}
	return &Node{Text: strings.Join(texts, " "), Pos: first.Pos}
}

// style compiles an inline style attribute into a style object.
func (c *compiler) style(s string, pos model.Position) (jsvalue.Value, error) {
	obj := jsvalue.NewObject()
	for _, decl := range splitOutside(s, ';') {
		name, raw, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		raw = strings.TrimSpace(raw)
		if !hasBinding(raw) {
			obj.Set(style.PropertyName(name), style.Value(raw))
			continue
		}
		v, err := c.value(raw, pos)
		if err != nil {
			return nil, err
		}
		obj.Set(style.PropertyName(name), v)
	}
	return obj, nil
}

func (c *compiler) repeat(s string, pos model.Position) (jsvalue.Value, error) {
	body := unwrap(s)
	m := repeatForm.FindStringSubmatch(body)
	if m == nil {
		e, err := c.expr(body, pos)
		if err != nil {
			return nil, err
		}
		return jsvalue.Func(e), nil
	}
	e, err := c.expr(m[4], pos)
	if err != nil {
		return nil, err
	}
	obj := jsvalue.NewObject().Set("expression", jsvalue.Func(e))
	if m[3] != "" {
		return obj.Set("value", jsvalue.String(m[3])), nil
	}
	return obj.Set("key", jsvalue.String(m[1])).Set("value", jsvalue.String(m[2])), nil
}

// splitOutside splits s at sep, ignoring separators inside bindings.
func splitOutside(s string, sep byte) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			depth++
			i++
		case strings.HasPrefix(s[i:], "}}") && depth > 0:
			depth--
			i++
		case s[i] == sep && depth == 0:
			out = append(out, s[last:i])
			last = i + 1
		}
	}
	return append(out, s[last:])
}

// CompileSection parses and compiles a template section.
func CompileSection(ctx context.Context, sec *model.Section, inline []*model.Component) (jsvalue.Value, error) {
	nodes, err := Parse(ctx, sec)
	if err != nil {
		return nil, err
	}
	return Compile(ctx, nodes, inline)
}
