// Package template parses component markup and compiles it into the
// template tree the runtime renders.
package template

import (
	"context"
	"fmt"
	"html"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
)

// ElementTag is the tag that declares an inline child component.
const ElementTag = "element"

// Node is an element or a text run of a template.
type Node struct {
	// Tag is empty for text nodes.
	Tag      string
	Attrs    []Attr
	Children []*Node
	Text     string
	Pos      model.Position
	// Body is the byte range of the element content within the parsed code,
	// and BodyPos the position it starts at.
	Body    [2]int
	BodyPos model.Position
}

// Attr is one attribute of an element. Value is entity-decoded.
type Attr struct {
	Name     string
	Value    string
	HasValue bool
	Pos      model.Position
}

// Attr returns the attribute called name.
func (n *Node) Attr(name string) (Attr, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// IsText reports whether n is a text run.
func (n *Node) IsText() bool { return n.Tag == "" }

// SyntaxError reports malformed markup or a malformed binding.
type SyntaxError struct {
	Pos model.Position
	Msg string
}

func (e *SyntaxError) Error() string { return e.Msg }

// Parse parses the markup of sec into its top-level nodes.
func Parse(ctx context.Context, sec *model.Section) ([]*Node, error) {
	src := []byte(sec.Code)
	tree, err := lang.Markup().Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := lang.FirstError(root); bad != nil {
		return nil, &SyntaxError{Pos: position(sec, bad), Msg: fmt.Sprintf("malformed markup near %q", clip(lang.NodeText(bad, src)))}
	}
	p := &parser{sec: sec, src: src}
	return p.nodes(root), nil
}

type parser struct {
	sec *model.Section
	src []byte
}

// nodes converts the content children of n, joining adjacent text and
// entity nodes into one text run. Tags, comments and doctypes are dropped.
func (p *parser) nodes(n *sitter.Node) []*Node {
	var out []*Node
	var text *sitter.Node
	var textEnd uint32
	flush := func() {
		if text == nil {
			return
		}
		raw := strings.TrimSpace(string(p.src[text.StartByte():textEnd]))
		if raw != "" {
			out = append(out, &Node{Text: html.UnescapeString(raw), Pos: position(p.sec, text)})
		}
		text = nil
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "text", "entity":
			if text == nil {
				text = child
			}
			textEnd = child.EndByte()
		case "element", "script_element", "style_element":
			flush()
			out = append(out, p.element(child))
		default:
			flush()
		}
	}
	flush()
	return out
}

func (p *parser) element(n *sitter.Node) *Node {
	el := &Node{Pos: position(p.sec, n)}
	start, end := int(n.EndByte()), int(n.EndByte())
	startPt := n.EndPoint()
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "start_tag", "self_closing_tag":
			p.tag(el, child)
			start, startPt = int(child.EndByte()), child.EndPoint()
		case "end_tag":
			end = int(child.StartByte())
		case "raw_text":
			if raw := strings.TrimSpace(lang.NodeText(child, p.src)); raw != "" {
				el.Children = append(el.Children, &Node{Text: raw, Pos: position(p.sec, child)})
			}
		}
	}
	if end < start {
		end = start
	}
	el.Body = [2]int{start, end}
	el.BodyPos = p.sec.LinePos(int(startPt.Row), int(startPt.Column))
	el.Children = append(el.Children, p.nodes(n)...)
	return el
}

func (p *parser) tag(el *Node, n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "tag_name":
			el.Tag = strings.ToLower(lang.NodeText(child, p.src))
		case "attribute":
			el.Attrs = append(el.Attrs, p.attr(child))
		}
	}
}

func (p *parser) attr(n *sitter.Node) Attr {
	a := Attr{Pos: position(p.sec, n)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "attribute_name":
			a.Name = lang.NodeText(child, p.src)
		case "attribute_value":
			a.Value, a.HasValue = html.UnescapeString(lang.NodeText(child, p.src)), true
		case "quoted_attribute_value":
			a.HasValue = true
			if v := child.NamedChild(0); v != nil {
				a.Value = html.UnescapeString(lang.NodeText(v, p.src))
			}
		}
	}
	return a
}

// Ref is a tag used by a template.
type Ref struct {
	Tag string
	Pos model.Position
}

// Refs lists the distinct tags used under nodes in document order. Inline
// element declarations and their bodies are not searched.
func Refs(nodes []*Node) []Ref {
	var out []Ref
	seen := make(map[string]bool)
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			if n.IsText() || n.Tag == ElementTag {
				continue
			}
			if !seen[n.Tag] {
				seen[n.Tag] = true
				out = append(out, Ref{Tag: n.Tag, Pos: n.Pos})
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

// Declarations returns the inline element declarations under nodes in
// document order, without descending into a declaration.
func Declarations(nodes []*Node) []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			if n.IsText() {
				continue
			}
			if n.Tag == ElementTag {
				out = append(out, n)
				continue
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func position(sec *model.Section, n *sitter.Node) model.Position {
	pt := n.StartPoint()
	return sec.LinePos(int(pt.Row), int(pt.Column))
}

func clip(s string) string {
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
