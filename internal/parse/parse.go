// Package parse splits component files into their sections, inline children
// and aliases.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/template"
)

// Payload script types carrying bootstrap configuration and data.
const (
	TypeConfig = "config"
	TypeData   = "data"
)

// File parses the component file at path, naming the component name.
func File(ctx context.Context, name, path string, code []byte) (*model.Component, error) {
	start := model.Position{File: path, Line: 1}
	whole := &model.Section{Kind: model.Template, Code: string(code), Lines: model.LinesFrom(start, string(code)), Pos: start}
	nodes, err := template.Parse(ctx, whole)
	if err != nil {
		return nil, syntax(start, err)
	}

	c := &model.Component{Name: name, File: path, Key: path, Pos: start}
	p := &parser{ctx: ctx, code: string(code)}
	if err := p.blocks(c, nodes); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("parsed component file", "file", path, "component", name, "inline", len(c.Inline))
	return c, nil
}

// Declare adds the inline children and aliases declared by element tags in
// the template of c. The template must already be native markup, so parts
// and plugins run first.
func Declare(ctx context.Context, c *model.Component) error {
	sec := c.Section(model.Template)
	if sec == nil || strings.TrimSpace(sec.Code) == "" {
		return nil
	}
	nodes, err := template.Parse(ctx, sec)
	if err != nil {
		return syntax(sec.Pos, err)
	}
	p := &parser{ctx: ctx, code: sec.Code}
	for _, decl := range template.Declarations(nodes) {
		if err := p.element(c, decl, true); err != nil {
			return err
		}
	}
	return nil
}

type parser struct {
	ctx  context.Context
	code string
}

// blocks fills c from a sequence of top-level blocks.
func (p *parser) blocks(c *model.Component, nodes []*template.Node) error {
	for _, n := range nodes {
		var err error
		switch n.Tag {
		case "":
			ctxlog.FromContext(p.ctx).Debug("text outside blocks ignored", "at", n.Pos.String())
		case string(model.Template):
			err = p.section(c, n, model.Template)
		case string(model.Style):
			err = p.section(c, n, model.Style)
		case string(model.Script):
			err = p.script(c, n)
		case template.ElementTag:
			err = p.element(c, n, false)
		default:
			ctxlog.FromContext(p.ctx).Debug("unknown top-level block ignored", "at", n.Pos.String(), "tag", n.Tag)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) body(n *template.Node) string {
	return p.code[n.Body[0]:n.Body[1]]
}

func (p *parser) section(c *model.Component, n *template.Node, kind model.SectionKind) error {
	if prev := c.Section(kind); prev != nil {
		return diag.New(diag.AmbiguousSection, n.Pos, "component %q declares a second %s section (first at %s)", c.Name, kind, prev.Pos)
	}
	body := p.body(n)
	lang, _ := n.Attr("lang")
	src, _ := n.Attr("src")
	if src.Value != "" && strings.TrimSpace(body) != "" {
		return diag.New(diag.AmbiguousSection, n.Pos, "%s section of %q has both a src attribute and a body", kind, c.Name)
	}
	sec := &model.Section{
		Kind: kind,
		Lang: strings.TrimSpace(lang.Value),
		Src:  strings.TrimSpace(src.Value),
		Pos:  n.Pos,
	}
	if sec.Src == "" {
		sec.Code = body
		sec.Lines = model.LinesFrom(n.BodyPos, body)
	}
	if c.Sections == nil {
		c.Sections = make(map[model.SectionKind]*model.Section)
	}
	c.Sections[kind] = sec
	return nil
}

func (p *parser) script(c *model.Component, n *template.Node) error {
	typ, _ := n.Attr("type")
	switch strings.ToLower(strings.TrimSpace(typ.Value)) {
	case TypeConfig:
		return p.payload(c, n, &c.Config, TypeConfig)
	case TypeData:
		return p.payload(c, n, &c.Data, TypeData)
	}
	return p.section(c, n, model.Script)
}

func (p *parser) payload(c *model.Component, n *template.Node, dst *string, typ string) error {
	if *dst != "" {
		return diag.New(diag.AmbiguousSection, n.Pos, "component %q declares a second %s block", c.Name, typ)
	}
	body := strings.TrimSpace(p.body(n))
	if body == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return diag.Wrap(diag.Syntax, n.BodyPos, fmt.Errorf("%s block: %w", typ, err))
	}
	*dst = buf.String()
	return nil
}

// element handles an element declaration: an alias when it names a src, an
// inline child when it has a body.
func (p *parser) element(c *model.Component, n *template.Node, inTemplate bool) error {
	nameAttr, named := n.Attr("name")
	name := strings.TrimSpace(nameAttr.Value)
	src, _ := n.Attr("src")
	body := p.body(n)

	if src.Value != "" {
		if strings.TrimSpace(body) != "" {
			return diag.New(diag.AmbiguousSection, n.Pos, "element %q has both a src attribute and a body", name)
		}
		if name == "" {
			return diag.New(diag.Syntax, n.Pos, "element with src %q needs a name", src.Value)
		}
		c.Aliases = append(c.Aliases, model.Alias{Name: name, Path: strings.TrimSpace(src.Value), Pos: n.Pos})
		if inTemplate {
			c.InTemplate = append(c.InTemplate, &model.Component{Name: name, Pos: n.Pos})
		}
		return nil
	}
	if named && name == "" {
		return diag.New(diag.Syntax, n.Pos, "element has an empty name")
	}

	child := &model.Component{File: c.File, Pos: n.Pos}
	if name != "" {
		child.Name = name
		child.Key = c.Key + "#" + name
	} else {
		idx := 0
		for _, ch := range c.Inline {
			if ch.Synthesized {
				idx++
			}
		}
		child.Name = c.Name + "$" + strconv.Itoa(idx)
		child.Key = c.Key + "#$" + strconv.Itoa(idx)
		child.Synthesized = true
	}

	if hasBlocks(n.Children) {
		if err := p.blocks(child, n.Children); err != nil {
			return err
		}
	} else if strings.TrimSpace(body) != "" {
		child.Sections = map[model.SectionKind]*model.Section{
			model.Template: {
				Kind:  model.Template,
				Code:  body,
				Lines: model.LinesFrom(n.BodyPos, body),
				Pos:   n.Pos,
			},
		}
	}

	c.Inline = append(c.Inline, child)
	if inTemplate {
		c.InTemplate = append(c.InTemplate, child)
	}
	return nil
}

// hasBlocks reports whether an element body is a sequence of component
// blocks rather than bare markup.
func hasBlocks(nodes []*template.Node) bool {
	for _, n := range nodes {
		switch n.Tag {
		case string(model.Template), string(model.Style), string(model.Script):
			return true
		}
	}
	return false
}

func syntax(pos model.Position, err error) error {
	var se *template.SyntaxError
	if errors.As(err, &se) {
		return diag.Wrap(diag.Syntax, se.Pos, err)
	}
	return diag.Wrap(diag.Syntax, pos, err)
}
