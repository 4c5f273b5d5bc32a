// Package emit writes the define and bootstrap records of a bundle and,
// optionally, its source map.
package emit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/jsvalue"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/script"
	"github.com/phobologic/judc/internal/source"
	"github.com/phobologic/judc/internal/sourcemap"
	"github.com/phobologic/judc/internal/style"
	"github.com/phobologic/judc/internal/template"
)

// Runtime entry points the bundle calls.
const (
	DefineFunc    = "__jud_define__"
	BootstrapFunc = "__jud_bootstrap__"
	RequireVar    = "__jud_require__"
	ExportsVar    = "__jud_exports__"
	ModuleVar     = "__jud_module__"
)

// Options describes one bundle.
type Options struct {
	// Order lists every component, dependencies first.
	Order []*model.Component
	// Roots names the bootstrapped components.
	Roots   []string
	Modules map[string]*model.Module
	// Config and Data are the compact JSON bootstrap payloads.
	Config, Data string

	SourceMap bool
	// File names the generated bundle in the source map.
	File string
	// Root is the directory source map paths are relative to.
	Root string
	// Reader supplies sourcesContent. Unreadable sources get empty content.
	Reader source.Reader
}

// Output is an emitted bundle.
type Output struct {
	Code  string
	Names []string
	Map   *sourcemap.Map
}

// Emit writes the bundle.
func Emit(ctx context.Context, opts Options) (*Output, error) {
	e := &emitter{ctx: ctx, opts: opts, sources: make(map[string][]string)}
	if opts.SourceMap {
		e.sm = sourcemap.New(opts.File)
		e.sm.AddLine()
	}

	defined := make(map[string]bool, len(opts.Order))
	var names []string
	for _, c := range opts.Order {
		if err := e.define(c); err != nil {
			return nil, err
		}
		defined[c.Name] = true
		names = append(names, c.RegistryName())
	}
	if e.err != nil {
		return nil, diag.Wrap(diag.InternalConsistency, model.Position{}, e.err)
	}

	roots := make(jsvalue.Array, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		if !defined[r] {
			return nil, diag.New(diag.InternalConsistency, model.Position{}, "bootstrap root %q has no definition", r)
		}
		roots = append(roots, jsvalue.String(model.RegistryPrefix+r))
	}
	e.write(";" + BootstrapFunc + "(" + jsvalue.Encode(roots))
	switch {
	case opts.Data != "":
		config := opts.Config
		if config == "" {
			config = "undefined"
		}
		e.write(", " + config + ", " + opts.Data)
	case opts.Config != "":
		e.write(", " + opts.Config)
	}
	e.write(")\n")

	out := &Output{Names: names}
	if e.sm != nil {
		comment, err := e.sm.Comment()
		if err != nil {
			return nil, diag.Wrap(diag.InternalConsistency, model.Position{}, err)
		}
		out.Map = e.sm.ToJSON()
		if comment != "" {
			e.write(comment + "\n")
		}
	}
	out.Code = e.buf.String()
	ctxlog.FromContext(ctx).Debug("emitted bundle", "components", len(names), "bytes", len(out.Code))
	return out, nil
}

type emitter struct {
	ctx  context.Context
	opts Options
	buf  strings.Builder
	// col is the generated column in UTF-16 code units.
	col int
	sm  *sourcemap.Builder
	// sources holds the lines of each mapped source with known content.
	sources map[string][]string
	// err is the first mapping failure.
	err error
}

// write appends s, tracking the generated column and lines.
func (e *emitter) write(s string) {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			e.buf.WriteString(s)
			e.col += utf16Len(s)
			return
		}
		e.buf.WriteString(s[:i+1])
		e.col = 0
		if e.sm != nil {
			e.sm.AddLine()
		}
		s = s[i+1:]
	}
}

// mark maps the current generated position to pos.
func (e *emitter) mark(pos model.Position) {
	if e.sm == nil || pos.File == "" || pos.Line < 1 {
		return
	}
	name := e.sourceName(pos.File)
	if !e.sm.HasSource(name) {
		content := e.content(pos.File)
		e.sm.AddSource(name, content)
		if content != "" {
			e.sources[name] = strings.Split(content, "\n")
		}
	}
	col := pos.Column
	if lines := e.sources[name]; pos.Line <= len(lines) && col >= 0 {
		line := lines[pos.Line-1]
		col = utf16Len(line[:min(col, len(line))])
	}
	if err := e.sm.AddMapping(e.col, name, pos.Line-1, col); err != nil && e.err == nil {
		e.err = fmt.Errorf("mapping %s: %w", pos, err)
	}
}

// utf16Len returns the length of s in UTF-16 code units, the unit source
// map columns are counted in.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func (e *emitter) sourceName(file string) string {
	if e.opts.Root != "" {
		if rel, err := filepath.Rel(e.opts.Root, file); err == nil {
			file = rel
		}
	}
	return filepath.ToSlash(file)
}

func (e *emitter) content(file string) string {
	if e.opts.Reader == nil {
		return ""
	}
	data, err := e.opts.Reader.ReadFile(file)
	if err != nil {
		return ""
	}
	return string(data)
}

// lines writes code line by line, mapping each line to its origin.
func (e *emitter) lines(code string, origins []model.Position) {
	for i, line := range strings.Split(code, "\n") {
		if i > 0 {
			e.write("\n")
		}
		if i < len(origins) {
			e.mark(origins[i])
		}
		e.write(line)
	}
}

// marked writes an encoded value, mapping every object that carries a
// position.
func (e *emitter) marked(v jsvalue.Value) {
	type mark struct {
		off int
		pos model.Position
	}
	var marks []mark
	s := jsvalue.EncodeMarked(v, func(off int, pos model.Position) {
		marks = append(marks, mark{off, pos})
	})
	last := 0
	for _, m := range marks {
		e.write(s[last:m.off])
		e.mark(m.pos)
		last = m.off
	}
	e.write(s[last:])
}

func (e *emitter) define(c *model.Component) error {
	mods := e.embedded(c)
	e.mark(c.Pos)
	e.write(";" + DefineFunc + "(" + jsvalue.Quote(c.RegistryName()) + ", " + jsvalue.Encode(e.externals(c)) +
		", function(" + RequireVar + ", " + ExportsVar + ", " + ModuleVar + "){\n")

	ids := make(map[string]string, len(mods))
	for i, m := range mods {
		ids[m.File] = "__jud_local_" + strconv.Itoa(i) + "__"
	}
	for _, m := range mods {
		e.write("var " + ids[m.File] + " = (function (module) {(function (module, exports, require) {\n")
		e.lines(rewrite(m.Code, m.Dependencies, ids), m.Lines)
		e.write("\n})(module, module.exports, " + RequireVar + "); return module.exports})({exports: {}})\n")
	}

	if sec := c.Section(model.Script); sec != nil && strings.TrimSpace(sec.Code) != "" {
		e.write(";(function (module, exports, require) {\n")
		e.lines(rewrite(sec.Code, c.Dependencies, ids), sec.Lines)
		e.write("\n})(" + ModuleVar + ", " + ExportsVar + ", " + RequireVar + ")\n")
	}

	if err := e.template(c); err != nil {
		return err
	}
	if err := e.style(c); err != nil {
		return err
	}
	e.write("})\n")
	return nil
}

func (e *emitter) template(c *model.Component) error {
	sec := c.Section(model.Template)
	if sec == nil || strings.TrimSpace(sec.Code) == "" {
		return nil
	}
	tree, err := template.CompileSection(e.ctx, sec, c.InTemplate)
	if err != nil {
		var de *template.DeclarationError
		if errors.As(err, &de) {
			return diag.Wrap(diag.InternalConsistency, de.Pos, fmt.Errorf("component %q: %w", c.Name, err))
		}
		return syntax(sec, err)
	}
	if tree == nil {
		return nil
	}
	e.write(";" + ModuleVar + ".exports.template = ")
	e.marked(tree)
	e.write("\n")
	return nil
}

func (e *emitter) style(c *model.Component) error {
	sec := c.Section(model.Style)
	if sec == nil || strings.TrimSpace(sec.Code) == "" {
		return nil
	}
	obj, err := style.Compile(e.ctx, sec)
	if err != nil {
		return syntax(sec, err)
	}
	e.write(";" + ModuleVar + ".exports.style = ")
	e.mark(sec.Pos)
	e.marked(obj)
	e.write("\n")
	return nil
}

// embedded returns the modules c's factory embeds, each after the modules
// it requires.
func (e *emitter) embedded(c *model.Component) []*model.Module {
	var out []*model.Module
	seen := make(map[string]bool)
	var visit func(deps []model.Dependency)
	visit = func(deps []model.Dependency) {
		for _, d := range deps {
			if !d.Module || seen[d.Target] {
				continue
			}
			seen[d.Target] = true
			m := e.opts.Modules[d.Target]
			if m == nil {
				continue
			}
			visit(m.Dependencies)
			out = append(out, m)
		}
	}
	visit(c.Dependencies)
	return out
}

// externals lists the external specifiers of c and of the modules it embeds
// in first-occurrence order.
func (e *emitter) externals(c *model.Component) jsvalue.Array {
	out := jsvalue.Array{}
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var visit func(deps []model.Dependency)
	visit = func(deps []model.Dependency) {
		for _, d := range deps {
			switch {
			case d.Kind == model.External && !seen[d.Specifier]:
				seen[d.Specifier] = true
				out = append(out, jsvalue.String(d.Specifier))
			case d.Module && !visited[d.Target]:
				visited[d.Target] = true
				if m := e.opts.Modules[d.Target]; m != nil {
					visit(m.Dependencies)
				}
			}
		}
	}
	visit(c.Dependencies)
	return out
}

// rewrite replaces local require calls: components become void 0 and
// modules the variable holding their exports.
func rewrite(code string, deps []model.Dependency, ids map[string]string) string {
	var edits []script.Edit
	for _, d := range deps {
		if d.Via != model.ViaRequire || d.Kind != model.Local || d.End <= d.Start {
			continue
		}
		text := "void 0"
		if d.Module {
			text = ids[d.Target]
		}
		edits = append(edits, script.Edit{Start: d.Start, End: d.End, Text: text})
	}
	return script.Apply(code, edits)
}

func syntax(sec *model.Section, err error) error {
	var tse *template.SyntaxError
	if errors.As(err, &tse) {
		return diag.Wrap(diag.Syntax, tse.Pos, err)
	}
	var sse *style.SyntaxError
	if errors.As(err, &sse) {
		return diag.Wrap(diag.Syntax, sse.Pos, err)
	}
	return diag.Wrap(diag.Syntax, sec.Pos, fmt.Errorf("%s section: %w", sec.Kind, err))
}
