// Package resolve walks the component graph from entry files, classifying
// every dependency as local or external and loading local ones.
package resolve

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/discover"
	"github.com/phobologic/judc/internal/graph"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/parse"
	"github.com/phobologic/judc/internal/part"
	"github.com/phobologic/judc/internal/script"
	"github.com/phobologic/judc/internal/source"
	"github.com/phobologic/judc/internal/template"
)

// ModuleExt is the suffix of embeddable CommonJS modules.
const ModuleExt = ".js"

var bareName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Options configures a Resolver.
type Options struct {
	Reader source.Reader
	// Session transpiles custom-language sections. Defaults to a session
	// over the native languages only.
	Session *lang.Session
	// Aliases maps project-wide component names to their files.
	Aliases map[string]string
	// Ignore hides files from same-folder lookup.
	Ignore *discover.Matcher
}

// Resolver loads the components and modules reachable from entry files.
// A Resolver serves one compile and is not safe for concurrent use.
type Resolver struct {
	opts    Options
	graph   *graph.Graph
	parents map[*model.Component]*model.Component
	files   map[string][]byte
	missing map[string]bool

	modules map[string]*model.Module
	modPath []string
}

// New returns a Resolver.
func New(opts Options) *Resolver {
	if opts.Reader == nil {
		opts.Reader = source.OS{}
	}
	if opts.Session == nil {
		opts.Session = lang.NewRegistry().NewSession(nil)
	}
	return &Resolver{
		opts:    opts,
		graph:   graph.New(),
		parents: make(map[*model.Component]*model.Component),
		files:   make(map[string][]byte),
		missing: make(map[string]bool),
		modules: make(map[string]*model.Module),
	}
}

// Graph returns the component graph built so far.
func (r *Resolver) Graph() *graph.Graph { return r.graph }

// Modules returns the loaded CommonJS modules keyed by file.
func (r *Resolver) Modules() map[string]*model.Module { return r.modules }

// Name returns the component name of a file: its basename without suffix.
func Name(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Entry resolves the root component in file and everything it depends on.
func (r *Resolver) Entry(ctx context.Context, file string) (*model.Component, error) {
	return r.file(ctx, Name(file), file, model.Position{File: filepath.Clean(file)})
}

// file resolves the component called name defined by file.
func (r *Resolver) file(ctx context.Context, name, file string, pos model.Position) (*model.Component, error) {
	file = filepath.Clean(file)
	if prev, ok := r.graph.Lookup(name); ok {
		return prev, r.revisit(prev, file, pos)
	}
	data, err := r.read(file, pos)
	if err != nil {
		return nil, err
	}
	c, err := parse.File(ctx, name, file, data)
	if err != nil {
		return nil, err
	}
	return c, r.visit(ctx, c, pos)
}

// revisit checks a reference to an already defined name.
func (r *Resolver) revisit(prev *model.Component, key string, pos model.Position) error {
	if prev.Key != key {
		return diag.New(diag.DuplicateDefinition, pos,
			"component %q refers to %s but is already defined by %s", prev.Name, key, prev.Key)
	}
	if r.graph.Resolving(prev.Name) {
		return r.graph.Enter(prev.Name, pos)
	}
	return nil
}

// visit resolves c unless an equal definition already was.
func (r *Resolver) visit(ctx context.Context, c *model.Component, pos model.Position) error {
	if prev, ok := r.graph.Lookup(c.Name); ok {
		return r.revisit(prev, c.Key, pos)
	}
	if _, err := r.graph.Define(c); err != nil {
		return err
	}
	if err := r.graph.Enter(c.Name, pos); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("resolving component", "component", c.Name, "key", c.Key)

	if err := part.Resolve(r.opts.Reader, c); err != nil {
		return err
	}
	if err := r.transpile(ctx, c); err != nil {
		return err
	}
	if err := parse.Declare(ctx, c); err != nil {
		return err
	}
	for _, ch := range c.Inline {
		r.parents[ch] = c
	}
	for _, ch := range c.Inline {
		if err := r.visit(ctx, ch, ch.Pos); err != nil {
			return err
		}
	}
	if err := r.scriptDeps(ctx, c); err != nil {
		return err
	}
	if err := r.templateDeps(ctx, c); err != nil {
		return err
	}
	r.graph.Leave(c)
	return nil
}

func (r *Resolver) transpile(ctx context.Context, c *model.Component) error {
	for _, kind := range model.SectionKinds {
		sec := c.Section(kind)
		if sec == nil {
			continue
		}
		if err := r.opts.Session.Transpile(ctx, sec); err != nil {
			if errors.Is(err, lang.ErrUnknownLanguage) {
				return diag.Wrap(diag.UnknownLanguage, sec.Pos, err)
			}
			return diag.Wrap(diag.Plugin, sec.Pos, err)
		}
	}
	return nil
}

func (r *Resolver) scriptDeps(ctx context.Context, c *model.Component) error {
	sec := c.Section(model.Script)
	if sec == nil {
		return nil
	}
	reqs, err := script.Requires(ctx, sec.Code)
	if err != nil {
		return scriptError(sec, err)
	}
	for _, req := range reqs {
		pos := sec.LinePos(req.Row, req.Column)
		d, err := r.require(ctx, c, req.Specifier, pos)
		if err != nil {
			return err
		}
		d.Start, d.End = req.Start, req.End
		c.Dependencies = append(c.Dependencies, d)
	}
	return nil
}

func (r *Resolver) templateDeps(ctx context.Context, c *model.Component) error {
	sec := c.Section(model.Template)
	if sec == nil || strings.TrimSpace(sec.Code) == "" {
		return nil
	}
	nodes, err := template.Parse(ctx, sec)
	if err != nil {
		var se *template.SyntaxError
		if errors.As(err, &se) {
			return diag.Wrap(diag.Syntax, se.Pos, err)
		}
		return diag.Wrap(diag.Syntax, sec.Pos, err)
	}
	for _, ref := range template.Refs(nodes) {
		target, ok, err := r.lookup(ctx, c, ref.Tag, ref.Pos)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		c.Dependencies = append(c.Dependencies, model.Dependency{
			Specifier: ref.Tag,
			Kind:      model.Local,
			Via:       model.ViaTag,
			Target:    target,
			Pos:       ref.Pos,
		})
	}
	return nil
}

// require classifies one require specifier of a component script.
func (r *Resolver) require(ctx context.Context, c *model.Component, spec string, pos model.Position) (model.Dependency, error) {
	d := model.Dependency{Specifier: spec, Via: model.ViaRequire, Pos: pos}
	if isRelative(spec) {
		return r.relative(ctx, d, c.File)
	}
	target, ok, err := r.lookup(ctx, c, spec, pos)
	if err != nil {
		return d, err
	}
	if ok {
		d.Kind, d.Target = model.Local, target
		return d, nil
	}
	d.Kind = model.External
	return d, nil
}

// relative resolves a path specifier to a component or a module.
func (r *Resolver) relative(ctx context.Context, d model.Dependency, from string) (model.Dependency, error) {
	file, err := r.locate(part.Path(from, d.Specifier), d.Pos)
	if err != nil {
		return d, err
	}
	d.Kind = model.Local
	if strings.EqualFold(filepath.Ext(file), discover.ComponentExt) {
		name := Name(file)
		if _, err := r.file(ctx, name, file, d.Pos); err != nil {
			return d, err
		}
		d.Target = name
		return d, nil
	}
	if err := r.module(ctx, file, d.Pos); err != nil {
		return d, err
	}
	d.Target, d.Module = file, true
	return d, nil
}

// lookup resolves a bare name through component aliases, project aliases,
// the inline children of c and its owners, and finally the same folder.
// Names defined elsewhere in the graph are not matched, so the result does
// not depend on traversal order.
func (r *Resolver) lookup(ctx context.Context, c *model.Component, name string, pos model.Position) (string, bool, error) {
	for owner := c; owner != nil; owner = r.parents[owner] {
		for _, a := range owner.Aliases {
			if a.Name != name {
				continue
			}
			file, err := r.locate(part.Path(owner.File, a.Path), a.Pos)
			if err != nil {
				return "", false, err
			}
			_, err = r.file(ctx, name, file, pos)
			return name, err == nil, err
		}
	}

	if path, ok := r.opts.Aliases[name]; ok {
		file, err := r.locate(filepath.FromSlash(path), pos)
		if err != nil {
			return "", false, err
		}
		_, err = r.file(ctx, name, file, pos)
		return name, err == nil, err
	}

	for owner := c; owner != nil; owner = r.parents[owner] {
		for _, ch := range owner.Inline {
			if ch.Name == name {
				err := r.visit(ctx, ch, pos)
				return name, err == nil, err
			}
		}
	}

	if !bareName.MatchString(name) {
		return "", false, nil
	}
	file := discover.Sibling(r.opts.Ignore, filepath.Dir(c.File), name)
	if file == "" || !r.exists(file) {
		return "", false, nil
	}
	_, err := r.file(ctx, name, file, pos)
	return name, err == nil, err
}

// module loads the CommonJS module in file and, recursively, the local
// files it requires.
func (r *Resolver) module(ctx context.Context, file string, pos model.Position) error {
	if _, ok := r.modules[file]; ok {
		return nil
	}
	for i, f := range r.modPath {
		if f == file {
			cycle := append(append([]string(nil), r.modPath[i:]...), file)
			return diag.New(diag.CyclicDependency, pos, "%s", strings.Join(cycle, " -> "))
		}
	}
	r.modPath = append(r.modPath, file)
	defer func() { r.modPath = r.modPath[:len(r.modPath)-1] }()

	data, err := r.read(file, pos)
	if err != nil {
		return err
	}
	start := model.Position{File: file, Line: 1}
	m := &model.Module{File: file, Code: string(data), Lines: model.LinesFrom(start, string(data))}
	sec := &model.Section{Kind: model.Script, Code: m.Code, Lines: m.Lines, Pos: start}

	reqs, err := script.Requires(ctx, m.Code)
	if err != nil {
		return scriptError(sec, err)
	}
	for _, req := range reqs {
		d := model.Dependency{Specifier: req.Specifier, Via: model.ViaRequire, Pos: sec.LinePos(req.Row, req.Column)}
		if isRelative(req.Specifier) {
			if d, err = r.relative(ctx, d, file); err != nil {
				return err
			}
		} else {
			d.Kind = model.External
		}
		d.Start, d.End = req.Start, req.End
		m.Dependencies = append(m.Dependencies, d)
	}

	ctxlog.FromContext(ctx).Debug("loaded module", "file", file, "requires", len(reqs))
	r.modules[file] = m
	return nil
}

// locate finds the file a path reference names, trying the component and
// module suffixes when the exact path does not exist.
func (r *Resolver) locate(base string, pos model.Position) (string, error) {
	for _, file := range []string{base, base + discover.ComponentExt, base + ModuleExt} {
		if r.exists(file) {
			return filepath.Clean(file), nil
		}
	}
	return "", diag.New(diag.PartNotFound, pos, "cannot find %s", base)
}

func (r *Resolver) exists(file string) bool {
	_, err := r.read(file, model.Position{})
	return err == nil
}

// read returns the content of file, reading each file at most once.
func (r *Resolver) read(file string, pos model.Position) ([]byte, error) {
	file = filepath.Clean(file)
	if data, ok := r.files[file]; ok {
		return data, nil
	}
	if r.missing[file] {
		return nil, diag.New(diag.PartNotFound, pos, "%s not found", file)
	}
	data, err := r.opts.Reader.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		r.missing[file] = true
		return nil, diag.New(diag.PartNotFound, pos, "%s not found", file)
	}
	if err != nil {
		return nil, diag.Wrap(diag.IO, pos, err)
	}
	r.files[file] = data
	return data, nil
}

func isRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

func scriptError(sec *model.Section, err error) error {
	var se *script.SyntaxError
	if errors.As(err, &se) {
		return diag.Wrap(diag.Syntax, sec.LinePos(se.Row, se.Column), err)
	}
	return diag.Wrap(diag.Syntax, sec.Pos, err)
}
