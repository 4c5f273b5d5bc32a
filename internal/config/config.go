// Package config loads the judc.hcl project file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/phobologic/judc/internal/ctxlog"
)

// FileName is the project file looked up by Find.
const FileName = "judc.hcl"

// ErrNotFound is returned by Find when no project file exists.
var ErrNotFound = errors.New(FileName + " not found")

// File is the decoded body of a project file.
type File struct {
	Entries   []string   `hcl:"entries,optional"`
	Output    string     `hcl:"output,optional"`
	SourceMap *bool      `hcl:"sourcemap,optional"`
	Ignore    []string   `hcl:"ignore,optional"`
	Aliases   []Alias    `hcl:"alias,block"`
	Languages []Language `hcl:"language,block"`
	Bootstrap *Bootstrap `hcl:"bootstrap,block"`
}

// Alias names a component file for the whole project.
type Alias struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// Language maps a language id to the command that transpiles it.
type Language struct {
	ID      string   `hcl:"id,label"`
	Command []string `hcl:"command"`
}

// Bootstrap holds the default bootstrap payload. Either value may be null.
type Bootstrap struct {
	Config cty.Value `hcl:"config,optional"`
	Data   cty.Value `hcl:"data,optional"`
}

// Project is a loaded project file with its paths made absolute.
type Project struct {
	// Dir is the directory holding the project file.
	Dir       string
	Entries   []string
	Output    string
	SourceMap bool
	Ignore    []string
	Aliases   map[string]string
	Languages map[string][]string
	// Config and Data are JSON text, empty when unset.
	Config []byte
	Data   []byte
}

// Find walks up from dir and returns the first project file found.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Load parses and decodes the project file at path.
func Load(ctx context.Context, path string) (*Project, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("decoding project file", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
	}

	var f File
	diags = gohcl.DecodeBody(file.Body, evalContext(), &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", path, diags.Error())
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	p, err := build(filepath.Dir(abs), &f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("decoded project file", "path", path, "entries", len(p.Entries), "aliases", len(p.Aliases))
	return p, nil
}

// Parse decodes project file source held in memory. dir anchors relative
// paths.
func Parse(dir, name string, src []byte) (*Project, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %s", name, diags.Error())
	}
	var f File
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &f); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %s", name, diags.Error())
	}
	return build(dir, &f)
}

func build(dir string, f *File) (*Project, error) {
	p := &Project{
		Dir:       dir,
		Output:    anchor(dir, f.Output),
		Ignore:    f.Ignore,
		Aliases:   make(map[string]string, len(f.Aliases)),
		Languages: make(map[string][]string, len(f.Languages)),
	}
	if f.SourceMap != nil {
		p.SourceMap = *f.SourceMap
	}
	for _, e := range f.Entries {
		p.Entries = append(p.Entries, anchor(dir, e))
	}
	for _, a := range f.Aliases {
		if _, dup := p.Aliases[a.Name]; dup {
			return nil, fmt.Errorf("alias %q declared twice", a.Name)
		}
		p.Aliases[a.Name] = anchor(dir, a.Path)
	}
	for _, l := range f.Languages {
		if len(l.Command) == 0 {
			return nil, fmt.Errorf("language %q has an empty command", l.ID)
		}
		if _, dup := p.Languages[l.ID]; dup {
			return nil, fmt.Errorf("language %q declared twice", l.ID)
		}
		p.Languages[l.ID] = l.Command
	}
	if b := f.Bootstrap; b != nil {
		var err error
		if p.Config, err = payload(b.Config); err != nil {
			return nil, fmt.Errorf("bootstrap config: %w", err)
		}
		if p.Data, err = payload(b.Data); err != nil {
			return nil, fmt.Errorf("bootstrap data: %w", err)
		}
	}
	return p, nil
}

// AliasNames returns the alias names, sorted.
func (p *Project) AliasNames() []string {
	names := make([]string, 0, len(p.Aliases))
	for n := range p.Aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func anchor(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, filepath.FromSlash(path))
}

func payload(v cty.Value) ([]byte, error) {
	if v.Type() == cty.NilType || v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, errors.New("value is not known")
	}
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil, fmt.Errorf("must be an object, got %s", t.FriendlyName())
	}
	return ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc reads an environment variable, returning "" when it is unset.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "name", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})
