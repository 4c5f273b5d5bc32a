// Package compiler turns component files into one bundle.
package compiler

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/discover"
	"github.com/phobologic/judc/internal/emit"
	"github.com/phobologic/judc/internal/graph"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/resolve"
	"github.com/phobologic/judc/internal/source"
	"github.com/phobologic/judc/internal/sourcemap"
)

// Error is the error every failed compile returns.
type Error = diag.Error

// Kind classifies an Error.
type Kind = diag.Kind

const (
	DuplicateDefinition = diag.DuplicateDefinition
	AmbiguousSection    = diag.AmbiguousSection
	PartNotFound        = diag.PartNotFound
	UnknownLanguage     = diag.UnknownLanguage
	CyclicDependency    = diag.CyclicDependency
	InternalConsistency = diag.InternalConsistency
	Syntax              = diag.Syntax
	Plugin              = diag.Plugin
	IO                  = diag.IO
)

// IsKind reports whether err is, or wraps, an Error of kind.
func IsKind(err error, kind Kind) bool { return diag.IsKind(err, kind) }

// Options describes one compile.
type Options struct {
	// Entries are the root component files. Each becomes a bootstrap root.
	Entries []string
	// Root is the directory source map paths are relative to. It defaults
	// to the directory of the first entry.
	Root   string
	Reader source.Reader
	// Registry is shared by concurrent compiles. Nil means the defaults.
	Registry *lang.Registry
	// Loader fetches plugins for ids the registry lacks. May be nil.
	Loader  lang.Loader
	Aliases map[string]string
	Ignore  *discover.Matcher
	// Config and Data are JSON payloads used when no root declares its own.
	Config, Data string

	SourceMap bool
	// File names the bundle inside the source map.
	File string
}

// Output is a compiled bundle.
type Output struct {
	Code string
	// Names lists the registry keys of the defined components in record
	// order.
	Names []string
	Roots []string
	Map   *sourcemap.Map
	// Graph reports the resolved component graph.
	Graph *graph.Report
}

// Compile resolves every entry and emits the bundle. A failed compile
// returns an *Error and no output.
func Compile(ctx context.Context, opts Options) (*Output, error) {
	if len(opts.Entries) == 0 {
		return nil, errors.New("no entry files")
	}
	logger := ctxlog.FromContext(ctx)
	if opts.Reader == nil {
		opts.Reader = source.OS{}
	}
	if opts.Registry == nil {
		opts.Registry = lang.NewRegistry()
	}
	if opts.Root == "" {
		opts.Root = filepath.Dir(opts.Entries[0])
	}

	r := resolve.New(resolve.Options{
		Reader:  opts.Reader,
		Session: opts.Registry.NewSession(opts.Loader),
		Aliases: opts.Aliases,
		Ignore:  opts.Ignore,
	})

	var roots []*model.Component
	var names []string
	for _, entry := range opts.Entries {
		c, err := r.Entry(ctx, entry)
		if err != nil {
			return nil, err
		}
		roots = append(roots, c)
		names = append(names, c.Name)
		logger.Debug("resolved entry", "entry", entry, "component", c.Name)
	}

	isRoot := make(map[*model.Component]bool, len(roots))
	for _, c := range roots {
		isRoot[c] = true
	}
	for _, c := range r.Graph().Order() {
		if !isRoot[c] && (c.Config != "" || c.Data != "") {
			logger.Debug("ignoring bootstrap payload of non-root component", "component", c.Name)
		}
	}

	config, data := payload(roots, opts.Config, opts.Data)
	out, err := emit.Emit(ctx, emit.Options{
		Order:     r.Graph().Order(),
		Roots:     names,
		Modules:   r.Modules(),
		Config:    config,
		Data:      data,
		SourceMap: opts.SourceMap,
		File:      opts.File,
		Root:      opts.Root,
		Reader:    opts.Reader,
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = model.RegistryPrefix + n
	}
	return &Output{
		Code:  out.Code,
		Names: out.Names,
		Roots: keys,
		Map:   out.Map,
		Graph: r.Graph().BuildReport(names[0]),
	}, nil
}

// payload picks the bootstrap config and data. A root's own payload
// blocks win over the fallbacks, the first root declaring one taking it.
func payload(roots []*model.Component, config, data string) (string, string) {
	var ownConfig, ownData bool
	for _, c := range roots {
		if c.Config != "" && !ownConfig {
			config, ownConfig = c.Config, true
		}
		if c.Data != "" && !ownData {
			data, ownData = c.Data, true
		}
	}
	return config, data
}
