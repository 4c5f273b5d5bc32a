package lang

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/model"
)

// ErrUnknownLanguage is returned when a language id has no plugin and none
// can be loaded.
var ErrUnknownLanguage = errors.New("unknown language")

// Input is the code of one section handed to a plugin. Plugins never see
// sibling sections.
type Input struct {
	Lang string
	Kind model.SectionKind
	Code string
	// Lines holds the origin of each line of Code.
	Lines []model.Position
}

// Output is native code for the section's slot plus the origin of each of
// its lines.
type Output struct {
	Code  string
	Lines []model.Position
}

// Plugin transpiles one language into the native language of its slot.
type Plugin interface {
	Transpile(ctx context.Context, in Input) (Output, error)
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(ctx context.Context, in Input) (Output, error)

func (f PluginFunc) Transpile(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Identity passes native code through unchanged.
var Identity Plugin = PluginFunc(func(_ context.Context, in Input) (Output, error) {
	return Output{Code: in.Code, Lines: in.Lines}, nil
})

// Loader fetches the plugin for a custom language id.
type Loader interface {
	Load(ctx context.Context, id string) (Plugin, error)
}

// Registry maps language ids to plugins. A Registry is immutable once
// built and safe for concurrent use by any number of compiles.
type Registry struct {
	plugins map[string]Plugin
}

// Option configures a Registry under construction.
type Option func(map[string]Plugin)

// WithPlugin registers p for id, replacing any default.
func WithPlugin(id string, p Plugin) Option {
	return func(m map[string]Plugin) {
		m[normalizeID(id)] = p
	}
}

// NewRegistry builds a registry holding the native languages plus opts.
func NewRegistry(opts ...Option) *Registry {
	m := map[string]Plugin{
		model.LangMarkup:     Identity,
		"we":                 Identity,
		model.LangStylesheet: Identity,
		model.LangScript:     Identity,
		"js":                 Identity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return &Registry{plugins: m}
}

// Lookup returns the plugin registered for id.
func (r *Registry) Lookup(id string) (Plugin, bool) {
	p, ok := r.plugins[normalizeID(id)]
	return p, ok
}

// IDs returns the registered language ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Session resolves plugins for a single compile. Plugins fetched through
// the loader are cached in the session, never in the shared registry.
type Session struct {
	registry *Registry
	loader   Loader
	loaded   map[string]Plugin
}

// NewSession starts a compile session. loader may be nil.
func (r *Registry) NewSession(loader Loader) *Session {
	return &Session{registry: r, loader: loader, loaded: make(map[string]Plugin)}
}

// Plugin resolves id against the registry, the session cache and finally
// the loader.
func (s *Session) Plugin(ctx context.Context, id string) (Plugin, error) {
	id = normalizeID(id)
	if p, ok := s.registry.Lookup(id); ok {
		return p, nil
	}
	if p, ok := s.loaded[id]; ok {
		return p, nil
	}
	if s.loader == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownLanguage, id)
	}
	p, err := s.loader.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownLanguage, id, err)
	}
	ctxlog.FromContext(ctx).Debug("loaded language plugin", "lang", id)
	s.loaded[id] = p
	return p, nil
}

// Transpile runs the plugin for sec.Lang and replaces the section's code
// with native code of its slot.
func (s *Session) Transpile(ctx context.Context, sec *model.Section) error {
	id := sec.Lang
	if id == "" {
		id = model.NativeLang(sec.Kind)
	}
	p, err := s.Plugin(ctx, id)
	if err != nil {
		return err
	}
	out, err := p.Transpile(ctx, Input{Lang: normalizeID(id), Kind: sec.Kind, Code: sec.Code, Lines: sec.Lines})
	if err != nil {
		return fmt.Errorf("%s plugin on %s section: %w", id, sec.Kind, err)
	}
	sec.Code = out.Code
	sec.Lines = fitLines(out.Lines, out.Code, sec)
	sec.Lang = model.NativeLang(sec.Kind)
	return nil
}

// fitLines makes sure there is one origin per output line. Plugins that do
// not track positions get every line mapped to the section start.
func fitLines(lines []model.Position, code string, sec *model.Section) []model.Position {
	n := strings.Count(code, "\n") + 1
	if len(lines) == n {
		return lines
	}
	start := sec.Pos
	if len(sec.Lines) > 0 {
		start = sec.Lines[0]
	}
	out := make([]model.Position, n)
	for i := range out {
		if i < len(lines) {
			out[i] = lines[i]
		} else {
			out[i] = start
		}
	}
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
