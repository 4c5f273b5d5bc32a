// Package model defines core data structures for judc.
package model

import (
	"fmt"
	"strings"
)

// RegistryPrefix is prepended to component names to form runtime registry keys.
const RegistryPrefix = "@jud-component/"

// SectionKind identifies one slot of a component.
type SectionKind string

const (
	Template SectionKind = "template"
	Style    SectionKind = "style"
	Script   SectionKind = "script"
)

// SectionKinds lists the slots in the order they are processed and emitted.
var SectionKinds = []SectionKind{Script, Template, Style}

// Native language ids produced by every plugin for its slot.
const (
	LangMarkup     = "html"
	LangStylesheet = "css"
	LangScript     = "javascript"
)

// NativeLang returns the language id a slot is compiled from.
func NativeLang(kind SectionKind) string {
	switch kind {
	case Template:
		return LangMarkup
	case Style:
		return LangStylesheet
	default:
		return LangScript
	}
}

// Position is a location in an original input file.
// Line is 1-based, Column is a 0-based byte offset.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return ""
	}
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column+1)
}

// Advance returns the position reached after row rows and col columns of
// text starting at p. A non-zero row resets the column base to zero.
func (p Position) Advance(row, col int) Position {
	if row == 0 {
		return Position{File: p.File, Line: p.Line, Column: p.Column + col}
	}
	return Position{File: p.File, Line: p.Line + row, Column: col}
}

// LinesFrom returns the origin of every line of code, assuming code starts
// at start and is copied verbatim from a single file.
func LinesFrom(start Position, code string) []Position {
	n := strings.Count(code, "\n") + 1
	lines := make([]Position, n)
	for i := range lines {
		lines[i] = start.Advance(i, 0)
	}
	return lines
}

// Section is one slot of a component after extraction.
type Section struct {
	Kind SectionKind
	Lang string
	Code string
	// Lines holds the origin of each line of Code.
	Lines []Position
	// Src is the part reference named by a src attribute, empty when the
	// code was supplied inline.
	Src string
	// Pos is where the section was declared.
	Pos Position
}

// LinePos returns the origin of a row/column offset into the section code.
func (s *Section) LinePos(row, col int) Position {
	if row < 0 || row >= len(s.Lines) {
		return s.Pos
	}
	return s.Lines[row].Advance(0, col)
}

// DependencyKind classifies a dependency specifier.
type DependencyKind string

const (
	Local    DependencyKind = "local"
	External DependencyKind = "external"
)

// Via records which construct produced a dependency.
type Via string

const (
	ViaRequire Via = "require"
	ViaTag     Via = "tag"
	ViaInline  Via = "inline"
)

// Dependency is one specifier found in a component's script or template.
type Dependency struct {
	Specifier string
	Kind      DependencyKind
	Via       Via
	// Target names the local component, or the file of a local module.
	Target string
	// Module is true when Target is an embedded CommonJS module rather
	// than a component.
	Module bool
	// Start and End bound the require call in the script code.
	Start, End int
	Pos        Position
}

// Alias maps a component name to a file declared by an element with a src.
type Alias struct {
	Name string
	Path string
	Pos  Position
}

// Component is one compiled unit.
type Component struct {
	Name string
	// File is the file the component was declared in. Inline children
	// share their parent's file.
	File string
	// Key identifies the definition site; two references with equal keys
	// name the same definition.
	Key      string
	Sections map[SectionKind]*Section
	Aliases  []Alias
	Inline   []*Component
	// InTemplate lists, in document order, the inline children declared
	// inside the template, so the template compiler can map each element
	// declaration to its child.
	InTemplate   []*Component
	Synthesized  bool
	Dependencies []Dependency
	// Config and Data hold the compact JSON of bootstrap payload blocks.
	Config string
	Data   string
	Pos    Position
}

// Section returns the section for kind, or nil.
func (c *Component) Section(kind SectionKind) *Section {
	if c.Sections == nil {
		return nil
	}
	return c.Sections[kind]
}

// RegistryName returns the runtime registry key of the component.
func (c *Component) RegistryName() string {
	return RegistryPrefix + c.Name
}

// External returns the external specifiers the component requires directly,
// in first-occurrence order without repeats.
func (c *Component) External() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, d := range c.Dependencies {
		if d.Kind != External {
			continue
		}
		if _, ok := seen[d.Specifier]; ok {
			continue
		}
		seen[d.Specifier] = struct{}{}
		out = append(out, d.Specifier)
	}
	return out
}

// Module is a non-component CommonJS file embedded into the factories of
// the components that require it.
type Module struct {
	File         string
	Code         string
	Lines        []Position
	Dependencies []Dependency
}
