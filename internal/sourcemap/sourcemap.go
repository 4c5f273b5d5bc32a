// Package sourcemap builds version 3 source maps.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the source map format version.
const Version = 3

// CommentPrefix starts the inline source map comment appended to a bundle.
const CommentPrefix = "//# sourceMappingURL=data:application/json;charset=utf-8;base64,"

// Map is the JSON form of a source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	SourceRoot     string   `json:"sourceRoot"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

type segment struct {
	col    int
	source int
	line   int
	srcCol int
}

// Builder accumulates mappings line by line in output order.
type Builder struct {
	file     string
	sources  []string
	contents []string
	index    map[string]int
	lines    [][]segment
	lastCol  int
	mappings int
}

// New returns a builder for the generated file named file.
func New(file string) *Builder {
	return &Builder{file: file, index: make(map[string]int)}
}

// AddSource registers an original file. Sources keep the order they were
// first added in and later additions of the same name are ignored.
func (b *Builder) AddSource(name, content string) *Builder {
	if _, ok := b.index[name]; ok {
		return b
	}
	b.index[name] = len(b.sources)
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return b
}

// HasSource reports whether name was added.
func (b *Builder) HasSource(name string) bool {
	_, ok := b.index[name]
	return ok
}

// AddLine starts a new generated line.
func (b *Builder) AddLine() *Builder {
	b.lines = append(b.lines, nil)
	b.lastCol = 0
	return b
}

// AddMapping maps generated column col of the current line to the
// zero-based line and column of source.
func (b *Builder) AddMapping(col int, source string, line, srcCol int) error {
	if len(b.lines) == 0 {
		return errors.New("a line must be added before mappings can be added")
	}
	idx, ok := b.index[source]
	if !ok {
		return fmt.Errorf("unknown source file %q", source)
	}
	if col < b.lastCol {
		return errors.New("mappings must be added in output order")
	}
	if line < 0 || srcCol < 0 {
		return fmt.Errorf("invalid source location %d:%d", line, srcCol)
	}
	cur := &b.lines[len(b.lines)-1]
	*cur = append(*cur, segment{col: col, source: idx, line: line, srcCol: srcCol})
	b.lastCol = col
	b.mappings++
	return nil
}

// Len returns the number of mappings added.
func (b *Builder) Len() int { return b.mappings }

// ToJSON returns the map, or nil when no mapping was added.
func (b *Builder) ToJSON() *Map {
	if b.mappings == 0 {
		return nil
	}
	lines := make([]string, len(b.lines))
	var lastSource, lastLine, lastSrcCol int
	var seg strings.Builder
	for i, segs := range b.lines {
		lastCol := 0
		parts := make([]string, len(segs))
		for j, s := range segs {
			seg.Reset()
			writeVLQ(&seg, s.col-lastCol)
			writeVLQ(&seg, s.source-lastSource)
			writeVLQ(&seg, s.line-lastLine)
			writeVLQ(&seg, s.srcCol-lastSrcCol)
			lastCol, lastSource, lastLine, lastSrcCol = s.col, s.source, s.line, s.srcCol
			parts[j] = seg.String()
		}
		lines[i] = strings.Join(parts, ",")
	}
	return &Map{
		Version:        Version,
		File:           b.file,
		Sources:        append([]string(nil), b.sources...),
		SourcesContent: append([]string(nil), b.contents...),
		Names:          []string{},
		Mappings:       strings.Join(lines, ";"),
	}
}

// Comment returns the inline source map comment, or "" when no mapping was
// added.
func (b *Builder) Comment() (string, error) {
	m := b.ToJSON()
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding source map: %w", err)
	}
	return CommentPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses the inline source map comment found in code.
func Decode(code string) (*Map, error) {
	i := strings.LastIndex(code, CommentPrefix)
	if i < 0 {
		return nil, errors.New("no inline source map")
	}
	payload := code[i+len(CommentPrefix):]
	if end := strings.IndexAny(payload, "\r\n"); end >= 0 {
		payload = payload[:end]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding source map: %w", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing source map: %w", err)
	}
	return &m, nil
}

const b64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(b *strings.Builder, value int) {
	if value < 0 {
		value = (-value << 1) + 1
	} else {
		value <<= 1
	}
	for {
		digit := value & 31
		value >>= 5
		if value > 0 {
			digit |= 32
		}
		b.WriteByte(b64Digits[digit])
		if value == 0 {
			return
		}
	}
}

// Segment is one decoded mapping.
type Segment struct {
	Line, Column          int
	Source                int
	SourceLine, SourceCol int
}

// Segments decodes the mappings of m into absolute positions.
func (m *Map) Segments() ([]Segment, error) {
	var out []Segment
	var source, srcLine, srcCol int
	for line, text := range strings.Split(m.Mappings, ";") {
		col := 0
		if text == "" {
			continue
		}
		for _, field := range strings.Split(text, ",") {
			vals, err := readVLQs(field)
			if err != nil {
				return nil, err
			}
			if len(vals) != 4 {
				return nil, fmt.Errorf("segment %q has %d fields", field, len(vals))
			}
			col += vals[0]
			source += vals[1]
			srcLine += vals[2]
			srcCol += vals[3]
			out = append(out, Segment{Line: line, Column: col, Source: source, SourceLine: srcLine, SourceCol: srcCol})
		}
	}
	return out, nil
}

func readVLQs(s string) ([]int, error) {
	var out []int
	value, shift := 0, 0
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(b64Digits, s[i])
		if d < 0 {
			return nil, fmt.Errorf("invalid base64 digit %q", s[i])
		}
		value += (d & 31) << shift
		if d&32 != 0 {
			shift += 5
			continue
		}
		if value&1 == 1 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("truncated segment %q", s)
	}
	return out, nil
}
