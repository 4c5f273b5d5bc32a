// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/judc/internal/bundle"
	"github.com/phobologic/judc/internal/graph"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a component graph report into TOON format.
func Encode(r *graph.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(r.Root)))

	var compRows [][]string
	for i := range r.Nodes {
		n := &r.Nodes[i]
		kind := "file"
		if n.Inline {
			kind = "inline"
		}
		compRows = append(compRows, []string{
			n.Name,
			n.File,
			kind,
			fmt.Sprintf("%.4f", n.Rank),
		})
	}
	parts = append(parts, formatTabular("components", []string{"name", "file", "kind", "rank"}, compRows))

	var extRows [][]string
	for i := range r.Nodes {
		n := &r.Nodes[i]
		for _, spec := range n.External {
			extRows = append(extRows, []string{n.Name, spec})
		}
	}
	parts = append(parts, formatTabular("externals", []string{"component", "specifier"}, extRows))

	var edgeRows [][]string
	for i := range r.Edges {
		e := &r.Edges[i]
		edgeRows = append(edgeRows, []string{e.Source, e.Target, string(e.Via)})
	}
	parts = append(parts, formatTabular("edges", []string{"source", "target", "via"}, edgeRows))

	return strings.Join(parts, "\n")
}

// EncodeBundle converts the records of a built bundle into TOON format.
func EncodeBundle(file string, info *bundle.Info) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("bundle: %s", encodeValue(file)))

	var defRows [][]string
	for i := range info.Defines {
		d := &info.Defines[i]
		defRows = append(defRows, []string{
			d.Name,
			fmt.Sprintf("%d", d.Line),
			strings.Join(d.Deps, " "),
		})
	}
	parts = append(parts, formatTabular("defines", []string{"name", "line", "deps"}, defRows))

	var rootRows [][]string
	for _, r := range info.Roots {
		rootRows = append(rootRows, []string{r})
	}
	parts = append(parts, formatTabular("roots", []string{"name"}, rootRows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
