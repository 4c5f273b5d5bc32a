// Package ranking narrows a component graph report for display.
package ranking

import (
	"strings"

	"github.com/phobologic/judc/internal/graph"
)

// SelectComponents returns a new report with only the top-ranked
// components. If n is <= 0 or >= len(r.Nodes), r is returned.
func SelectComponents(r *graph.Report, n int) *graph.Report {
	if n <= 0 || n >= len(r.Nodes) {
		return r
	}

	selected := r.Nodes[:n]
	names := make(map[string]struct{}, n)
	for i := range selected {
		names[selected[i].Name] = struct{}{}
	}

	var edges []graph.Edge
	for i := range r.Edges {
		e := &r.Edges[i]
		_, srcOK := names[e.Source]
		_, tgtOK := names[e.Target]
		if srcOK && tgtOK {
			edges = append(edges, *e)
		}
	}

	return &graph.Report{Root: r.Root, Nodes: selected, Edges: edges}
}

// FilterByComponent returns a new report holding the components whose name
// or file contains substr (case-insensitive), their direct neighbors, and
// the edges touching the matched components.
func FilterByComponent(r *graph.Report, substr string) *graph.Report {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for i := range r.Nodes {
		n := &r.Nodes[i]
		if strings.Contains(strings.ToLower(n.Name), lower) || strings.Contains(strings.ToLower(n.File), lower) {
			matched[n.Name] = struct{}{}
		}
	}

	keep := make(map[string]struct{}, len(matched))
	var edges []graph.Edge
	for i := range r.Edges {
		e := &r.Edges[i]
		_, srcOK := matched[e.Source]
		_, tgtOK := matched[e.Target]
		if srcOK || tgtOK {
			edges = append(edges, *e)
			keep[e.Source] = struct{}{}
			keep[e.Target] = struct{}{}
		}
	}
	for name := range matched {
		keep[name] = struct{}{}
	}

	var nodes []graph.Node
	for i := range r.Nodes {
		if _, ok := keep[r.Nodes[i].Name]; ok {
			nodes = append(nodes, r.Nodes[i])
		}
	}

	return &graph.Report{Root: r.Root, Nodes: nodes, Edges: edges}
}

// Externals returns the distinct external specifiers of the report in node
// order.
func Externals(r *graph.Report) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := range r.Nodes {
		for _, spec := range r.Nodes[i].External {
			if _, ok := seen[spec]; ok {
				continue
			}
			seen[spec] = struct{}{}
			out = append(out, spec)
		}
	}
	return out
}
