// Package graph tracks the component definitions of one compile, detects
// duplicates and cycles, and orders components for emission.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/model"
)

// Graph holds every component defined during one compile.
type Graph struct {
	byName map[string]*model.Component
	done   map[string]bool
	path   []string
	onPath map[string]bool
	order  []*model.Component
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byName: make(map[string]*model.Component),
		done:   make(map[string]bool),
		onPath: make(map[string]bool),
	}
}

// Lookup returns the component defined under name.
func (g *Graph) Lookup(name string) (*model.Component, bool) {
	c, ok := g.byName[name]
	return c, ok
}

// Define registers c under its name. A second definition with the same key
// returns the first; a different key is a duplicate-definition error.
func (g *Graph) Define(c *model.Component) (*model.Component, error) {
	if prev, ok := g.byName[c.Name]; ok {
		if prev.Key == c.Key {
			return prev, nil
		}
		return nil, diag.New(diag.DuplicateDefinition, c.Pos,
			"component %q is defined by %s and %s", c.Name, describe(prev), describe(c))
	}
	g.byName[c.Name] = c
	return c, nil
}

func describe(c *model.Component) string {
	if c.Pos.File != "" {
		return c.Pos.String()
	}
	return c.Key
}

// Enter marks name as being resolved. Entering a name already on the path
// is a cyclic-dependency error naming the cycle.
func (g *Graph) Enter(name string, pos model.Position) error {
	if g.onPath[name] {
		start := 0
		for i, n := range g.path {
			if n == name {
				start = i
				break
			}
		}
		cycle := append(append([]string(nil), g.path[start:]...), name)
		return diag.New(diag.CyclicDependency, pos, "%s", strings.Join(cycle, " -> "))
	}
	g.path = append(g.path, name)
	g.onPath[name] = true
	return nil
}

// Leave finishes the innermost entered component and appends it to the
// emission order.
func (g *Graph) Leave(c *model.Component) {
	if n := len(g.path); n > 0 {
		g.path = g.path[:n-1]
	}
	delete(g.onPath, c.Name)
	if !g.done[c.Name] {
		g.done[c.Name] = true
		g.order = append(g.order, c)
	}
}

// Resolving reports whether name is on the current resolution path.
func (g *Graph) Resolving(name string) bool { return g.onPath[name] }

// Order returns the resolved components, dependencies first.
func (g *Graph) Order() []*model.Component {
	return append([]*model.Component(nil), g.order...)
}

// Edge is a local dependency between two components.
type Edge struct {
	Source string
	Target string
	Via    model.Via
}

// Node summarizes one component for reporting.
type Node struct {
	Name     string
	File     string
	Inline   bool
	External []string
	Rank     float64
}

// Report is the component graph of one compile.
type Report struct {
	Root  string
	Nodes []Node
	Edges []Edge
}

// BuildReport summarizes the resolved components, ranked by how central
// they are to the graph.
func (g *Graph) BuildReport(root string) *Report {
	r := &Report{Root: root}
	for _, c := range g.order {
		r.Nodes = append(r.Nodes, Node{
			Name:     c.Name,
			File:     c.File,
			Inline:   strings.Contains(c.Key, "#"),
			External: c.External(),
		})
	}
	r.Edges = buildEdges(g.order)
	Rank(r)
	return r
}

// buildEdges lists component-to-component edges without repeats, sorted for
// deterministic output.
func buildEdges(comps []*model.Component) []Edge {
	type key struct{ src, tgt string }
	seen := make(map[key]bool)
	var edges []Edge
	for _, c := range comps {
		for _, ch := range c.Inline {
			if k := (key{c.Name, ch.Name}); !seen[k] {
				seen[k] = true
				edges = append(edges, Edge{Source: c.Name, Target: ch.Name, Via: model.ViaInline})
			}
		}
		for _, d := range c.Dependencies {
			if d.Kind != model.Local || d.Module || d.Target == c.Name {
				continue
			}
			k := key{c.Name, d.Target}
			if seen[k] {
				continue
			}
			seen[k] = true
			edges = append(edges, Edge{Source: c.Name, Target: d.Target, Via: d.Via})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// Rank applies PageRank to the report nodes and sorts them by rank
// descending, breaking ties by name.
func Rank(r *Report) {
	if len(r.Nodes) == 0 {
		return
	}

	if len(r.Edges) == 0 {
		uniform := 1.0 / float64(len(r.Nodes))
		for i := range r.Nodes {
			r.Nodes[i].Rank = uniform
		}
		sortNodes(r.Nodes)
		return
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	nodes := make(map[string]struct{}, len(r.Nodes))
	for i := range r.Nodes {
		nodes[r.Nodes[i].Name] = struct{}{}
	}
	for _, e := range r.Edges {
		outEdges[e.Source] = append(outEdges[e.Source], e.Target)
		outDegree[e.Source]++
	}

	ranks := pageRank(nodes, outEdges, outDegree, 0.85, 100, 1e-6)
	for i := range r.Nodes {
		r.Nodes[i].Rank = ranks[r.Nodes[i].Name]
	}
	sortNodes(r.Nodes)
}

func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Rank != nodes[j].Rank {
			return nodes[i].Rank > nodes[j].Rank
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	rank := make(map[string]float64, n)
	for node := range nodes {
		rank[node] = 1.0 / float64(n)
	}
	teleport := (1.0 - alpha) / float64(n)

	for range maxIter {
		next := make(map[string]float64, n)

		// Components with no local dependencies spread their rank evenly.
		var dangling float64
		for node := range nodes {
			if outDegree[node] == 0 {
				dangling += rank[node]
			}
		}
		for node := range nodes {
			next[node] = teleport + alpha*dangling/float64(n)
		}

		for src, targets := range outEdges {
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				next[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(next[node] - rank[node])
		}
		rank = next
		if diff < tol {
			break
		}
	}
	return rank
}
