package graph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/model"
)

func comp(name, key string, deps ...string) *model.Component {
	c := &model.Component{Name: name, Key: key, File: key, Pos: model.Position{File: key, Line: 1}}
	for _, d := range deps {
		c.Dependencies = append(c.Dependencies, model.Dependency{Specifier: d, Kind: model.Local, Via: model.ViaTag, Target: d})
	}
	return c
}

func TestDefineSameKeyReuses(t *testing.T) {
	t.Parallel()

	g := New()
	first := comp("a", "a.we")
	if _, err := g.Define(first); err != nil {
		t.Fatal(err)
	}
	got, err := g.Define(comp("a", "a.we"))
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	if got != first {
		t.Error("expected the first definition back")
	}
}

func TestDefineDuplicate(t *testing.T) {
	t.Parallel()

	g := New()
	if _, err := g.Define(comp("a", "x/a.we")); err != nil {
		t.Fatal(err)
	}
	_, err := g.Define(comp("a", "y/a.we"))
	if !diag.IsKind(err, diag.DuplicateDefinition) {
		t.Fatalf("err = %v, want duplicate-definition", err)
	}
}

func TestEnterCycle(t *testing.T) {
	t.Parallel()

	g := New()
	for _, n := range []string{"root", "a", "b"} {
		if err := g.Enter(n, model.Position{}); err != nil {
			t.Fatal(err)
		}
	}
	err := g.Enter("a", model.Position{File: "b.we", Line: 3})
	if !diag.IsKind(err, diag.CyclicDependency) {
		t.Fatalf("err = %v, want cyclic-dependency", err)
	}
	want := "b.we:3:1: cyclic-dependency: a -> b -> a"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
}

func TestOrderIsPostOrder(t *testing.T) {
	t.Parallel()

	g := New()
	root, a, b := comp("root", "root.we", "a"), comp("a", "a.we", "b"), comp("b", "b.we")
	for _, c := range []*model.Component{root, a, b} {
		if _, err := g.Define(c); err != nil {
			t.Fatal(err)
		}
		if err := g.Enter(c.Name, c.Pos); err != nil {
			t.Fatal(err)
		}
	}
	if !g.Resolving("a") {
		t.Error("a should be on the path")
	}
	g.Leave(b)
	g.Leave(a)
	g.Leave(root)
	g.Leave(root)

	var names []string
	for _, c := range g.Order() {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"b", "a", "root"}, names); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if !g.done["a"] || g.Resolving("a") {
		t.Error("a should be done and off the path")
	}
}

func TestBuildEdges(t *testing.T) {
	t.Parallel()

	root := comp("root", "root.we", "b", "a", "b")
	root.Inline = []*model.Component{comp("root$0", "root.we#0")}
	root.Dependencies = append(root.Dependencies,
		model.Dependency{Specifier: "@jud-module/modal", Kind: model.External, Via: model.ViaRequire},
		model.Dependency{Specifier: "./util.js", Kind: model.Local, Module: true, Target: "util.js"},
	)

	got := buildEdges([]*model.Component{root})
	want := []Edge{
		{Source: "root", Target: "a", Via: model.ViaTag},
		{Source: "root", Target: "b", Via: model.ViaTag},
		{Source: "root", Target: "root$0", Via: model.ViaInline},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("edges (-want +got):\n%s", diff)
	}
}

func TestRankUniform(t *testing.T) {
	t.Parallel()

	r := &Report{Nodes: []Node{{Name: "b"}, {Name: "a"}}}
	Rank(r)
	for _, n := range r.Nodes {
		if math.Abs(n.Rank-0.5) > 1e-9 {
			t.Errorf("%s rank = %f, want 0.5", n.Name, n.Rank)
		}
	}
	if r.Nodes[0].Name != "a" {
		t.Errorf("ties should sort by name, got %s first", r.Nodes[0].Name)
	}
}

func TestRankWithEdges(t *testing.T) {
	t.Parallel()

	r := &Report{
		Nodes: []Node{{Name: "root"}, {Name: "a"}, {Name: "shared"}},
		Edges: []Edge{
			{Source: "root", Target: "a"},
			{Source: "root", Target: "shared"},
			{Source: "a", Target: "shared"},
		},
	}
	Rank(r)
	if r.Nodes[0].Name != "shared" {
		t.Errorf("expected shared ranked first, got %s", r.Nodes[0].Name)
	}
	var sum float64
	for _, n := range r.Nodes {
		sum += n.Rank
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("ranks sum to %f, want 1.0", sum)
	}
}

func TestBuildReport(t *testing.T) {
	t.Parallel()

	g := New()
	child := comp("leaf", "leaf.we")
	child.Dependencies = []model.Dependency{{Specifier: "@jud-module/modal", Kind: model.External}}
	root := comp("root", "root.we", "leaf")
	for _, c := range []*model.Component{root, child} {
		_, _ = g.Define(c)
		_ = g.Enter(c.Name, c.Pos)
	}
	g.Leave(child)
	g.Leave(root)

	r := g.BuildReport("root")
	if r.Root != "root" || len(r.Nodes) != 2 || len(r.Edges) != 1 {
		t.Fatalf("report = %+v", r)
	}
	if r.Nodes[0].Name != "leaf" {
		t.Errorf("leaf should rank first, got %s", r.Nodes[0].Name)
	}
	if diff := cmp.Diff([]string{"@jud-module/modal"}, r.Nodes[0].External); diff != "" {
		t.Errorf("external (-want +got):\n%s", diff)
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	Rank(&Report{})
}
