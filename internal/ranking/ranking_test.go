package ranking

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/judc/internal/graph"
	"github.com/phobologic/judc/internal/model"
)

func makeReport() *graph.Report {
	return &graph.Report{
		Root: "main",
		Nodes: []graph.Node{
			{Name: "card", File: "widgets/card.we", Rank: 0.5, External: []string{"@jud-module/modal"}},
			{Name: "list", File: "list.we", Rank: 0.3, External: []string{"@jud-module/stream", "@jud-module/modal"}},
			{Name: "main", File: "main.we", Rank: 0.2},
		},
		Edges: []graph.Edge{
			{Source: "list", Target: "card", Via: model.ViaTag},
			{Source: "main", Target: "card", Via: model.ViaRequire},
			{Source: "main", Target: "list", Via: model.ViaTag},
		},
	}
}

func names(r *graph.Report) []string {
	var out []string
	for _, n := range r.Nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestSelectComponentsAll(t *testing.T) {
	t.Parallel()

	r := makeReport()
	for _, n := range []int{0, 3, 5} {
		if got := SelectComponents(r, n); got != r {
			t.Errorf("n=%d should return the original report", n)
		}
	}
}

func TestSelectComponentsSubset(t *testing.T) {
	t.Parallel()

	got := SelectComponents(makeReport(), 2)
	if diff := cmp.Diff([]string{"card", "list"}, names(got)); diff != "" {
		t.Errorf("nodes (-want +got):\n%s", diff)
	}
	want := []graph.Edge{{Source: "list", Target: "card", Via: model.ViaTag}}
	if diff := cmp.Diff(want, got.Edges); diff != "" {
		t.Errorf("edges (-want +got):\n%s", diff)
	}
	if got.Root != "main" {
		t.Errorf("root = %q", got.Root)
	}
}

func TestFilterByComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		substr    string
		wantNodes []string
		wantEdges int
	}{
		{"by name", "LIST", []string{"card", "list", "main"}, 2},
		{"by file", "widgets/", []string{"card", "list", "main"}, 2},
		{"leaf root", "main", []string{"card", "list", "main"}, 2},
		{"no match", "zzz", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FilterByComponent(makeReport(), tt.substr)
			if diff := cmp.Diff(tt.wantNodes, names(got)); diff != "" {
				t.Errorf("nodes (-want +got):\n%s", diff)
			}
			if len(got.Edges) != tt.wantEdges {
				t.Errorf("edges = %+v, want %d", got.Edges, tt.wantEdges)
			}
		})
	}
}

func TestExternals(t *testing.T) {
	t.Parallel()

	want := []string{"@jud-module/modal", "@jud-module/stream"}
	if diff := cmp.Diff(want, Externals(makeReport())); diff != "" {
		t.Errorf("externals (-want +got):\n%s", diff)
	}
}
