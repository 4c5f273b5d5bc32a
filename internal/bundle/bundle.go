// Package bundle reads the registry calls back out of a built bundle.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/judc/internal/emit"
	"github.com/phobologic/judc/internal/lang"
)

// Define is one define record.
type Define struct {
	Name string
	Deps []string
	// Line is the 1-based line of the record.
	Line int
}

// Info lists the records of a bundle in source order.
type Info struct {
	Defines []Define
	Roots   []string
	// Bootstraps counts bootstrap records.
	Bootstraps int
}

// Inspect parses code and returns its define and bootstrap records.
func Inspect(ctx context.Context, code []byte) (*Info, error) {
	g := lang.Script()
	q, err := g.Query("define")
	if err != nil {
		return nil, err
	}
	tree, err := g.Parse(ctx, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := lang.FirstError(root); bad != nil {
		return nil, fmt.Errorf("bundle is not valid JavaScript at line %d", bad.StartPoint().Row+1)
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	info := &Info{}
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, code)

		var callee, first, call *sitter.Node
		for _, c := range match.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "callee":
				callee = c.Node
			case "first":
				first = c.Node
			case "call":
				call = c.Node
			}
		}
		if callee == nil || first == nil || call == nil {
			continue
		}

		switch lang.NodeText(callee, code) {
		case emit.DefineFunc:
			name, err := str(first, code)
			if err != nil {
				return nil, err
			}
			d := Define{Name: name, Line: int(call.StartPoint().Row) + 1}
			if args := call.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 1 {
				if d.Deps, err = strs(args.NamedChild(1), code); err != nil {
					return nil, err
				}
			}
			info.Defines = append(info.Defines, d)
		case emit.BootstrapFunc:
			info.Bootstraps++
			roots, err := strs(first, code)
			if err != nil {
				return nil, err
			}
			info.Roots = append(info.Roots, roots...)
		}
	}
	return info, nil
}

// Names returns the defined names in record order.
func (i *Info) Names() []string {
	names := make([]string, len(i.Defines))
	for j, d := range i.Defines {
		names[j] = d.Name
	}
	return names
}

// Check verifies that names are defined once, that there is exactly one
// bootstrap record and that every root is defined.
func (i *Info) Check() error {
	defined := make(map[string]bool, len(i.Defines))
	for _, d := range i.Defines {
		if defined[d.Name] {
			return fmt.Errorf("%s is defined twice", d.Name)
		}
		defined[d.Name] = true
	}
	if i.Bootstraps != 1 {
		return fmt.Errorf("bundle has %d bootstrap records, want 1", i.Bootstraps)
	}
	var missing []string
	for _, r := range i.Roots {
		if !defined[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("bootstrap names undefined components: %s", strings.Join(missing, ", "))
	}
	return nil
}

func str(n *sitter.Node, code []byte) (string, error) {
	if n.Type() != "string" {
		return "", fmt.Errorf("line %d: expected a string literal, got %s", n.StartPoint().Row+1, n.Type())
	}
	var s string
	if err := json.Unmarshal([]byte(lang.NodeText(n, code)), &s); err != nil {
		return "", fmt.Errorf("line %d: %w", n.StartPoint().Row+1, err)
	}
	return s, nil
}

func strs(n *sitter.Node, code []byte) ([]string, error) {
	if n.Type() != "array" {
		return nil, fmt.Errorf("line %d: expected an array literal, got %s", n.StartPoint().Row+1, n.Type())
	}
	out := []string{}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s, err := str(n.NamedChild(i), code)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
