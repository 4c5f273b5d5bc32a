package compiler

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/judc/internal/bundle"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/source"
	"github.com/phobologic/judc/internal/sourcemap"
)

func compile(t *testing.T, files source.Map, opts Options) *Output {
	t.Helper()
	opts.Reader = files
	if opts.Entries == nil {
		opts.Entries = []string{"main.we"}
	}
	out, err := Compile(context.Background(), opts)
	require.NoError(t, err)
	return out
}

// inspect re-parses the bundle and checks its records are consistent.
func inspect(t *testing.T, out *Output) *bundle.Info {
	t.Helper()
	info, err := bundle.Inspect(context.Background(), []byte(out.Code))
	require.NoError(t, err)
	require.NoError(t, info.Check())
	assert.Equal(t, out.Names, info.Names())
	assert.Equal(t, out.Roots, info.Roots)
	return info
}

func deps(info *bundle.Info, name string) []string {
	for _, d := range info.Defines {
		if d.Name == "@jud-component/"+name {
			return d.Deps
		}
	}
	return nil
}

var requireCall = regexp.MustCompile(`\brequire\(`)

func TestSingleTemplate(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": "<template>\n  <text>Hello</text>\n</template>\n",
	}, Options{})
	want := `;__jud_define__("@jud-component/main", [], function(__jud_require__, __jud_exports__, __jud_module__){
;__jud_module__.exports.template = {"type":"text","attr":{"value":"Hello"}}
})
;__jud_bootstrap__(["@jud-component/main"])
`
	assert.Equal(t, want, out.Code)
	info := inspect(t, out)
	assert.Len(t, info.Defines, 1)
	assert.Equal(t, 1, info.Bootstraps)
}

func TestTemplateWithStyle(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<template><text class="title">Hello</text></template>
<style>
  .title { font-size: 48px; color: #333333; }
</style>`,
	}, Options{})
	inspect(t, out)
	assert.Contains(t, out.Code, `"classList":["title"]`)
	assert.Contains(t, out.Code, `;__jud_module__.exports.style = {"title":{"fontSize":48,"color":"#333333"}}`)
}

func TestTemplateStyleScript(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<template><text class="title" onclick="go">{{message}}</text></template>
<style>.title { color: red }</style>
<script>
module.exports = {
  data: { message: 'Hello' },
  methods: { go: function () {} }
}
</script>`,
	}, Options{})
	inspect(t, out)
	assert.Contains(t, out.Code, `"value":function () {return this.message}`)
	assert.Contains(t, out.Code, `"events":{"click":"go"}`)
	assert.Contains(t, out.Code, "data: { message: 'Hello' },")
	assert.Zero(t, len(requireCall.FindAllString(out.Code, -1)))
}

func TestSingleInlineElement(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<element name="item">
  <template><text>{{title}}</text></template>
  <script>module.exports = {data: {title: ''}}</script>
</element>
<template><div><item title="a"></item></div></template>`,
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-component/item", "@jud-component/main"}, info.Names())
	assert.Equal(t, []string{"@jud-component/main"}, info.Roots)
	assert.Contains(t, out.Code, `"children":[{"type":"item","attr":{"title":"a"}}]`)
}

func TestMultipleInlineElements(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<template>
  <div>
    <element><text>first</text></element>
    <element><text>second</text></element>
  </div>
</template>`,
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-component/main$0", "@jud-component/main$1", "@jud-component/main"}, info.Names())
	assert.Equal(t, []string{"@jud-component/main"}, info.Roots)
	assert.Contains(t, out.Code, `"children":[{"type":"main$0"},{"type":"main$1"}]`)
}

func TestPartedFiles(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we":   `<template src="./main.html"></template><style src="./main.css"></style><script src="./main.js"></script>`,
		"main.html": `<text class="t">{{n}}</text>`,
		"main.css":  `.t { width: 100px }`,
		"main.js":   `module.exports = {data: {n: 1}}`,
	}, Options{})
	info := inspect(t, out)
	assert.Len(t, info.Defines, 1)
	assert.Contains(t, out.Code, `"value":function () {return this.n}`)
	assert.Contains(t, out.Code, `{"t":{"width":100}}`)
	assert.Contains(t, out.Code, "module.exports = {data: {n: 1}}")
}

func TestRequireAndAliasAreLocal(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<element name="card" src="./widgets/card.we"></element>
<template><div><card></card><btn></btn></div></template>
<script>
var card = require('card')
var btn = require('./btn.we')
</script>`,
		filepath.Join("widgets", "card.we"): "<template><text>card</text></template>",
		"btn.we":                            "<template><text>btn</text></template>",
	}, Options{})
	info := inspect(t, out)
	assert.ElementsMatch(t, []string{"@jud-component/card", "@jud-component/btn", "@jud-component/main"}, info.Names())
	assert.Empty(t, deps(info, "main"))
	assert.Empty(t, requireCall.FindAllString(out.Code, -1))
	assert.Contains(t, out.Code, "var card = void 0")
}

func TestSameFolderComponent(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": "<template><div><item></item></div></template>",
		"item.we": "<template><text>item</text></template>",
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-component/item", "@jud-component/main"}, info.Names())
}

func TestConfigAndData(t *testing.T) {
	t.Parallel()

	files := source.Map{
		"main.we": `<template><text>x</text></template>
<script type="config">{ "transformerVersion": "0.1.3" }</script>
<script type="data">{ "title": "hi" }</script>`,
	}
	out := compile(t, files, Options{Config: `{"ignored":true}`})
	inspect(t, out)
	assert.Contains(t, out.Code, `;__jud_bootstrap__(["@jud-component/main"], {"transformerVersion":"0.1.3"}, {"title":"hi"})`)

	fallback := compile(t, source.Map{"main.we": "<template><text>x</text></template>"}, Options{Data: `{"a":1}`})
	assert.Contains(t, fallback.Code, `;__jud_bootstrap__(["@jud-component/main"], undefined, {"a":1})`)
}

func TestExternalModule(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<template><text onclick="show">x</text></template>
<script>
var modal = require('@jud-module/modal')
module.exports = {methods: {show: function () { modal.toast({message: 'x'}) }}}
</script>`,
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-module/modal"}, deps(info, "main"))
	assert.Equal(t, "require('@jud-module/modal')", requireCalls(out.Code))
}

var requireExpr = regexp.MustCompile(`\brequire\('[^']*'\)`)

// requireCalls returns the require call expressions of code, one per line.
func requireCalls(code string) string {
	return strings.Join(requireExpr.FindAllString(code, -1), "\n")
}

var useLine = regexp.MustCompile(`(?m)^use (\S+) as (\w+)$`)

func TestCustomLanguage(t *testing.T) {
	t.Parallel()

	reg := lang.NewRegistry(lang.WithPlugin("usescript", lang.PluginFunc(func(_ context.Context, in lang.Input) (lang.Output, error) {
		return lang.Output{Code: useLine.ReplaceAllString(in.Code, "var $2 = require('$1')"), Lines: in.Lines}, nil
	})))
	out := compile(t, source.Map{
		"main.we": "<template><text>x</text></template>\n<script lang=\"usescript\">\nuse @jud-module/modal as modal\n</script>",
	}, Options{Registry: reg})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-module/modal"}, deps(info, "main"))
	assert.Equal(t, "require('@jud-module/modal')", requireCalls(out.Code))
}

func TestCommonJSModule(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": `<template><text>x</text></template>
<script>
var format = require('./lib/format.js')
var modal = require('@jud-module/modal')
</script>`,
		filepath.Join("lib", "format.js"): "module.exports = function (s) { return '[' + s + ']' }",
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-module/modal"}, deps(info, "main"))
	assert.Equal(t, "require('@jud-module/modal')", requireCalls(out.Code))
	assert.Contains(t, out.Code, "var format = __jud_local_0__")
	assert.Contains(t, out.Code, "module.exports = function (s) { return '[' + s + ']' }")
}

func TestJudModuleInsideCommonJS(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we": "<template><text>x</text></template>\n<script>\nvar toast = require('./toast')\n</script>",
		"toast.js": "var modal = require('@jud-module/modal')\nmodule.exports = function (m) { modal.toast({message: m}) }",
	}, Options{})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-module/modal"}, deps(info, "main"))
	assert.Equal(t, "require('@jud-module/modal')", requireCalls(out.Code))
	assert.Contains(t, out.Code, "var toast = __jud_local_0__")
}

func TestSourceMap(t *testing.T) {
	t.Parallel()

	files := source.Map{
		"main.we":  "<template>\n  <text class=\"a\">x</text>\n</template>\n<style src=\"./main.css\"></style>\n<script>\nvar m = require('@jud-module/modal')\n</script>",
		"main.css": ".a {\n  width: 1px;\n}",
	}
	out := compile(t, files, Options{SourceMap: true, File: "main.js"})
	inspect(t, out)

	m, err := sourcemap.Decode(out.Code)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, out.Map, m)
	assert.Equal(t, sourcemap.Version, m.Version)
	assert.Equal(t, "main.js", m.File)
	assert.Equal(t, []string{"main.we", "main.css"}, m.Sources)
	assert.Equal(t, []string{files["main.we"], files["main.css"]}, m.SourcesContent)

	segs, err := m.Segments()
	require.NoError(t, err)
	lines := strings.Split(out.Code, "\n")
	var sawScript, sawStyle bool
	for _, s := range segs {
		if s.Source == 0 && strings.Contains(lines[s.Line], "require('@jud-module/modal')") {
			assert.Equal(t, 5, s.SourceLine)
			sawScript = true
		}
		if s.Source == 1 {
			sawStyle = true
		}
	}
	assert.True(t, sawScript, "script line not mapped")
	assert.True(t, sawStyle, "part file not mapped")
	assert.True(t, strings.HasPrefix(lines[len(lines)-2], sourcemap.CommentPrefix))
}

func exampleFiles() source.Map {
	return source.Map{
		filepath.Join("app", "main.we"): `<element name="header" src="../shared/header.we"></element>
<template>
  <div class="page">
    <header title="{{title}}"></header>
    <list items="{{items}}"></list>
    <element>
      <template><text class="foot">{{year}}</text></template>
      <style>.foot { font-size: 12px }</style>
    </element>
  </div>
</template>
<style>
  .page { flex-direction: column; padding: 20px }
</style>
<script>
var storage = require('@jud-module/storage')
var fmt = require('./fmt.js')
module.exports = {
  data: { title: fmt('home'), items: [] },
  created: function () { storage.getItem('items', function () {}) }
}
</script>
<script type="config">{"transformerVersion": "0.3.1"}</script>`,
		filepath.Join("app", "list.we"): `<template>
  <div>
    <cell repeat="{{item in items}}"></cell>
  </div>
</template>
<script>
var modal = require('@jud-module/modal')
module.exports = { data: { items: [] } }
</script>`,
		filepath.Join("app", "cell.we"): `<template><text>{{item.name}}</text></template>`,
		filepath.Join("app", "fmt.js"):  "var modal = require('@jud-module/modal')\nmodule.exports = function (s) { return s }",
		filepath.Join("shared", "header.we"): `<template><text class="h">{{title}}</text></template>
<style>.h { font-weight: bold }</style>`,
	}
}

func TestExample(t *testing.T) {
	t.Parallel()

	out := compile(t, exampleFiles(), Options{Entries: []string{filepath.Join("app", "main.we")}})
	info := inspect(t, out)

	want := []string{
		"@jud-component/header",
		"@jud-component/cell",
		"@jud-component/list",
		"@jud-component/main$0",
		"@jud-component/main",
	}
	assert.ElementsMatch(t, want, info.Names())
	assert.Equal(t, []string{"@jud-component/main"}, info.Roots)
	assert.Equal(t, []string{"@jud-module/modal"}, deps(info, "list"))
	assert.ElementsMatch(t, []string{"@jud-module/storage", "@jud-module/modal"}, deps(info, "main"))
	assert.Empty(t, deps(info, "cell"))
	assert.Contains(t, out.Code, `{"transformerVersion":"0.3.1"}`)

	var graphNames []string
	for _, n := range out.Graph.Nodes {
		graphNames = append(graphNames, "@jud-component/"+n.Name)
	}
	sort.Strings(graphNames)
	names := info.Names()
	sort.Strings(names)
	assert.Equal(t, graphNames, names)
}

func TestIdempotent(t *testing.T) {
	t.Parallel()

	opts := Options{Entries: []string{filepath.Join("app", "main.we")}, SourceMap: true}
	first := compile(t, exampleFiles(), opts)
	second := compile(t, exampleFiles(), opts)
	assert.Equal(t, first.Code, second.Code)
}

func TestSeveralEntries(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"a.we":      "<template><shared></shared></template>",
		"b.we":      "<template><shared></shared></template>",
		"shared.we": "<template><text>s</text></template>",
	}, Options{Entries: []string{"a.we", "b.we"}})
	info := inspect(t, out)
	assert.Equal(t, []string{"@jud-component/shared", "@jud-component/a", "@jud-component/b"}, info.Names())
	assert.Equal(t, []string{"@jud-component/a", "@jud-component/b"}, info.Roots)
}

func TestInlineElementInPartedTemplate(t *testing.T) {
	t.Parallel()

	out := compile(t, source.Map{
		"main.we":   `<template src="./main.html"></template>`,
		"main.html": "<div><element><text>child</text></element></div>",
	}, Options{})
	inspect(t, out)
	assert.Equal(t, []string{"@jud-component/main$0", "@jud-component/main"}, out.Names)
	assert.Contains(t, out.Code, `{"type":"div","children":[{"type":"main$0"}]}`)
	assert.Contains(t, out.Code, `{"type":"text","attr":{"value":"child"}}`)
}

func TestInlineElementInCustomLanguageTemplate(t *testing.T) {
	t.Parallel()

	identity := lang.PluginFunc(func(_ context.Context, in lang.Input) (lang.Output, error) {
		return lang.Output{Code: in.Code, Lines: in.Lines}, nil
	})
	out := compile(t, source.Map{
		"main.we": `<template lang="tpl"><div><element><text>child</text></element></div></template>`,
	}, Options{Registry: lang.NewRegistry(lang.WithPlugin("tpl", identity))})
	inspect(t, out)
	assert.Equal(t, []string{"@jud-component/main$0", "@jud-component/main"}, out.Names)
	assert.Contains(t, out.Code, `{"type":"div","children":[{"type":"main$0"}]}`)
}

func TestInlineChildShadowingSiblingFails(t *testing.T) {
	t.Parallel()

	for _, tags := range []string{"<a></a><b></b>", "<b></b><a></a>"} {
		files := source.Map{
			"main.we": "<template><div>" + tags + "</div></template>",
			"a.we":    `<template><div><element name="item"><text>inline item</text></element><item></item></div></template>`,
			"b.we":    "<template><item></item></template>",
			"item.we": "<template><text>file item</text></template>",
		}
		_, err := Compile(context.Background(), Options{Entries: []string{"main.we"}, Reader: files})
		assert.True(t, IsKind(err, DuplicateDefinition), "%s: err = %v, want %s", tags, err, DuplicateDefinition)
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   source.Map
		entries []string
		kind    Kind
	}{
		{
			name:    "duplicate entry names",
			files:   source.Map{"main.we": "<template><text></text></template>", filepath.Join("sub", "main.we"): "<template><text></text></template>"},
			entries: []string{"main.we", filepath.Join("sub", "main.we")},
			kind:    DuplicateDefinition,
		},
		{
			name:  "self reference",
			files: source.Map{"main.we": "<template><div><main></main></div></template>"},
			kind:  CyclicDependency,
		},
		{
			name:  "inline and src",
			files: source.Map{"main.we": `<template src="./x.html"><text></text></template>`, "x.html": "<text></text>"},
			kind:  AmbiguousSection,
		},
		{
			name:  "missing entry",
			files: source.Map{},
			kind:  PartNotFound,
		},
		{
			name:  "unknown language",
			files: source.Map{"main.we": `<style lang="stylus">.a {}</style>`},
			kind:  UnknownLanguage,
		},
		{
			name:  "two template roots",
			files: source.Map{"main.we": "<template><text></text><text></text></template>"},
			kind:  Syntax,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entries := tt.entries
			if entries == nil {
				entries = []string{"main.we"}
			}
			out, err := Compile(context.Background(), Options{Entries: entries, Reader: tt.files})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, IsKind(err, tt.kind), "err = %v, want %s", err, tt.kind)
		})
	}
}

func TestNoEntries(t *testing.T) {
	t.Parallel()

	_, err := Compile(context.Background(), Options{})
	assert.Error(t, err)
}
