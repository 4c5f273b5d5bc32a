package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/phobologic/judc/internal/model"
)

func init() {
	Grammars[model.LangScript] = &Grammar{
		Name:       model.LangScript,
		Extensions: []string{".js", ".mjs", ".cjs"},
		Slot:       model.Script,
		lang:       javascript.GetLanguage(),
	}
}

// Script returns the JavaScript grammar used for scripts, template
// expressions and built bundles.
func Script() *Grammar { return Grammars[model.LangScript] }
