package lang

import (
	"github.com/smacker/go-tree-sitter/css"

	"github.com/phobologic/judc/internal/model"
)

func init() {
	Grammars[model.LangStylesheet] = &Grammar{
		Name:       model.LangStylesheet,
		Extensions: []string{".css"},
		Slot:       model.Style,
		lang:       css.GetLanguage(),
	}
}

// Stylesheet returns the CSS grammar.
func Stylesheet() *Grammar { return Grammars[model.LangStylesheet] }
