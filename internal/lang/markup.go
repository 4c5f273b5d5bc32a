package lang

import (
	"github.com/smacker/go-tree-sitter/html"

	"github.com/phobologic/judc/internal/model"
)

func init() {
	Grammars[model.LangMarkup] = &Grammar{
		Name:       model.LangMarkup,
		Extensions: []string{".html", ".htm", ".tpl"},
		Slot:       model.Template,
		lang:       html.GetLanguage(),
	}
}

// Markup returns the grammar component files and templates are parsed with.
func Markup() *Grammar { return Grammars[model.LangMarkup] }
