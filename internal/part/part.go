// Package part loads section bodies that live in separate part files.
package part

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/phobologic/judc/internal/diag"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/model"
	"github.com/phobologic/judc/internal/source"
)

// Path returns the file a reference from the file from names. References
// are always slash separated.
func Path(from, ref string) string {
	if path.IsAbs(ref) {
		return filepath.FromSlash(path.Clean(ref))
	}
	return filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
}

// Classify returns the language id of a part file from its suffix. Unknown
// suffixes name a custom language.
func Classify(file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	if id := lang.ForExtension(ext); id != "" {
		return id
	}
	if ext == ".we" {
		return model.LangMarkup
	}
	return strings.TrimPrefix(ext, ".")
}

// Read reads file through r, reporting a missing file as part-not-found at
// pos.
func Read(r source.Reader, file string, pos model.Position) ([]byte, error) {
	data, err := r.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, diag.New(diag.PartNotFound, pos, "%s not found", file)
	}
	if err != nil {
		return nil, diag.Wrap(diag.IO, pos, err)
	}
	return data, nil
}

// Resolve loads the part file of every section of c that names a src.
// Inline children are resolved on their own.
func Resolve(r source.Reader, c *model.Component) error {
	for _, kind := range model.SectionKinds {
		sec := c.Section(kind)
		if sec == nil || sec.Src == "" {
			continue
		}
		file := Path(c.File, sec.Src)
		data, err := Read(r, file, sec.Pos)
		if err != nil {
			return err
		}
		sec.Code = string(data)
		sec.Lines = model.LinesFrom(model.Position{File: file, Line: 1}, sec.Code)
		if sec.Lang == "" {
			sec.Lang = Classify(file)
		}
	}
	return nil
}
