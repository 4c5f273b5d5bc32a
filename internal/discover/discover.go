// Package discover finds component sources in a project and decides which
// files the project ignores.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/judc/internal/lang"
)

// ComponentExt is the suffix of component files.
const ComponentExt = ".we"

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to project root
	Language string
	ModTime  time.Time
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"build":        {},
	"dist":         {},
	"coverage":     {},
}

// Files discovers component files and the part files they may load under
// root. If exts is non-empty, only files with one of those suffixes are
// returned.
func Files(root string, exts []string) ([]FileEntry, error) {
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = struct{}{}
	}
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		langName := language(ext)
		if langName == "" {
			return nil
		}
		if len(extSet) > 0 {
			if _, ok := extSet[ext]; !ok {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		results = append(results, FileEntry{Path: rel, Language: langName, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func language(ext string) string {
	if ext == ComponentExt {
		return "we"
	}
	return lang.ForExtension(ext)
}

// Newest returns the latest modification time among entries.
func Newest(entries []FileEntry) time.Time {
	var newest time.Time
	for _, e := range entries {
		if e.ModTime.After(newest) {
			newest = e.ModTime
		}
	}
	return newest
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

// Matcher reports whether project files are ignored by the project's
// .gitignore. A nil Matcher ignores nothing.
type Matcher struct {
	root string
	gi   *ignore.GitIgnore
}

// LoadMatcher reads root/.gitignore. It returns nil when root has none.
func LoadMatcher(root string) *Matcher {
	gi := loadGitignore(root)
	if gi == nil {
		return nil
	}
	return &Matcher{root: root, gi: gi}
}

// NewMatcher builds a Matcher from gitignore lines for files under root.
func NewMatcher(root string, lines ...string) *Matcher {
	return &Matcher{root: root, gi: ignore.CompileIgnoreLines(lines...)}
}

// Ignored reports whether path is ignored. Paths outside root never are.
func (m *Matcher) Ignored(path string) bool {
	if m == nil {
		return false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return m.gi.MatchesPath(rel)
}

// Sibling returns the component file a bare name refers to in dir, that is
// dir/<name>.we, unless m ignores it.
func Sibling(m *Matcher, dir, name string) string {
	file := filepath.Join(dir, name+ComponentExt)
	if m.Ignored(file) {
		return ""
	}
	return file
}
