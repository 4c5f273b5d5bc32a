// Package source provides the file-read capability the compiler consumes.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Reader reads whole files by path. A missing file must yield an error
// satisfying errors.Is(err, fs.ErrNotExist).
type Reader interface {
	ReadFile(path string) ([]byte, error)
}

// OS reads from the local filesystem.
type OS struct{}

func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Map is an in-memory Reader keyed by cleaned path.
type Map map[string]string

func (m Map) ReadFile(path string) ([]byte, error) {
	content, ok := m[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(content), nil
}

// Cached wraps a Reader with a bounded LRU of file contents. It is safe for
// concurrent use, so parallel compiles of bundles that share files read each
// file once. Failed reads are not cached.
type Cached struct {
	next  Reader
	cache *lru.Cache[string, []byte]
}

// NewCached returns a Cached reader holding at most size files.
func NewCached(next Reader, size int) (*Cached, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating read cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) ReadFile(path string) ([]byte, error) {
	key := filepath.Clean(path)
	if data, ok := c.cache.Get(key); ok {
		return data, nil
	}
	data, err := c.next.ReadFile(key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, data)
	return data, nil
}

// Len reports how many files are cached.
func (c *Cached) Len() int {
	return c.cache.Len()
}
