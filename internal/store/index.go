package store

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/basket/genebank/internal/gene"
)

const indexVersion = "1"

// ScopeSets lists which gene ids exist in each scope. The index is the
// single source of truth for membership; record files are the source of
// truth for content.
type ScopeSets struct {
	Platform []string `json:"platform"`
	Shared   []string `json:"shared"`
	Local    []string `json:"local"`
}

// Index is the single per-store summary record.
type Index struct {
	Version       string    `json:"version"`
	LastSync      time.Time `json:"last_sync"`
	UploadEnabled bool      `json:"upload_enabled"`
	Genes         ScopeSets `json:"genes"`
}

// listFor returns the id list backing a scope.
func (ix *Index) listFor(scope gene.Scope) *[]string {
	switch scope {
	case gene.ScopePlatform:
		return &ix.Genes.Platform
	case gene.ScopeTeam:
		return &ix.Genes.Shared
	default:
		return &ix.Genes.Local
	}
}

// add inserts id into the scope list if absent. Reports whether the
// index changed.
func (ix *Index) add(scope gene.Scope, id string) bool {
	list := ix.listFor(scope)
	if slices.Contains(*list, id) {
		return false
	}
	*list = append(*list, id)
	return true
}

// remove deletes id from the scope list. Reports whether it was present.
func (ix *Index) remove(scope gene.Scope, id string) bool {
	list := ix.listFor(scope)
	i := slices.Index(*list, id)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	return true
}

// scopeOf reports which scope contains id, if any.
func (ix *Index) scopeOf(id string) (gene.Scope, bool) {
	for _, scope := range gene.Scopes {
		if slices.Contains(*ix.listFor(scope), id) {
			return scope, true
		}
	}
	return "", false
}

func (ix *Index) total() int {
	return len(ix.Genes.Platform) + len(ix.Genes.Shared) + len(ix.Genes.Local)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

// loadIndex reads the index from disk. A missing file yields a fresh
// index with uploads enabled; the index is never cached across calls.
func (s *Store) loadIndex() (*Index, error) {
	var ix Index
	err := readJSONFile(s.indexPath(), &ix)
	if os.IsNotExist(err) {
		return &Index{Version: indexVersion, UploadEnabled: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if ix.Version == "" {
		ix.Version = indexVersion
	}
	return &ix, nil
}

func (s *Store) saveIndex(ix *Index) error {
	return writeFileAtomic(s.indexPath(), ix)
}
