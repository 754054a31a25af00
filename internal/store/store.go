// Package store persists genes across three visibility scopes, backed by
// per-scope, per-category record files plus a single index record. Every
// mutation is a read-modify-write against the on-disk state under one
// in-process mutex; files are replaced atomically.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/basket/genebank/internal/gene"
)

// Store is the scoped gene database for one instance.
type Store struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// Open prepares the store directory. The directory is created on first
// use; no index is written until the first mutation.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: directory required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("mkdir", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// scopeDir maps a gene scope to its on-disk directory name. The index
// uses the same names for its scope lists.
func scopeDir(scope gene.Scope) string {
	switch scope {
	case gene.ScopePlatform:
		return "platform"
	case gene.ScopeTeam:
		return "shared"
	default:
		return "local"
	}
}

func (s *Store) recordPath(scope gene.Scope, category gene.Category) string {
	return filepath.Join(s.dir, "genes", scopeDir(scope), string(category)+".json")
}

// loadRecords reads the record file for one (scope, category) pair.
// Missing files are empty maps.
func (s *Store) loadRecords(scope gene.Scope, category gene.Category) (map[string]gene.Gene, error) {
	records := map[string]gene.Gene{}
	err := readJSONFile(s.recordPath(scope, category), &records)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return records, nil
}

func (s *Store) saveRecords(scope gene.Scope, category gene.Category, records map[string]gene.Gene) error {
	return writeFileAtomic(s.recordPath(scope, category), records)
}

// Put writes or overwrites a gene record in the given scope, then adds
// its id to the index if absent. An id lives in exactly one scope list:
// putting an id already held by another scope is a move, which drops the
// old entry and record. Record before index: a crash in between leaves a
// dangling record (inert), never a dangling index entry.
func (s *Store) Put(ctx context.Context, g *gene.Gene, scope gene.Scope) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	prevScope, exists := ix.scopeOf(g.ID)
	moved := exists && prevScope != scope

	records, err := s.loadRecords(scope, g.Category)
	if err != nil {
		return err
	}
	records[g.ID] = *g
	if err := s.saveRecords(scope, g.Category, records); err != nil {
		return err
	}

	changed := ix.add(scope, g.ID)
	if moved {
		changed = ix.remove(prevScope, g.ID) || changed
	}
	if changed {
		if err := s.saveIndex(ix); err != nil {
			return err
		}
	}
	if moved {
		if err := s.deleteRecord(prevScope, g.ID); err != nil {
			return err
		}
		s.logger.Info("gene moved between scopes",
			"id", g.ID, "from", scopeDir(prevScope), "to", scopeDir(scope))
	}
	s.logger.Debug("gene stored", "id", g.ID, "scope", scopeDir(scope), "category", g.Category)
	return nil
}

// Get loads a gene by id from whichever scope contains it. An index entry
// pointing at a missing record is a consistency fault: logged, reported
// as not-found, never fatal.
func (s *Store) Get(ctx context.Context, id string) (*gene.Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (*gene.Gene, error) {
	ix, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	scope, ok := ix.scopeOf(id)
	if !ok {
		return nil, ErrNotFound
	}
	g, err := s.findRecord(scope, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		s.logger.Warn("index references missing gene record", "id", id, "scope", scopeDir(scope))
		return nil, ErrNotFound
	}
	return g, nil
}

// findRecord scans the scope's category files for the record.
func (s *Store) findRecord(scope gene.Scope, id string) (*gene.Gene, error) {
	for _, category := range gene.Categories {
		records, err := s.loadRecords(scope, category)
		if err != nil {
			return nil, err
		}
		if g, ok := records[id]; ok {
			return &g, nil
		}
	}
	return nil, nil
}

// Filter selects genes for List. Zero values mean "any". AgentID
// filtering always admits platform-authored and team-scoped genes.
type Filter struct {
	Scope    gene.Scope
	Category gene.Category
	AgentID  string
}

// List returns every indexed gene matching the filter.
func (s *Store) List(ctx context.Context, f Filter) ([]gene.Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	scopes := gene.Scopes
	if f.Scope != "" {
		scopes = []gene.Scope{f.Scope}
	}
	categories := gene.Categories
	if f.Category != "" {
		categories = []gene.Category{f.Category}
	}

	var out []gene.Gene
	for _, scope := range scopes {
		members := map[string]bool{}
		for _, id := range *ix.listFor(scope) {
			members[id] = true
		}
		if len(members) == 0 {
			continue
		}
		for _, category := range categories {
			records, err := s.loadRecords(scope, category)
			if err != nil {
				return nil, err
			}
			for id, g := range records {
				if !members[id] {
					// Dangling record: inert, skipped.
					continue
				}
				if f.AgentID != "" && !g.VisibleTo(f.AgentID) {
					continue
				}
				out = append(out, g)
			}
		}
	}
	return out, nil
}

// Delete removes a gene from the local or shared scope and drops its
// index entry. Platform-scope genes are deleted only by sync (see
// RemoveFromPlatform). Absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	scope, ok := ix.scopeOf(id)
	if !ok {
		return nil
	}
	if scope == gene.ScopePlatform {
		return fmt.Errorf("store: delete %s: platform-scope genes are removed by sync", id)
	}
	return s.removeLocked(ix, scope, id)
}

// RemoveFromPlatform deletes a platform-scope gene. Driven by the sync
// engine's deletion list; a no-op when the id is not in platform scope.
func (s *Store) RemoveFromPlatform(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	scope, ok := ix.scopeOf(id)
	if !ok || scope != gene.ScopePlatform {
		return nil
	}
	return s.removeLocked(ix, scope, id)
}

// removeLocked drops the index entry first, then the record, so readers
// never observe an index entry for a record being deleted.
func (s *Store) removeLocked(ix *Index, scope gene.Scope, id string) error {
	if ix.remove(scope, id) {
		if err := s.saveIndex(ix); err != nil {
			return err
		}
	}
	if err := s.deleteRecord(scope, id); err != nil {
		return err
	}
	s.logger.Debug("gene deleted", "id", id, "scope", scopeDir(scope))
	return nil
}

// deleteRecord drops the record for id from whichever category file in
// the scope holds it. Absent records are a no-op.
func (s *Store) deleteRecord(scope gene.Scope, id string) error {
	for _, category := range gene.Categories {
		records, err := s.loadRecords(scope, category)
		if err != nil {
			return err
		}
		if _, ok := records[id]; !ok {
			continue
		}
		delete(records, id)
		return s.saveRecords(scope, category, records)
	}
	return nil
}

// Contains reports whether id exists in any scope. Used by the sync
// engine to distinguish added from updated, for reporting only.
func (s *Store) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.loadIndex()
	if err != nil {
		return false, err
	}
	_, ok := ix.scopeOf(id)
	return ok, nil
}

// IncrementUsage bumps usage_count and updated_at on the record in
// whichever scope holds it.
func (s *Store) IncrementUsage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	scope, ok := ix.scopeOf(id)
	if !ok {
		return ErrNotFound
	}
	for _, category := range gene.Categories {
		records, err := s.loadRecords(scope, category)
		if err != nil {
			return err
		}
		g, ok := records[id]
		if !ok {
			continue
		}
		g.Touch(time.Now().UTC())
		records[id] = g
		return s.saveRecords(scope, category, records)
	}
	s.logger.Warn("index references missing gene record", "id", id, "scope", scopeDir(scope))
	return ErrNotFound
}

// SnapshotIndex returns a copy of the current index record.
func (s *Store) SnapshotIndex(ctx context.Context) (Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.loadIndex()
	if err != nil {
		return Index{}, err
	}
	return *ix, nil
}

// SetLastSync advances the sync watermark.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	ix.LastSync = t
	return s.saveIndex(ix)
}

// SetUploadEnabled toggles the upload gate consulted by the recorder.
func (s *Store) SetUploadEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.loadIndex()
	if err != nil {
		return err
	}
	ix.UploadEnabled = enabled
	return s.saveIndex(ix)
}

// UploadEnabled reads the upload gate.
func (s *Store) UploadEnabled(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, err := s.loadIndex()
	if err != nil {
		return false, err
	}
	return ix.UploadEnabled, nil
}
