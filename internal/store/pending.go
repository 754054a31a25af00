package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// PendingUpload is one queued gene awaiting platform confirmation.
type PendingUpload struct {
	GeneID         string    `json:"gene_id"`
	AddedAt        time.Time `json:"added_at"`
	UploadAttempts int       `json:"upload_attempts"`
}

func (s *Store) pendingPath() string {
	return filepath.Join(s.dir, "pending.json")
}

func (s *Store) loadPending() ([]PendingUpload, error) {
	var queue []PendingUpload
	err := readJSONFile(s.pendingPath(), &queue)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return queue, nil
}

func (s *Store) savePending(queue []PendingUpload) error {
	return writeFileAtomic(s.pendingPath(), queue)
}

// Enqueue adds a gene id to the pending-upload queue. Idempotent: an id
// already queued is left untouched.
func (s *Store) Enqueue(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadPending()
	if err != nil {
		return err
	}
	for _, p := range queue {
		if p.GeneID == id {
			return nil
		}
	}
	queue = append(queue, PendingUpload{GeneID: id, AddedAt: time.Now().UTC()})
	return s.savePending(queue)
}

// DequeueAll returns the pending queue in insertion order without
// removing anything. Entries leave the queue only via AckUploaded.
func (s *Store) DequeueAll(ctx context.Context) ([]PendingUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPending()
}

// MarkAttempted bumps upload_attempts for the given ids after a send.
func (s *Store) MarkAttempted(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadPending()
	if err != nil {
		return err
	}
	changed := false
	for i := range queue {
		if slices.Contains(ids, queue[i].GeneID) {
			queue[i].UploadAttempts++
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.savePending(queue)
}

// AckUploaded removes exactly the acknowledged ids; unacknowledged
// entries stay queued for retry.
func (s *Store) AckUploaded(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, err := s.loadPending()
	if err != nil {
		return err
	}
	kept := queue[:0]
	for _, p := range queue {
		if !slices.Contains(ids, p.GeneID) {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(queue) {
		return nil
	}
	return s.savePending(slices.Clone(kept))
}

// PendingCount reports the queue depth.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, err := s.loadPending()
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}
