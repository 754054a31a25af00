package store

import (
	"context"

	"github.com/basket/genebank/internal/gene"
)

// VerifyReport summarizes index/record consistency. Dangling index
// entries cause Get faults and are reported as faults; dangling records
// are inert and reported as warnings.
type VerifyReport struct {
	Indexed         int      `json:"indexed"`
	DanglingIndex   []string `json:"dangling_index,omitempty"`
	DanglingRecords []string `json:"dangling_records,omitempty"`
}

// Healthy reports whether the index references only existing records.
func (r *VerifyReport) Healthy() bool {
	return len(r.DanglingIndex) == 0
}

// Verify cross-checks the index against the record files.
func (s *Store) Verify(ctx context.Context) (*VerifyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ix, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	report := &VerifyReport{Indexed: ix.total()}

	for _, scope := range gene.Scopes {
		members := map[string]bool{}
		for _, id := range *ix.listFor(scope) {
			members[id] = true
		}
		found := map[string]bool{}
		for _, category := range gene.Categories {
			records, err := s.loadRecords(scope, category)
			if err != nil {
				return nil, err
			}
			for id := range records {
				found[id] = true
				if !members[id] {
					report.DanglingRecords = append(report.DanglingRecords, id)
				}
			}
		}
		for id := range members {
			if !found[id] {
				report.DanglingIndex = append(report.DanglingIndex, id)
			}
		}
	}
	if !report.Healthy() {
		s.logger.Warn("store verify found dangling index entries",
			"dangling_index", len(report.DanglingIndex),
			"dangling_records", len(report.DanglingRecords))
	}
	return report, nil
}
