// Package audit keeps an append-only JSONL trail of gene lifecycle
// events: admissions, suppressions, imports, deletions, and applied
// pushes. Record is a no-op until Init is called, so library code can
// call it unconditionally.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/genebank/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	GeneID    string `json:"gene_id,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

var (
	mu            sync.Mutex
	file          *os.File
	suppressCount atomic.Int64
)

func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// SuppressCount returns the total number of suppressed candidates since
// startup.
func SuppressCount() int64 {
	return suppressCount.Load()
}

// Record appends one audit entry. Secrets are redacted before the entry
// is persisted.
func Record(action, geneID, actor, detail string) {
	if action == "suppressed" {
		suppressCount.Add(1)
	}

	detail = shared.Redact(detail)

	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}

	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
		GeneID:    geneID,
		Actor:     actor,
		Detail:    detail,
	}
	b, err := json.Marshal(ev)
	if err == nil {
		_, _ = file.Write(append(b, '\n'))
	}
}
