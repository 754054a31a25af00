package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/store"
)

// Engine drives pull and upload against the local store. Every operation
// is best-effort: failures land in the report's Error field, never
// panic, and never leave the store partially synced where the contract
// forbids it.
type Engine struct {
	store  *store.Store
	client *Client
	bus    *bus.Bus // may be nil in tests
	logger *slog.Logger
}

// NewEngine wires a sync engine.
func NewEngine(st *store.Store, client *Client, b *bus.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, client: client, bus: b, logger: logger}
}

// PullReport summarizes one pull. A non-empty Error means the operation
// aborted and last_sync was not advanced.
type PullReport struct {
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// Pull fetches platform updates since the last watermark, upserts them
// into the platform scope, applies deletions, and advances last_sync.
func (e *Engine) Pull(ctx context.Context) PullReport {
	start := time.Now()
	ix, err := e.store.SnapshotIndex(ctx)
	if err != nil {
		return PullReport{Error: err.Error()}
	}

	resp, err := e.client.PullUpdates(ctx, ix.LastSync)
	if err != nil {
		e.logger.Warn("pull failed", "error", err)
		return PullReport{Error: err.Error()}
	}
	if !resp.Success {
		e.logger.Warn("pull rejected by platform", "error", resp.Error)
		return PullReport{Error: resp.Error}
	}

	report := e.applyGenes(ctx, resp.Genes)
	if report.Error != "" {
		return report
	}

	for _, id := range resp.Deleted {
		if err := e.store.RemoveFromPlatform(ctx, id); err != nil {
			report.Error = err.Error()
			return report
		}
		report.Deleted++
	}

	watermark := resp.ServerTime
	if watermark.IsZero() {
		watermark = time.Now().UTC()
	}
	if err := e.store.SetLastSync(ctx, watermark); err != nil {
		report.Error = err.Error()
		return report
	}

	e.publish(bus.TopicSyncPullCompleted, bus.SyncPullEvent{
		Added:    report.Added,
		Updated:  report.Updated,
		Deleted:  report.Deleted,
		Duration: time.Since(start),
	})
	e.logger.Info("pull completed",
		"added", report.Added, "updated", report.Updated, "deleted", report.Deleted)
	return report
}

// PullCategory refreshes one category from the platform on demand. It
// performs the same idempotent upsert as Pull but never advances
// last_sync.
func (e *Engine) PullCategory(ctx context.Context, category gene.Category) PullReport {
	resp, err := e.client.PullCategory(ctx, category)
	if err != nil {
		return PullReport{Error: err.Error()}
	}
	if !resp.Success {
		return PullReport{Error: resp.Error}
	}
	return e.applyGenes(ctx, resp.Genes)
}

// RefreshGene fetches a single gene from the platform and upserts it.
func (e *Engine) RefreshGene(ctx context.Context, id string) PullReport {
	raw, err := e.client.FetchGene(ctx, id)
	if err != nil {
		return PullReport{Error: err.Error()}
	}
	if raw == nil {
		return PullReport{}
	}
	return e.applyGenes(ctx, []json.RawMessage{raw})
}

// applyGenes checks pulled records against the wire schema and upserts
// them into the platform scope. Individual malformed genes are skipped
// and counted, not fatal; store faults abort.
func (e *Engine) applyGenes(ctx context.Context, raws []json.RawMessage) PullReport {
	var report PullReport
	for _, raw := range raws {
		parsed, err := gene.ValidateRecord(raw)
		if err != nil {
			e.logger.Warn("skipping pulled record failing wire schema", "error", err)
			report.Skipped++
			continue
		}
		g := *parsed
		g.Metadata.Scope = gene.ScopePlatform
		if g.Metadata.Author == "" {
			g.Metadata.Author = gene.AuthorPlatform
		}
		if err := g.Validate(); err != nil {
			e.logger.Warn("skipping malformed pulled gene", "id", g.ID, "error", err)
			report.Skipped++
			continue
		}
		existed, err := e.store.Contains(ctx, g.ID)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		if err := e.store.Put(ctx, &g, gene.ScopePlatform); err != nil {
			report.Error = err.Error()
			return report
		}
		if existed {
			report.Updated++
		} else {
			report.Added++
		}
	}
	return report
}

// UploadReport summarizes one upload drain.
type UploadReport struct {
	Uploaded int            `json:"uploaded"`
	Pending  int            `json:"pending"`
	Failures []UploadDetail `json:"failures,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Upload drains the pending queue to the platform. An empty queue is a
// no-op; a missing endpoint or user identity reports the pending count
// and a configuration error without clearing anything. Only ids the
// platform did not fail are acknowledged out of the queue.
func (e *Engine) Upload(ctx context.Context) UploadReport {
	queue, err := e.store.DequeueAll(ctx)
	if err != nil {
		return UploadReport{Error: err.Error()}
	}
	if len(queue) == 0 {
		return UploadReport{}
	}
	if !e.client.Configured() || e.client.UserID() == "" {
		return UploadReport{
			Pending: len(queue),
			Error:   "platform endpoint or user identity not configured",
		}
	}

	var genes []gene.Gene
	var sent []string
	for _, p := range queue {
		g, err := e.store.Get(ctx, p.GeneID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// The gene was deleted locally after being queued.
				e.logger.Warn("dropping pending upload for missing gene", "id", p.GeneID)
				if ackErr := e.store.AckUploaded(ctx, []string{p.GeneID}); ackErr != nil {
					return UploadReport{Error: ackErr.Error()}
				}
				continue
			}
			return UploadReport{Error: err.Error()}
		}
		genes = append(genes, *g)
		sent = append(sent, g.ID)
	}
	if len(genes) == 0 {
		return UploadReport{}
	}

	if err := e.store.MarkAttempted(ctx, sent); err != nil {
		return UploadReport{Error: err.Error()}
	}

	resp, err := e.client.Upload(ctx, genes)
	if err != nil {
		e.logger.Warn("upload failed, queue retained", "pending", len(sent), "error", err)
		return UploadReport{Pending: len(sent), Error: err.Error()}
	}
	if !resp.Success {
		return UploadReport{Pending: len(sent), Error: resp.Error}
	}

	// Failed items stay queued for retry; everything else is acked.
	failed := map[string]bool{}
	var failures []UploadDetail
	for _, d := range resp.Details {
		if d.Error != "" {
			failed[d.GeneID] = true
			failures = append(failures, d)
		}
	}
	var acked []string
	for _, id := range sent {
		if !failed[id] {
			acked = append(acked, id)
		}
	}
	if err := e.store.AckUploaded(ctx, acked); err != nil {
		return UploadReport{Error: err.Error()}
	}

	report := UploadReport{
		Uploaded: len(acked),
		Pending:  len(failures),
		Failures: failures,
	}
	e.publish(bus.TopicSyncUploadCompleted, bus.SyncUploadEvent{
		Uploaded: report.Uploaded,
		Failed:   len(failures),
	})
	e.logger.Info("upload completed", "uploaded", report.Uploaded, "failed", len(failures))
	return report
}

func (e *Engine) publish(topic string, payload any) {
	if e.bus != nil {
		e.bus.Publish(topic, payload)
	}
}
