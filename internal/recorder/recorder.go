// Package recorder decides whether a completed task's solution becomes a
// persisted gene: it scores the solution, deduplicates against existing
// genes in the same category, assigns identity, and queues the new gene
// for upload.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/genebank/internal/audit"
	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/evaluator"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/store"
	"github.com/basket/genebank/internal/textmatch"
)

// Config holds the admission thresholds. The values are the stock
// policy; they are configuration, not constants baked into call sites.
type Config struct {
	// MinScore gates persistence; candidates below it are dropped.
	MinScore float64
	// DiscardThreshold suppresses candidates whose best similarity
	// against an existing gene exceeds it.
	DiscardThreshold float64
	// WarnThreshold discounts candidates above it: score capped at
	// max(MinScore, score-1) and similarity_warning recorded.
	WarnThreshold float64
	// ManualScore is the default score for manually authored genes.
	ManualScore float64
}

// DefaultConfig returns the stock admission policy.
func DefaultConfig() Config {
	return Config{
		MinScore:         3,
		DiscardThreshold: 0.85,
		WarnThreshold:    0.6,
		ManualScore:      4,
	}
}

// Context identifies who is recording and where the gene should live.
type Context struct {
	AgentID string
	UserID  string
	Scope   gene.Scope // default private
}

// Result is the outcome of a recording attempt. Gene is nil for the
// expected non-fault outcomes (low score, duplicate).
type Result struct {
	Gene       *gene.Gene
	Evaluation evaluator.Evaluation
	Message    string
}

// Recorder wires the evaluator and store together.
type Recorder struct {
	cfg    Config
	eval   *evaluator.Evaluator
	store  *store.Store
	bus    *bus.Bus // may be nil in tests
	logger *slog.Logger
}

// New creates a recorder. Zero config fields fall back to defaults.
func New(cfg Config, eval *evaluator.Evaluator, st *store.Store, b *bus.Bus, logger *slog.Logger) *Recorder {
	def := DefaultConfig()
	if cfg.MinScore == 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.DiscardThreshold == 0 {
		cfg.DiscardThreshold = def.DiscardThreshold
	}
	if cfg.WarnThreshold == 0 {
		cfg.WarnThreshold = def.WarnThreshold
	}
	if cfg.ManualScore == 0 {
		cfg.ManualScore = def.ManualScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cfg: cfg, eval: eval, store: st, bus: b, logger: logger}
}

// RecordIfWorthy evaluates a solution and persists it as a gene when the
// admission policy admits it. Low scores and duplicates are expected
// outcomes expressed through Result, not errors.
func (r *Recorder) RecordIfWorthy(ctx context.Context, task *gene.Task, sol *gene.Solution, rc Context) (*Result, error) {
	ev := r.eval.Evaluate(task, sol)
	if ev.Score < r.cfg.MinScore {
		r.publish(bus.TopicGeneSuppressed, bus.GeneSuppressedEvent{Reason: "low_score", Score: ev.Score})
		audit.Record("suppressed", "", rc.AgentID, fmt.Sprintf("low_score %.1f", ev.Score))
		return &Result{
			Evaluation: ev,
			Message:    fmt.Sprintf("not worth recording: score %.1f below %.1f", ev.Score, r.cfg.MinScore),
		}, nil
	}

	candidate := r.buildCandidate(ev, task, rc)

	// Snapshot of same-category genes, read once; dedup is best-effort
	// under concurrent writers.
	existing, err := r.store.List(ctx, store.Filter{Category: candidate.Category})
	if err != nil {
		return nil, fmt.Errorf("recorder: load category %s: %w", candidate.Category, err)
	}
	maxSim := 0.0
	closest := ""
	candProfile := textmatch.Profile{
		Name:        candidate.Name,
		Trigger:     candidate.Trigger,
		Description: candidate.Strategy.Description,
	}
	for i := range existing {
		sim := textmatch.Similarity(candProfile, textmatch.Profile{
			Name:        existing[i].Name,
			Trigger:     existing[i].Trigger,
			Description: existing[i].Strategy.Description,
		}, textmatch.Weights{})
		if sim > maxSim {
			maxSim = sim
			closest = existing[i].ID
		}
	}

	if maxSim > r.cfg.DiscardThreshold {
		r.publish(bus.TopicGeneSuppressed, bus.GeneSuppressedEvent{Reason: "duplicate", Score: ev.Score, Similarity: maxSim})
		audit.Record("suppressed", "", rc.AgentID, fmt.Sprintf("duplicate of %s (%.0f%%)", closest, maxSim*100))
		return &Result{
			Evaluation: ev,
			Message:    fmt.Sprintf("duplicate suppressed: %.0f%% similar to %s", maxSim*100, closest),
		}, nil
	}
	if maxSim > r.cfg.WarnThreshold {
		capped := ev.Score - 1
		if capped < r.cfg.MinScore {
			capped = r.cfg.MinScore
		}
		candidate.Metadata.Score = capped
		candidate.Metadata.SimilarityWarning = maxSim
		r.logger.Info("near-duplicate gene discounted",
			"id", candidate.ID, "similar_to", closest, "similarity", maxSim)
	}

	if err := r.store.Put(ctx, candidate, candidate.Metadata.Scope); err != nil {
		return nil, fmt.Errorf("recorder: persist gene: %w", err)
	}
	r.maybeEnqueue(ctx, candidate, rc)
	r.publish(bus.TopicGeneRecorded, bus.GeneRecordedEvent{GeneID: candidate.ID, Category: string(candidate.Category), Score: candidate.Metadata.Score})
	audit.Record("recorded", candidate.ID, rc.AgentID, fmt.Sprintf("score %.1f", candidate.Metadata.Score))
	r.logger.Info("gene recorded", "id", candidate.ID, "category", candidate.Category, "score", candidate.Metadata.Score)

	return &Result{
		Gene:       candidate,
		Evaluation: ev,
		Message:    fmt.Sprintf("recorded %s (score %.1f)", candidate.ID, candidate.Metadata.Score),
	}, nil
}

// buildCandidate assembles the gene from the evaluation output.
func (r *Recorder) buildCandidate(ev evaluator.Evaluation, task *gene.Task, rc Context) *gene.Gene {
	scope := rc.Scope
	if scope == "" {
		scope = gene.ScopePrivate
	}
	now := time.Now().UTC()
	return &gene.Gene{
		ID:       gene.NewID(ev.Details.Category, ev.Details.Name),
		Version:  "1.0.0",
		Name:     ev.Details.Name,
		Category: ev.Details.Category,
		Trigger:  task.Description,
		Strategy: gene.Strategy{
			Description: ev.Details.Summary,
			Steps:       ev.Details.Steps,
		},
		Metadata: gene.Metadata{
			Author:    gene.AuthorUser,
			UserID:    rc.UserID,
			AgentID:   rc.AgentID,
			Scope:     scope,
			CreatedAt: now,
			UpdatedAt: now,
			Score:     ev.Score,
		},
	}
}

// maybeEnqueue queues the gene for upload when uploads are enabled and a
// user identity is known. Queue failures are logged, never fatal to the
// recording itself.
func (r *Recorder) maybeEnqueue(ctx context.Context, g *gene.Gene, rc Context) {
	if rc.UserID == "" {
		return
	}
	enabled, err := r.store.UploadEnabled(ctx)
	if err != nil || !enabled {
		if err != nil {
			r.logger.Warn("upload gate check failed", "error", err)
		}
		return
	}
	if err := r.store.Enqueue(ctx, g.ID); err != nil {
		r.logger.Warn("failed to enqueue gene for upload", "id", g.ID, "error", err)
		return
	}
	r.publish(bus.TopicSyncUploadQueued, bus.UploadQueuedEvent{GeneID: g.ID})
}

// RecordManual persists a caller-authored gene directly: no evaluation,
// no dedup. Category and name are required; score defaults to the
// configured manual score.
func (r *Recorder) RecordManual(ctx context.Context, g *gene.Gene, rc Context) (*gene.Gene, error) {
	if _, ok := gene.ParseCategory(string(g.Category)); !ok {
		return nil, fmt.Errorf("recorder: manual gene requires a valid category, got %q", g.Category)
	}
	if g.Name == "" {
		return nil, fmt.Errorf("recorder: manual gene requires a name")
	}
	if g.ID == "" {
		g.ID = gene.NewID(g.Category, g.Name)
	}
	if g.Version == "" {
		g.Version = "1.0.0"
	}
	now := time.Now().UTC()
	if g.Metadata.CreatedAt.IsZero() {
		g.Metadata.CreatedAt = now
	}
	g.Metadata.UpdatedAt = now
	if g.Metadata.Author == "" {
		g.Metadata.Author = gene.AuthorUser
	}
	if g.Metadata.Scope == "" {
		if rc.Scope != "" {
			g.Metadata.Scope = rc.Scope
		} else {
			g.Metadata.Scope = gene.ScopePrivate
		}
	}
	if g.Metadata.AgentID == "" {
		g.Metadata.AgentID = rc.AgentID
	}
	if g.Metadata.UserID == "" {
		g.Metadata.UserID = rc.UserID
	}
	if g.Metadata.Score == 0 {
		g.Metadata.Score = r.cfg.ManualScore
	}
	g.Metadata.Score = gene.ClampScore(g.Metadata.Score)

	if err := r.store.Put(ctx, g, g.Metadata.Scope); err != nil {
		return nil, fmt.Errorf("recorder: persist manual gene: %w", err)
	}
	r.maybeEnqueue(ctx, g, rc)
	r.publish(bus.TopicGeneRecorded, bus.GeneRecordedEvent{GeneID: g.ID, Category: string(g.Category), Score: g.Metadata.Score})
	audit.Record("imported", g.ID, rc.AgentID, fmt.Sprintf("score %.1f", g.Metadata.Score))
	return g, nil
}

func (r *Recorder) publish(topic string, payload any) {
	if r.bus != nil {
		r.bus.Publish(topic, payload)
	}
}
