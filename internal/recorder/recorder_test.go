package recorder

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/evaluator"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/store"
)

func newTestRecorder(t *testing.T) (*Recorder, *store.Store, *bus.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	b := bus.New()
	r := New(Config{}, evaluator.New(evaluator.Config{}), st, b, logger)
	return r, st, b
}

// strongSolution scores well above the admission gate: success, three
// explicit steps, no environment artifacts.
func strongSolution() *gene.Solution {
	return &gene.Solution{
		Success:             true,
		GeneName:            "fix dns cache",
		StrategyDescription: "flush the resolver cache then restart systemd-resolved",
		Steps: []string{
			"identify the stale entry with resolvectl query",
			"flush caches with resolvectl flush-caches",
			"restart systemd-resolved and re-query",
		},
	}
}

func dnsTask() *gene.Task {
	return &gene.Task{
		Description: "resolve stale dns cache entries on linux hosts",
		Category:    gene.CategoryDebug,
	}
}

func TestRecordIfWorthy_PersistsStrongSolution(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	res, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene == nil {
		t.Fatalf("expected gene, got rejection: %s", res.Message)
	}
	if res.Gene.Category != gene.CategoryDebug {
		t.Errorf("category = %q, want debug", res.Gene.Category)
	}
	if res.Gene.Name != "fix dns cache" {
		t.Errorf("name = %q", res.Gene.Name)
	}
	if res.Gene.Metadata.Score < 3 {
		t.Errorf("score = %.1f, want >= 3", res.Gene.Metadata.Score)
	}
	if res.Gene.Metadata.Scope != gene.ScopePrivate {
		t.Errorf("scope = %q, want private default", res.Gene.Metadata.Scope)
	}

	stored, err := st.Get(ctx, res.Gene.ID)
	if err != nil {
		t.Fatalf("Get after record: %v", err)
	}
	if stored.Trigger != dnsTask().Description {
		t.Errorf("trigger = %q", stored.Trigger)
	}
}

func TestRecordIfWorthy_LowScoreRejected(t *testing.T) {
	r, st, b := newTestRecorder(t)
	ctx := context.Background()

	sub := b.Subscribe(bus.TopicGeneSuppressed)
	defer b.Unsubscribe(sub)

	sol := &gene.Solution{
		Success:  false,
		Commands: []string{"ls -la"},
	}
	res, err := r.RecordIfWorthy(ctx, &gene.Task{Description: "look around"}, sol, Context{})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene != nil {
		t.Fatalf("expected rejection, recorded %s", res.Gene.ID)
	}
	if !strings.Contains(res.Message, "not worth recording") {
		t.Errorf("message = %q", res.Message)
	}

	select {
	case event := <-sub.Ch():
		payload := event.Payload.(bus.GeneSuppressedEvent)
		if payload.Reason != "low_score" {
			t.Errorf("reason = %q, want low_score", payload.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no suppression event published")
	}

	genes, err := st.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(genes) != 0 {
		t.Errorf("store holds %d genes, want 0", len(genes))
	}
}

func TestRecordIfWorthy_DuplicateSuppressed(t *testing.T) {
	r, st, b := newTestRecorder(t)
	ctx := context.Background()

	// Existing gene with the same name, trigger, and description as the
	// candidate the evaluator will build.
	existing := &gene.Gene{
		ID:       "gene-debug-fix-dns-cache-existing",
		Version:  "1.0.0",
		Name:     "fix dns cache",
		Category: gene.CategoryDebug,
		Trigger:  dnsTask().Description,
		Strategy: gene.Strategy{Description: "flush the resolver cache then restart systemd-resolved"},
		Metadata: gene.Metadata{
			Author: gene.AuthorUser,
			Scope:  gene.ScopePrivate,
			Score:  4,
		},
	}
	if err := st.Put(ctx, existing, gene.ScopePrivate); err != nil {
		t.Fatalf("seed existing gene: %v", err)
	}

	sub := b.Subscribe(bus.TopicGeneSuppressed)
	defer b.Unsubscribe(sub)

	res, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene != nil {
		t.Fatalf("expected duplicate suppression, recorded %s", res.Gene.ID)
	}
	if !strings.Contains(res.Message, existing.ID) {
		t.Errorf("message %q does not name the duplicate", res.Message)
	}

	select {
	case event := <-sub.Ch():
		payload := event.Payload.(bus.GeneSuppressedEvent)
		if payload.Reason != "duplicate" {
			t.Errorf("reason = %q, want duplicate", payload.Reason)
		}
		if payload.Similarity <= 0.85 {
			t.Errorf("similarity = %.2f, want > 0.85", payload.Similarity)
		}
	case <-time.After(time.Second):
		t.Fatal("no suppression event published")
	}

	genes, err := st.List(ctx, store.Filter{Category: gene.CategoryDebug})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(genes) != 1 {
		t.Errorf("store holds %d genes, want only the existing one", len(genes))
	}
}

func TestRecordIfWorthy_NearDuplicateDiscounted(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	// Same name and trigger (0.3 + 0.4), unrelated description: combined
	// similarity lands between the warn and discard thresholds.
	existing := &gene.Gene{
		ID:       "gene-debug-fix-dns-cache-existing",
		Version:  "1.0.0",
		Name:     "fix dns cache",
		Category: gene.CategoryDebug,
		Trigger:  dnsTask().Description,
		Strategy: gene.Strategy{Description: "rotate upstream resolvers via dhcp options"},
		Metadata: gene.Metadata{
			Author: gene.AuthorUser,
			Scope:  gene.ScopePrivate,
			Score:  4,
		},
	}
	if err := st.Put(ctx, existing, gene.ScopePrivate); err != nil {
		t.Fatalf("seed existing gene: %v", err)
	}

	res, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene == nil {
		t.Fatalf("expected discounted record, got rejection: %s", res.Message)
	}
	if res.Gene.Metadata.SimilarityWarning <= 0.6 || res.Gene.Metadata.SimilarityWarning > 0.85 {
		t.Errorf("similarity_warning = %.2f, want in (0.6, 0.85]", res.Gene.Metadata.SimilarityWarning)
	}
	if want := res.Evaluation.Score - 1; res.Gene.Metadata.Score != want {
		t.Errorf("score = %.1f, want discounted %.1f", res.Gene.Metadata.Score, want)
	}
	if res.Gene.Metadata.Score < 3 {
		t.Errorf("discounted score %.1f fell below the admission floor", res.Gene.Metadata.Score)
	}
}

func TestRecordIfWorthy_EnqueuesWhenUploadableUser(t *testing.T) {
	r, st, b := newTestRecorder(t)
	ctx := context.Background()

	sub := b.Subscribe(bus.TopicSyncUploadQueued)
	defer b.Unsubscribe(sub)

	res, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{UserID: "user-7"})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene == nil {
		t.Fatalf("expected record: %s", res.Message)
	}
	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
	queue, err := st.DequeueAll(ctx)
	if err != nil {
		t.Fatalf("DequeueAll: %v", err)
	}
	if queue[0].GeneID != res.Gene.ID {
		t.Errorf("queued %q, want %q", queue[0].GeneID, res.Gene.ID)
	}

	select {
	case event := <-sub.Ch():
		payload := event.Payload.(bus.UploadQueuedEvent)
		if payload.GeneID != res.Gene.ID {
			t.Errorf("queued event for %q, want %q", payload.GeneID, res.Gene.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no upload-queued event published")
	}
}

func TestRecordIfWorthy_NoEnqueueWithoutUser(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	if _, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{}); err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("pending = %d, want 0 when no user identity", n)
	}
}

func TestRecordIfWorthy_NoEnqueueWhenUploadsDisabled(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	if err := st.SetUploadEnabled(ctx, false); err != nil {
		t.Fatalf("SetUploadEnabled: %v", err)
	}
	if _, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{UserID: "user-7"}); err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("pending = %d, want 0 when uploads disabled", n)
	}
}

func TestRecordManual_FillsDefaults(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	g, err := r.RecordManual(ctx, &gene.Gene{
		Name:     "tail service logs",
		Category: gene.CategoryTool,
		Trigger:  "need recent logs for a crashing unit",
		Strategy: gene.Strategy{Description: "journalctl -u with --since narrows the window"},
	}, Context{AgentID: "agent-1", UserID: "user-7"})
	if err != nil {
		t.Fatalf("RecordManual: %v", err)
	}
	if g.ID == "" || !strings.HasPrefix(g.ID, "gene-tool-") {
		t.Errorf("id = %q", g.ID)
	}
	if g.Version != "1.0.0" {
		t.Errorf("version = %q", g.Version)
	}
	if g.Metadata.Score != DefaultConfig().ManualScore {
		t.Errorf("score = %.1f, want manual default %.1f", g.Metadata.Score, DefaultConfig().ManualScore)
	}
	if g.Metadata.Scope != gene.ScopePrivate {
		t.Errorf("scope = %q", g.Metadata.Scope)
	}
	if g.Metadata.Author != gene.AuthorUser {
		t.Errorf("author = %q", g.Metadata.Author)
	}

	if _, err := st.Get(ctx, g.ID); err != nil {
		t.Fatalf("Get after manual record: %v", err)
	}
}

func TestRecordManual_RejectsInvalid(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	ctx := context.Background()

	if _, err := r.RecordManual(ctx, &gene.Gene{Name: "x", Category: "nonsense"}, Context{}); err == nil {
		t.Error("expected error for invalid category")
	}
	if _, err := r.RecordManual(ctx, &gene.Gene{Category: gene.CategoryDebug}, Context{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestRecordIfWorthy_TeamScopeRespected(t *testing.T) {
	r, st, _ := newTestRecorder(t)
	ctx := context.Background()

	res, err := r.RecordIfWorthy(ctx, dnsTask(), strongSolution(), Context{Scope: gene.ScopeTeam})
	if err != nil {
		t.Fatalf("RecordIfWorthy: %v", err)
	}
	if res.Gene == nil {
		t.Fatalf("expected record: %s", res.Message)
	}
	genes, err := st.List(ctx, store.Filter{Scope: gene.ScopeTeam})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(genes) != 1 || genes[0].ID != res.Gene.ID {
		t.Errorf("team scope holds %d genes", len(genes))
	}
}
