package sync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func testGene(id string, category gene.Category) gene.Gene {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return gene.Gene{
		ID:       id,
		Version:  "1.0.0",
		Name:     "strategy " + id,
		Category: category,
		Trigger:  "trigger for " + id,
		Strategy: gene.Strategy{Description: "description for " + id},
		Metadata: gene.Metadata{
			Author:    gene.AuthorPlatform,
			Scope:     gene.ScopePlatform,
			CreatedAt: now,
			UpdatedAt: now,
			Score:     4,
		},
	}
}

func rawGenes(genes ...gene.Gene) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(genes))
	for _, g := range genes {
		b, _ := json.Marshal(g)
		out = append(out, b)
	}
	return out
}

func newTestEngine(t *testing.T, handler http.Handler) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "test-token", "inst-1", "user-7", time.Second)
	return NewEngine(st, client, nil, discardLogger()), st
}

func TestPull_UpsertsAndDeletes(t *testing.T) {
	ctx := context.Background()
	serverTime := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/genes/pull" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(PullResponse{
			Success: true,
			Genes: rawGenes(
				testGene("gene-debug-new", gene.CategoryDebug),
				testGene("gene-coding-known", gene.CategoryCoding),
			),
			Deleted:    []string{"gene-tool-gone"},
			ServerTime: serverTime,
		})
	})
	engine, st := newTestEngine(t, handler)

	// Pre-seed the gene that the pull will update, and the one it deletes.
	known := testGene("gene-coding-known", gene.CategoryCoding)
	if err := st.Put(ctx, &known, gene.ScopePlatform); err != nil {
		t.Fatalf("seed known: %v", err)
	}
	gone := testGene("gene-tool-gone", gene.CategoryTool)
	if err := st.Put(ctx, &gone, gene.ScopePlatform); err != nil {
		t.Fatalf("seed gone: %v", err)
	}

	report := engine.Pull(ctx)
	if report.Error != "" {
		t.Fatalf("pull error: %s", report.Error)
	}
	if report.Added != 1 || report.Updated != 1 || report.Deleted != 1 {
		t.Errorf("report = %+v", report)
	}

	if _, err := st.Get(ctx, "gene-debug-new"); err != nil {
		t.Errorf("pulled gene missing: %v", err)
	}
	if _, err := st.Get(ctx, "gene-tool-gone"); err == nil {
		t.Error("deleted gene still present")
	}

	ix, err := st.SnapshotIndex(ctx)
	if err != nil {
		t.Fatalf("SnapshotIndex: %v", err)
	}
	if !ix.LastSync.Equal(serverTime) {
		t.Errorf("last_sync = %v, want server time %v", ix.LastSync, serverTime)
	}
}

func TestPull_Idempotent(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PullResponse{
			Success: true,
			Genes:   rawGenes(testGene("gene-debug-same", gene.CategoryDebug)),
		})
	})
	engine, st := newTestEngine(t, handler)

	first := engine.Pull(ctx)
	if first.Error != "" || first.Added != 1 {
		t.Fatalf("first pull = %+v", first)
	}
	second := engine.Pull(ctx)
	if second.Error != "" || second.Added != 0 || second.Updated != 1 {
		t.Fatalf("second pull = %+v", second)
	}

	genes, err := st.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(genes) != 1 {
		t.Errorf("genes = %d after double pull, want 1", len(genes))
	}
}

func TestPull_FailureDoesNotAdvanceWatermark(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	engine, st := newTestEngine(t, handler)

	report := engine.Pull(ctx)
	if report.Error == "" {
		t.Fatal("expected error from failing pull")
	}
	ix, err := st.SnapshotIndex(ctx)
	if err != nil {
		t.Fatalf("SnapshotIndex: %v", err)
	}
	if !ix.LastSync.IsZero() {
		t.Errorf("last_sync advanced to %v after failure", ix.LastSync)
	}
}

func TestPull_PlatformRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PullResponse{Success: false, Error: "quota exceeded"})
	})
	engine, _ := newTestEngine(t, handler)

	report := engine.Pull(context.Background())
	if report.Error != "quota exceeded" {
		t.Errorf("error = %q", report.Error)
	}
}

func TestPull_SkipsMalformedGenes(t *testing.T) {
	ctx := context.Background()
	bad := testGene("gene-debug-bad", gene.CategoryDebug)
	bad.Name = ""
	// One record breaking the wire schema, one not even gene-shaped.
	genes := rawGenes(bad, testGene("gene-debug-good", gene.CategoryDebug))
	genes = append(genes, json.RawMessage(`{"id":"gene-debug-shapeless"}`))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PullResponse{
			Success: true,
			Genes:   genes,
		})
	})
	engine, st := newTestEngine(t, handler)

	report := engine.Pull(ctx)
	if report.Error != "" {
		t.Fatalf("pull error: %s", report.Error)
	}
	if report.Added != 1 || report.Skipped != 2 {
		t.Errorf("report = %+v", report)
	}
	if _, err := st.Get(ctx, "gene-debug-good"); err != nil {
		t.Errorf("good gene missing: %v", err)
	}
	if _, err := st.Get(ctx, "gene-debug-shapeless"); err == nil {
		t.Error("record failing the wire schema was stored")
	}
}

func TestPullCategory_DoesNotAdvanceWatermark(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Category string `json:"category"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Category != "debug" {
			t.Errorf("category = %q", req.Category)
		}
		_ = json.NewEncoder(w).Encode(PullResponse{
			Success: true,
			Genes:   rawGenes(testGene("gene-debug-cat", gene.CategoryDebug)),
		})
	})
	engine, st := newTestEngine(t, handler)

	report := engine.PullCategory(ctx, gene.CategoryDebug)
	if report.Error != "" || report.Added != 1 {
		t.Fatalf("report = %+v", report)
	}
	ix, err := st.SnapshotIndex(ctx)
	if err != nil {
		t.Fatalf("SnapshotIndex: %v", err)
	}
	if !ix.LastSync.IsZero() {
		t.Errorf("category pull advanced last_sync to %v", ix.LastSync)
	}
}

func TestRefreshGene(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/genes/get" {
			http.NotFound(w, r)
			return
		}
		g := testGene("gene-debug-single", gene.CategoryDebug)
		_ = json.NewEncoder(w).Encode(struct {
			Gene *gene.Gene `json:"gene"`
		}{Gene: &g})
	})
	engine, st := newTestEngine(t, handler)

	report := engine.RefreshGene(ctx, "gene-debug-single")
	if report.Error != "" || report.Added != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := st.Get(ctx, "gene-debug-single"); err != nil {
		t.Errorf("refreshed gene missing: %v", err)
	}
}

func TestUpload_EmptyQueueNoop(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	engine, _ := newTestEngine(t, handler)

	report := engine.Upload(context.Background())
	if report.Error != "" || report.Uploaded != 0 {
		t.Errorf("report = %+v", report)
	}
	if called {
		t.Error("empty queue should not hit the network")
	}
}

func TestUpload_UnconfiguredKeepsQueue(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	engine := NewEngine(st, NewClient("", "", "inst-1", "user-7", 0), nil, discardLogger())

	g := testGene("gene-debug-q", gene.CategoryDebug)
	if err := st.Put(ctx, &g, gene.ScopePrivate); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Enqueue(ctx, g.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	report := engine.Upload(ctx)
	if report.Error == "" || report.Pending != 1 {
		t.Errorf("report = %+v", report)
	}
	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 1 {
		t.Errorf("queue cleared despite missing endpoint: pending = %d", n)
	}
}

func TestUpload_AcksSentRetainsFailed(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InstanceID string      `json:"instance_id"`
			UserID     string      `json:"user_id"`
			Genes      []gene.Gene `json:"genes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.UserID != "user-7" || len(req.Genes) != 2 {
			t.Errorf("upload request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(UploadResponse{
			Success: true,
			Details: []UploadDetail{{GeneID: "gene-coding-b", Error: "schema rejected"}},
		})
	})
	engine, st := newTestEngine(t, handler)

	for _, id := range []string{"gene-debug-a", "gene-coding-b"} {
		category := gene.CategoryDebug
		if id == "gene-coding-b" {
			category = gene.CategoryCoding
		}
		g := testGene(id, category)
		g.Metadata.Scope = gene.ScopePrivate
		g.Metadata.Author = gene.AuthorUser
		if err := st.Put(ctx, &g, gene.ScopePrivate); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		if err := st.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	report := engine.Upload(ctx)
	if report.Error != "" {
		t.Fatalf("upload error: %s", report.Error)
	}
	if report.Uploaded != 1 || report.Pending != 1 || len(report.Failures) != 1 {
		t.Errorf("report = %+v", report)
	}

	queue, err := st.DequeueAll(ctx)
	if err != nil {
		t.Fatalf("DequeueAll: %v", err)
	}
	if len(queue) != 1 || queue[0].GeneID != "gene-coding-b" {
		t.Errorf("queue after upload = %+v", queue)
	}
	if queue[0].UploadAttempts != 1 {
		t.Errorf("attempts = %d, want 1", queue[0].UploadAttempts)
	}
}

func TestUpload_DropsQueueEntryForMissingGene(t *testing.T) {
	ctx := context.Background()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	engine, st := newTestEngine(t, handler)

	if err := st.Enqueue(ctx, "gene-debug-vanished"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	report := engine.Upload(ctx)
	if report.Error != "" {
		t.Fatalf("upload error: %s", report.Error)
	}
	if called {
		t.Error("no surviving genes should mean no network call")
	}
	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("vanished gene still queued: pending = %d", n)
	}
}
