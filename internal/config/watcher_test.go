package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReportsConfigWrite(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(ConfigPath(home), []byte("instance_id: w\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	w := NewWatcher(home, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(ConfigPath(home), []byte("instance_id: w2\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Path == "" {
			t.Error("event missing path")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload event for config write")
	}
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	w := NewWatcher(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, ok := <-w.Events():
		if ok {
			// A queued event may arrive first; the channel must still close.
			select {
			case _, ok := <-w.Events():
				if ok {
					t.Error("events channel still open after cancel")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("events channel not closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
