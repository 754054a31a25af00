package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGeneYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "gene.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write gene yaml: %v", err)
	}
	return path
}

func TestImportCommand_YAMLGene(t *testing.T) {
	home := withHome(t)
	path := writeGeneYAML(t, home, `
name: bisect flaky tests
category: debug
trigger: a test fails intermittently under load
strategy:
  description: bisect the failing seed range and pin the clock
  steps:
    - rerun with a fixed seed
    - bisect the seed range
`)

	if code := runImportCommand(context.Background(), []string{"--file", path, "--scope", "team"}); code != 0 {
		t.Fatalf("import exit = %d", code)
	}

	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.close()
	stats, err := rt.newInjector().GetStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("stored genes = %d, want 1", stats.Total)
	}
	g := stats.Top[0]
	if !strings.HasPrefix(g.ID, "gene-debug-") {
		t.Errorf("id = %q", g.ID)
	}
	if string(g.Metadata.Scope) != "team" {
		t.Errorf("scope = %q", g.Metadata.Scope)
	}
	if g.Metadata.Score != 4 {
		t.Errorf("score = %v, want manual default 4", g.Metadata.Score)
	}
}

func TestImportCommand_JSONRecord(t *testing.T) {
	home := withHome(t)
	path := filepath.Join(home, "gene.json")
	record := `{
		"id": "gene-tool-grep-first",
		"version": "1.0.0",
		"name": "grep before editing",
		"category": "tool",
		"trigger": "asked to change code in an unfamiliar tree",
		"strategy": {"description": "locate every usage before touching one", "steps": ["search", "read", "edit"]},
		"metadata": {"author": "user", "scope": "private", "score": 4.5}
	}`
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		t.Fatalf("write gene json: %v", err)
	}

	if code := runImportCommand(context.Background(), []string{"--file", path}); code != 0 {
		t.Fatalf("import exit = %d", code)
	}

	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.close()
	stats, err := rt.newInjector().GetStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Top[0].ID != "gene-tool-grep-first" {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestImportCommand_JSONRejectsBadRecord(t *testing.T) {
	home := withHome(t)
	path := filepath.Join(home, "gene.json")
	// Category outside the closed set fails the wire schema.
	record := `{
		"id": "gene-x",
		"name": "mystery",
		"category": "witchcraft",
		"strategy": {"description": "?"},
		"metadata": {}
	}`
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		t.Fatalf("write gene json: %v", err)
	}

	if code := runImportCommand(context.Background(), []string{"--file", path}); code != 1 {
		t.Fatalf("import exit = %d, want 1", code)
	}
}

func TestImportCommand_RejectsUnknownCategory(t *testing.T) {
	home := withHome(t)
	path := writeGeneYAML(t, home, `
name: mystery
category: witchcraft
`)

	if code := runImportCommand(context.Background(), []string{"--file", path}); code != 1 {
		t.Fatalf("import exit = %d, want 1", code)
	}
}

func TestImportCommand_RequiresFile(t *testing.T) {
	withHome(t)
	if code := runImportCommand(context.Background(), nil); code != 2 {
		t.Fatalf("import exit = %d, want 2", code)
	}
}
