package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/basket/genebank/internal/gene"
)

func runStatusCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank status [-json]")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	stats, err := rt.newInjector().GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return 1
	}
	pending, err := rt.store.PendingCount(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pending: %v\n", err)
		return 1
	}
	report, err := rt.store.Verify(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}
	index, err := rt.store.SnapshotIndex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index: %v\n", err)
		return 1
	}

	if *asJSON {
		out := map[string]any{
			"stats":          stats,
			"pending":        pending,
			"verify":         report,
			"last_sync":      index.LastSync,
			"upload_enabled": index.UploadEnabled,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			return 1
		}
		if !report.Healthy() {
			return 1
		}
		return 0
	}

	fmt.Printf("genes: %d (avg score %.1f)\n", stats.Total, stats.AvgScore)
	for _, category := range gene.Categories {
		if n := stats.ByCategory[category]; n > 0 {
			fmt.Printf("  %-14s %d\n", category, n)
		}
	}
	if index.LastSync.IsZero() {
		fmt.Println("last sync: never")
	} else {
		fmt.Printf("last sync: %s\n", index.LastSync.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("pending uploads: %d (uploads enabled: %v)\n", pending, index.UploadEnabled)
	if report.Healthy() {
		fmt.Printf("index: healthy (%d entries)\n", report.Indexed)
		return 0
	}
	fmt.Printf("index: %d dangling entries: %v\n", len(report.DanglingIndex), report.DanglingIndex)
	return 1
}
