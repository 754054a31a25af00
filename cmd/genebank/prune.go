package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basket/genebank/internal/audit"
	"github.com/basket/genebank/internal/persistence"
	"github.com/basket/genebank/internal/store"
)

// runPruneCommand removes a gene from the local store and purges
// delivered registry messages older than the retention window.
func runPruneCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank prune", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	geneID := fs.String("gene", "", "gene id to delete from the local store")
	messagesBefore := fs.Int("messages-before", 0, "purge read messages older than this many days")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 || (*geneID == "" && *messagesBefore <= 0) {
		fmt.Fprintln(os.Stderr, "usage: genebank prune [--gene id] [--messages-before days]")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	if *geneID != "" {
		if err := rt.store.Delete(ctx, *geneID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "gene %s not found\n", *geneID)
				return 1
			}
			fmt.Fprintf(os.Stderr, "delete: %v\n", err)
			return 1
		}
		audit.Record("deleted", *geneID, rt.cfg.InstanceID, "")
		fmt.Printf("deleted %s\n", *geneID)
	}

	if *messagesBefore > 0 {
		registry, err := persistence.Open(rt.cfg.RegistryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open registry: %v\n", err)
			return 1
		}
		defer registry.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -*messagesBefore)
		purged, err := registry.PurgeReadMessages(ctx, cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "purge messages: %v\n", err)
			return 1
		}
		fmt.Printf("purged %d delivered messages\n", purged)
	}
	return 0
}
