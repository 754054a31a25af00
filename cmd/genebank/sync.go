package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/genebank/internal/gene"
	syncpkg "github.com/basket/genebank/internal/sync"
)

// runSyncCommand performs one pull/upload round against the platform.
func runSyncCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank sync", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pullOnly := fs.Bool("pull-only", false, "pull platform updates without uploading")
	uploadOnly := fs.Bool("upload-only", false, "upload the pending queue without pulling")
	category := fs.String("category", "", "pull a single category in full")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 || (*pullOnly && *uploadOnly) {
		fmt.Fprintln(os.Stderr, "usage: genebank sync [--pull-only | --upload-only] [--category name]")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	client := rt.newClient()
	if !client.Configured() {
		fmt.Fprintln(os.Stderr, "platform.base_url is not configured")
		return 1
	}
	engine := syncpkg.NewEngine(rt.store, client, nil, rt.logger)

	exit := 0
	if !*uploadOnly {
		var report syncpkg.PullReport
		if *category != "" {
			c, ok := gene.ParseCategory(*category)
			if !ok {
				fmt.Fprintf(os.Stderr, "unknown category %q\n", *category)
				return 2
			}
			report = engine.PullCategory(ctx, c)
		} else {
			report = engine.Pull(ctx)
		}
		if report.Error != "" {
			fmt.Fprintf(os.Stderr, "pull failed: %s\n", report.Error)
			exit = 1
		} else {
			fmt.Printf("pull: %d added, %d updated, %d deleted", report.Added, report.Updated, report.Deleted)
			if report.Skipped > 0 {
				fmt.Printf(", %d skipped", report.Skipped)
			}
			fmt.Println()
		}
	}

	if !*pullOnly {
		report := engine.Upload(ctx)
		if report.Error != "" {
			fmt.Fprintf(os.Stderr, "upload failed: %s (%d still pending)\n", report.Error, report.Pending)
			exit = 1
		} else {
			fmt.Printf("upload: %d uploaded", report.Uploaded)
			if len(report.Failures) > 0 {
				fmt.Printf(", %d rejected", len(report.Failures))
			}
			fmt.Println()
		}
	}
	return exit
}
