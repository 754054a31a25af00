package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/recorder"
)

// runImportCommand loads a manually authored gene from a YAML or JSON
// file and persists it without evaluation or dedup.
func runImportCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "path to the gene file (.yaml, .yml, or .json)")
	agentID := fs.String("agent", "", "agent identity to attribute the gene to")
	userID := fs.String("user", "", "user identity (enables upload queueing)")
	scope := fs.String("scope", "", "gene scope: private, team, or platform (default: private)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" || len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank import --file gene.yaml [--agent id] [--user id] [--scope private|team]")
		return 2
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read gene: %v\n", err)
		return 1
	}

	// JSON imports are full wire records and pass the same schema check
	// as pulled or pushed genes; YAML is the lax authoring format.
	var g gene.Gene
	if strings.HasSuffix(*file, ".json") {
		parsed, verr := gene.ValidateRecord(raw)
		if verr != nil {
			fmt.Fprintf(os.Stderr, "parse gene: %v\n", verr)
			return 1
		}
		g = *parsed
	} else if err := yaml.Unmarshal(raw, &g); err != nil {
		fmt.Fprintf(os.Stderr, "parse gene: %v\n", err)
		return 1
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	rc := recorder.Context{AgentID: *agentID, UserID: *userID}
	if *scope != "" {
		s, ok := gene.ParseScope(*scope)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown scope %q\n", *scope)
			return 2
		}
		rc.Scope = s
	}
	if rc.UserID == "" {
		rc.UserID = rt.cfg.UserID
	}

	rec, err := rt.newRecorder(bus.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorder init: %v\n", err)
		return 1
	}
	saved, err := rec.RecordManual(ctx, &g, rc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v\n", err)
		return 1
	}

	fmt.Printf("imported %s (%s, score %.1f, scope %s)\n",
		saved.ID, saved.Category, saved.Metadata.Score, saved.Metadata.Scope)
	return 0
}
