package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/gene"
	"github.com/basket/genebank/internal/recorder"
)

// recordInput is the JSON document the record command consumes: the task
// the agent was given plus the structured outcome it reported.
type recordInput struct {
	Task     gene.Task     `json:"task"`
	Solution gene.Solution `json:"solution"`
}

func runRecordCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank record", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "path to the outcome JSON (default: stdin)")
	agentID := fs.String("agent", "", "agent identity to attribute the gene to")
	userID := fs.String("user", "", "user identity (enables upload queueing)")
	scope := fs.String("scope", "", "gene scope: private, team, or platform (default: private)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank record [--file outcome.json] [--agent id] [--user id] [--scope private|team]")
		return 2
	}

	var raw []byte
	var err error
	if *file == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read outcome: %v\n", err)
		return 1
	}

	var input recordInput
	if err := json.Unmarshal(raw, &input); err != nil {
		fmt.Fprintf(os.Stderr, "parse outcome: %v\n", err)
		return 1
	}
	if input.Task.Description == "" {
		fmt.Fprintln(os.Stderr, "outcome is missing task.description")
		return 2
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
	result, err := rec.RecordIfWorthy(ctx, &input.Task, &input.Solution, rc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "record: %v\n", err)
		return 1
	}

	fmt.Println(result.Message)
	if result.Gene == nil {
		// Suppressed outcomes are not failures; the caller asked "is this
		// worth keeping" and the answer was no.
		return 0
	}
	if len(result.Evaluation.Reasons) > 0 {
		for _, reason := range result.Evaluation.Reasons {
			fmt.Printf("  %s\n", reason)
		}
	}
	return 0
}
