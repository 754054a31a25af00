package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/genebank/internal/injector"
)

// runPromptCommand renders gene context for an agent: the full grouped
// block by default, a one-line digest with --compact, or a relevance
// search when --task is given.
func runPromptCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank prompt", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	agentID := fs.String("agent", "", "agent identity")
	task := fs.String("task", "", "task description for relevance search")
	compact := fs.Bool("compact", false, "render the compact digest")
	maxGenes := fs.Int("max", 0, "cap on genes included (0 = default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank prompt [--agent id] [--task text] [--compact] [--max n]")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()
	inj := rt.newInjector()

	// Configured retrieval defaults; --max overrides the cap per call.
	injCfg := rt.cfg.Injector
	searchOpts := injector.SearchOptions{
		MaxResults: injCfg.MaxResults,
		MinScore:   injCfg.MinScore,
		Threshold:  injCfg.Threshold,
	}
	promptOpts := injector.PromptOptions{
		MaxGenes: injCfg.MaxGenes,
		MinScore: injCfg.MinScore,
	}
	if *maxGenes > 0 {
		searchOpts.MaxResults = *maxGenes
		promptOpts.MaxGenes = *maxGenes
	}

	if *task != "" {
		hits, err := inj.FindRelevant(ctx, *task, *agentID, searchOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "search: %v\n", err)
			return 1
		}
		if len(hits) == 0 {
			fmt.Println("no relevant genes")
			return 0
		}
		for _, g := range hits {
			fmt.Printf("%s [%s, score %.1f]\n  %s\n", g.Name, g.Category, g.Metadata.Score, g.Strategy.Description)
		}
		return 0
	}

	var block string
	if *compact {
		block, err = inj.CompactDigest(ctx, *agentID, *maxGenes)
	} else {
		block, err = inj.BuildPrompt(ctx, *agentID, promptOpts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prompt: %v\n", err)
		return 1
	}
	if block == "" {
		fmt.Fprintln(os.Stderr, "no genes qualify")
		return 0
	}
	fmt.Print(block)
	return 0
}
