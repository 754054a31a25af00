package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/basket/genebank/internal/config"
	"github.com/basket/genebank/internal/doctor"
)

func runDoctorCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank doctor [-json]")
		return 2
	}

	var cfgPtr *config.Config
	cfg, err := config.Load()
	if err == nil {
		cfgPtr = &cfg
	} else {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
	}

	d := doctor.Run(ctx, cfgPtr, Version)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			return 1
		}
	} else {
		fmt.Printf("genebank %s on %s/%s (%s)\n\n", d.System.Version, d.System.OS, d.System.Arch, d.System.Go)
		for _, r := range d.Results {
			fmt.Printf("  [%-4s] %-12s %s\n", r.Status, r.Name, r.Message)
			if r.Detail != "" {
				fmt.Printf("         %s\n", r.Detail)
			}
		}
	}

	if !d.Healthy() {
		return 1
	}
	return 0
}
