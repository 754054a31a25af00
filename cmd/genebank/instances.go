package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basket/genebank/internal/persistence"
)

// runInstancesCommand lists the instances in the local registry together
// with their unread direct-push message counts.
func runInstancesCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank instances", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: genebank instances")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	registry, err := persistence.Open(rt.cfg.RegistryDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open registry: %v\n", err)
		return 1
	}
	defer registry.Close()

	instances, err := registry.ListInstances(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list instances: %v\n", err)
		return 1
	}
	if len(instances) == 0 {
		fmt.Println("no instances registered")
		return 0
	}

	for _, inst := range instances {
		unread, err := registry.PeekMessages(ctx, inst.InstanceID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "peek messages for %s: %v\n", inst.InstanceID, err)
			return 1
		}
		marker := " "
		if inst.InstanceID == rt.cfg.InstanceID {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-10s user=%-12s unread=%d last_seen=%s\n",
			marker, inst.InstanceID, inst.Status, orDash(inst.UserID), unread,
			formatLastSeen(inst.LastSeenAt))
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
