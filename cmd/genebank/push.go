package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/genebank/internal/persistence"
	syncpkg "github.com/basket/genebank/internal/sync"
)

// runPushCommand shares genes with other instances: direct via the
// local registry message channel, or broadcast through the platform.
func runPushCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("genebank push", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	toInstance := fs.String("to", "", "target instance id for a direct push")
	all := fs.Bool("all", false, "push to every active instance in the registry")
	broadcast := fs.Bool("broadcast", false, "push through the platform; targets all online users unless --user is given")
	targetUser := fs.String("user", "", "restrict --broadcast to one user's instances")
	message := fs.String("message", "", "note attached to a broadcast push")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	geneIDs := fs.Args()
	modes := 0
	for _, set := range []bool{*toInstance != "", *all, *broadcast} {
		if set {
			modes++
		}
	}
	if len(geneIDs) == 0 || modes != 1 {
		fmt.Fprintln(os.Stderr, "usage: genebank push (--to instance | --all | --broadcast [--user id]) <gene-id>...")
		return 2
	}

	rt, err := openRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer rt.close()

	if *broadcast {
		pusher := syncpkg.NewPusher(rt.store, rt.newClient(), nil, rt.cfg.InstanceID, rt.logger)
		resp, err := pusher.Broadcast(ctx, geneIDs, *targetUser, *message)
		if err != nil {
			fmt.Fprintf(os.Stderr, "broadcast: %v\n", err)
			return 1
		}
		// An empty user id broadcasts to every online instance.
		target := *targetUser
		if target == "" {
			target = "all online users"
		}
		fmt.Printf("broadcast accepted: %d genes pushed for %s\n", resp.Pushed, target)
		return 0
	}

	registry, err := persistence.Open(rt.cfg.RegistryDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open registry: %v\n", err)
		return 1
	}
	defer registry.Close()

	pusher := syncpkg.NewPusher(rt.store, rt.newClient(), registry, rt.cfg.InstanceID, rt.logger)
	if *all {
		reached, err := pusher.PushDirectAll(ctx, geneIDs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "push: %v\n", err)
			return 1
		}
		fmt.Printf("pushed %d genes to %d instances\n", len(geneIDs), reached)
		return 0
	}

	if err := pusher.PushDirect(ctx, geneIDs, *toInstance); err != nil {
		fmt.Fprintf(os.Stderr, "push: %v\n", err)
		return 1
	}
	fmt.Printf("pushed %d genes to %s\n", len(geneIDs), *toInstance)
	return 0
}
