package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basket/genebank/internal/audit"
	"github.com/basket/genebank/internal/bus"
	"github.com/basket/genebank/internal/config"
	"github.com/basket/genebank/internal/evaluator"
	"github.com/basket/genebank/internal/injector"
	otelPkg "github.com/basket/genebank/internal/otel"
	"github.com/basket/genebank/internal/persistence"
	"github.com/basket/genebank/internal/recorder"
	"github.com/basket/genebank/internal/shared"
	"github.com/basket/genebank/internal/store"
	syncpkg "github.com/basket/genebank/internal/sync"
	"github.com/basket/genebank/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE:
  %s daemon                   Run the sync daemon (scheduler, relay, registry heartbeat)

SUBCOMMANDS:
  %s status [-json]           Show store stats, pending uploads, and index health
  %s record [options]         Evaluate a task outcome and record it if worthy
                              Options: --file <json> (default: stdin), --agent, --user, --scope
  %s import [options]         Import a manually authored gene
                              Options: --file <yaml|json>, --agent, --user, --scope
  %s prompt [options]         Render the gene context block for an agent
                              Options: --agent, --task <text>, --compact
  %s sync [options]           Pull from and upload to the platform once
                              Options: --pull-only, --upload-only, --category <name>
  %s push [options] <id>...   Push genes to other instances
                              Options: --to <instance>, --all, --broadcast, --user, --message
  %s instances                List instances in the local registry
  %s prune [options]          Remove a gene and purge delivered messages
                              Options: --gene <id>, --messages-before <days>
  %s doctor [-json]           Run diagnostic checks

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  GENEBANK_HOME             Data directory (default: ~/.genebank)
  GENEBANK_INSTANCE_ID      Instance identity for the registry and platform
  GENEBANK_USER_ID          User identity attached to recorded genes
  GENEBANK_PLATFORM_URL     Platform base URL for pull/upload
  GENEBANK_PLATFORM_TOKEN   Bearer token for platform requests

EXAMPLES:
  Show store health:        %s status
  Record a task outcome:    %s record --file outcome.json --agent coder-1
  Sync with the platform:   %s sync
  Push to a teammate:       %s push --to reviewer-1 gene-debug-a1b2c3d4
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	case "status":
		os.Exit(runStatusCommand(ctx, args[1:]))
	case "record":
		os.Exit(runRecordCommand(ctx, args[1:]))
	case "import":
		os.Exit(runImportCommand(ctx, args[1:]))
	case "prompt":
		os.Exit(runPromptCommand(ctx, args[1:]))
	case "sync":
		os.Exit(runSyncCommand(ctx, args[1:]))
	case "push":
		os.Exit(runPushCommand(ctx, args[1:]))
	case "instances":
		os.Exit(runInstancesCommand(ctx, args[1:]))
	case "prune":
		os.Exit(runPruneCommand(ctx, args[1:]))
	case "doctor":
		os.Exit(runDoctorCommand(ctx, args[1:]))
	case "daemon":
		os.Exit(runDaemon(ctx))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

// runtime bundles the pieces every subcommand needs. Subcommands run
// quiet: logs go to the file only, stdout stays clean for output.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	close  func()
}

func openRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, true)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	if err := audit.Init(cfg.HomeDir); err != nil {
		closer.Close()
		return nil, fmt.Errorf("audit init: %w", err)
	}
	st, err := store.Open(cfg.StoreDir, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  st,
		close: func() {
			_ = audit.Close()
			_ = closer.Close()
		},
	}, nil
}

func (rt *runtime) newRecorder(b *bus.Bus) (*recorder.Recorder, error) {
	evalCfg, err := rt.cfg.EvaluatorConfig()
	if err != nil {
		return nil, err
	}
	return recorder.New(rt.cfg.RecorderConfig(), evaluator.New(evalCfg), rt.store, b, rt.logger), nil
}

func (rt *runtime) newInjector() *injector.Injector {
	return injector.New(rt.store, rt.cfg.Stopwords(), nil, rt.logger)
}

func (rt *runtime) newClient() *syncpkg.Client {
	return syncpkg.NewClient(
		rt.cfg.Platform.BaseURL,
		rt.cfg.Platform.Token,
		rt.cfg.InstanceID,
		rt.cfg.UserID,
		rt.cfg.PlatformTimeout(),
	)
}

// runDaemon runs the long-lived instance: registry heartbeat, cron-paced
// pull/upload, direct-push drain, and the websocket relay listener.
func runDaemon(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)
	ctx = shared.WithInstanceID(ctx, cfg.InstanceID)
	logger.InfoContext(ctx, "daemon starting", "version", Version, "config", cfg.Fingerprint())

	if err := audit.Init(cfg.HomeDir); err != nil {
		logger.Error("audit init failed", "error", err)
		return 1
	}
	defer audit.Close()

	otelProvider, err := otelPkg.Init(ctx, cfg.Otel)
	if err != nil {
		logger.Error("otel init failed", "error", err)
		return 1
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	st, err := store.Open(cfg.StoreDir, logger)
	if err != nil {
		logger.Error("open store failed", "error", err)
		return 1
	}

	registry, err := persistence.Open(cfg.RegistryDB)
	if err != nil {
		logger.Error("open registry failed", "error", err)
		return 1
	}
	defer registry.Close()

	if err := registry.RegisterInstance(ctx, persistence.InstanceRecord{
		InstanceID:  cfg.InstanceID,
		DisplayName: cfg.DisplayName,
		UserID:      cfg.UserID,
		Roles:       strings.Join(cfg.Roles, ","),
		Status:      "active",
	}); err != nil {
		logger.Error("instance registration failed", "error", err)
		return 1
	}

	eventBus := bus.New()
	bridge := telemetry.NewMetricsBridge(eventBus, metrics, logger)
	bridge.Start(ctx)
	defer bridge.Stop()

	client := syncpkg.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token, cfg.InstanceID, cfg.UserID, cfg.PlatformTimeout())
	engine := syncpkg.NewEngine(st, client, eventBus, logger)
	applier := syncpkg.NewApplier(st, eventBus, logger)

	scheduler, err := syncpkg.NewScheduler(syncpkg.SchedulerConfig{
		Engine: engine,
		Drain: func(ctx context.Context) (int, error) {
			return applier.DrainMessages(ctx, registry, cfg.InstanceID)
		},
		Logger:   logger,
		CronExpr: cfg.Sync.Cron,
		Interval: time.Duration(cfg.Sync.TickIntervalSeconds) * time.Second,
	})
	if err != nil {
		logger.Error("scheduler init failed", "error", err, "cron", cfg.Sync.Cron)
		return 1
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	relay := syncpkg.NewRelay(cfg.Platform.RelayURL, cfg.Platform.Token, applier, logger)
	relay.Start(ctx)
	defer relay.Stop()

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	}
	go func() {
		for ev := range watcher.Events() {
			// Thresholds and heuristics take effect on the next beat;
			// identity and path changes need a restart.
			logger.Info("config reloaded", "path", ev.Path)
		}
	}()

	logger.InfoContext(ctx, "daemon ready", "store_dir", cfg.StoreDir, "registry_db", cfg.RegistryDB)
	<-ctx.Done()

	shutdownCtx := context.Background()
	if err := registry.UpdateInstanceStatus(shutdownCtx, cfg.InstanceID, "stopped"); err != nil {
		logger.Warn("failed to mark instance stopped", "error", err)
	}
	logger.Info("daemon stopped")
	return 0
}
