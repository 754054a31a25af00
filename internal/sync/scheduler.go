package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// SchedulerConfig holds the dependencies for the sync heartbeat.
type SchedulerConfig struct {
	Engine   *Engine
	Drain    func(ctx context.Context) (int, error) // optional: drains the registry message channel each beat
	Logger   *slog.Logger
	CronExpr string        // heartbeat schedule; defaults to every 15 minutes
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler fires the sync heartbeat (pull, then upload, then message
// drain) on a cron schedule.
type Scheduler struct {
	engine   *Engine
	drain    func(ctx context.Context) (int, error)
	logger   *slog.Logger
	interval time.Duration
	expr     string

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler with the given config.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = "*/15 * * * *"
	}
	// Validate the expression up front so a bad config fails at startup.
	if _, err := cronParser.Parse(expr); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   cfg.Engine,
		drain:    cfg.Drain,
		logger:   logger,
		interval: interval,
		expr:     expr,
	}, nil
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("sync scheduler started", "cron", s.expr, "interval", s.interval)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Fire immediately on startup, then on the cron schedule.
	s.beat(ctx)
	s.advance(time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			due := !now.Before(s.nextRun)
			s.mu.Unlock()
			if due {
				s.beat(ctx)
				s.advance(now)
			}
		}
	}
}

// advance computes the next due time after now.
func (s *Scheduler) advance(now time.Time) {
	next, err := NextRunTime(s.expr, now)
	if err != nil {
		// Expression was validated at construction; this is unreachable
		// short of a clock anomaly.
		s.logger.Error("failed to compute next sync run", "cron", s.expr, "error", err)
		next = now.Add(s.interval)
	}
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
}

// beat runs one heartbeat: pull, upload, drain. Each stage reports its
// own failure and the next stage still runs.
func (s *Scheduler) beat(ctx context.Context) {
	pull := s.engine.Pull(ctx)
	if pull.Error != "" {
		s.logger.Warn("heartbeat pull failed", "error", pull.Error)
	}
	upload := s.engine.Upload(ctx)
	if upload.Error != "" {
		s.logger.Warn("heartbeat upload failed", "pending", upload.Pending, "error", upload.Error)
	}
	if s.drain != nil {
		if n, err := s.drain(ctx); err != nil {
			s.logger.Warn("heartbeat message drain failed", "applied", n, "error", err)
		}
	}
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
