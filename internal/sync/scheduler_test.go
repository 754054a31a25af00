package sync

import (
	"context"
	"testing"
	"time"
)

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 8, 20, 10, 7, 0, 0, time.UTC)
	next, err := NextRunTime("*/15 * * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2026, 8, 20, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNewScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{
		Engine:   NewEngine(newTestStore(t), NewClient("", "", "inst-1", "", 0), nil, discardLogger()),
		CronExpr: "not a cron expr",
	})
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	drained := make(chan struct{}, 1)
	s, err := NewScheduler(SchedulerConfig{
		Engine: NewEngine(newTestStore(t), NewClient("", "", "inst-1", "", 0), nil, discardLogger()),
		Drain: func(ctx context.Context) (int, error) {
			select {
			case drained <- struct{}{}:
			default:
			}
			return 0, nil
		},
		Logger:   discardLogger(),
		Interval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	s.Start(context.Background())
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("startup beat did not run")
	}
	s.Stop()
}
