package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/hanko/internal/contract"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically moves pending contracts past their deadline to the
// terminal timeout state. Wait drives the common case; the sweeper covers
// contracts whose waiters died or never existed (daemon restarts, callers
// that abandoned the wait).
type Sweeper struct {
	engine   *Engine
	schedule cron.Schedule
	now      func() time.Time
}

func NewSweeper(engine *Engine, scheduleSpec string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(scheduleSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", scheduleSpec, err)
	}

	return &Sweeper{
		engine:   engine,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, sweeping on the configured schedule.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Timeout sweeper started")
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if n := s.Sweep(ctx); n > 0 {
				slog.Info("Timeout sweep completed", "expired", n)
			}
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Timeout sweeper stopped")
			return
		}
	}
}

// Sweep expires every pending contract whose deadline has passed and returns
// how many transitions were committed. Races with concurrent human decisions
// are resolved by the store CAS; losers are simply skipped.
func (s *Sweeper) Sweep(ctx context.Context) int {
	pending, err := s.engine.store.ListPending(ctx)
	if err != nil {
		slog.Error("Timeout sweep failed to list pending contracts", "error", err)
		return 0
	}

	now := s.now()
	expired := 0
	for _, c := range pending {
		if c.Deadline.After(now) {
			continue
		}
		result, err := s.engine.expire(ctx, c.ApprovalID)
		if err != nil {
			slog.Error("Failed to expire contract", "approval_id", c.ApprovalID, "error", err)
			continue
		}
		if result != nil && result.Decision == contract.DecisionTimeout {
			expired++
		}
	}
	return expired
}
