package scheduler

import (
	"context"
	"log/slog"
	"time"

	"kindle_digest/internal/domain"
)

// Runner runs one collection round.
type Runner interface {
	Run(ctx context.Context) (*domain.RoundStats, error)
}

type Config struct {
	Hour       int
	Minute     int
	Location   *time.Location
	RunOnStart bool

	// RoundTimeout of zero leaves rounds unbounded.
	RoundTimeout time.Duration
}

// Scheduler runs a round once a day at a fixed wall-clock time.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewScheduler(runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// NextTrigger returns the next hour:minute in loc strictly after now. When
// today's trigger has already passed, or is now, it is the same wall-clock
// time tomorrow.
func NextTrigger(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()

	next := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start blocks until ctx is cancelled. Round failures are logged and the
// loop carries on with the next trigger. A trigger never repeats, even when
// the timer fires while the wall clock still reads just before it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"hour", s.cfg.Hour,
		"minute", s.cfg.Minute,
		"timezone", s.cfg.Location.String(),
		"run_on_start", s.cfg.RunOnStart,
	)

	if s.cfg.RunOnStart {
		s.runRound(ctx)
	}

	var last time.Time
	for {
		now := s.now()
		from := now
		if from.Before(last) {
			from = last
		}
		next := NextTrigger(from, s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
		wait := next.Sub(now)

		s.logger.Info("next round scheduled", "at", next, "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.after(wait):
			last = next
			s.runRound(ctx)
		}
	}
}

func (s *Scheduler) runRound(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	roundCtx := ctx
	if s.cfg.RoundTimeout > 0 {
		var cancel context.CancelFunc
		roundCtx, cancel = context.WithTimeout(ctx, s.cfg.RoundTimeout)
		defer cancel()
	}

	stats, err := s.runner.Run(roundCtx)
	if err != nil {
		attrs := []any{"error", err}
		if stats != nil {
			attrs = append(attrs, "round_id", stats.RoundID, "failed_feeds", stats.FailedFeeds())
		}
		s.logger.Error("round failed, watermark unchanged", attrs...)
	}
}
