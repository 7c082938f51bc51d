package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweeper every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper expires sessions that stayed idle longer than maxIdle, deletes their
// spooled files and tells the user.
type Sweeper struct {
	store     Store
	messenger Messenger
	spooler   Spooler
	maxIdle   time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper. It does nothing until Start.
func NewSweeper(log *slog.Logger, store Store, messenger Messenger, spooler Spooler, maxIdle time.Duration, schedule string) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		store:     store,
		messenger: messenger,
		spooler:   spooler,
		maxIdle:   maxIdle,
		schedule:  schedule,
		logger:    log.With(slog.String("service", "session_sweeper")),
		now:       time.Now,
	}
}

// Start schedules the sweep. A non-positive maxIdle leaves it disabled.
func (s *Sweeper) Start() error {
	if s.maxIdle <= 0 {
		s.logger.Info("session sweeper disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule session sweeper: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("session sweeper started", slog.String("schedule", s.schedule), slog.Duration("max_idle", s.maxIdle))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep expires stale sessions once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired := s.store.Expire(s.now().Add(-s.maxIdle))
	for _, sess := range expired {
		for _, p := range sess.AttachmentPaths {
			if err := s.spooler.Remove(p); err != nil {
				s.logger.Warn("remove temp file failed", slog.String("path", p), slog.Any("error", err))
			}
		}
		s.logger.Info("session expired",
			slog.String("user", sess.Key),
			slog.String("label", sess.ContextLabel),
			slog.Time("updated_at", sess.UpdatedAt),
		)
		if sess.ReplyTarget == "" {
			continue
		}
		if err := s.messenger.Push(ctx, sess.Channel, sess.ReplyTarget, expiredNotice(sess.ContextLabel)); err != nil {
			s.logger.Warn("expiry notice failed", slog.String("user", sess.Key), slog.Any("error", err))
		}
	}
	return len(expired)
}
