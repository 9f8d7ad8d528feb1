// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/common/lease"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/common/metrics"
	"commitment-reaper/internal/models"
)

// Runner performs one reaper pass.
type Runner interface {
	Run(ctx context.Context, trigger models.Trigger) *models.RunReport
}

type Options struct {
	Interval     time.Duration
	RunOnStartup bool
	Clock        clock.Clock
}

// Scheduler triggers a run every interval until its context is cancelled.
// Runs never overlap within a process; the lease keeps replicas apart.
type Scheduler struct {
	runner       Runner
	lease        lease.Lease
	clock        clock.Clock
	interval     time.Duration
	runOnStartup bool
	logger       logger.Logger
}

func New(runner Runner, l lease.Lease, opts Options, log logger.Logger) *Scheduler {
	if l == nil {
		l = lease.NopLease{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Scheduler{
		runner:       runner,
		lease:        l,
		clock:        opts.Clock,
		interval:     opts.Interval,
		runOnStartup: opts.RunOnStartup,
		logger:       log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Start blocks until ctx is done and returns nil on shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", map[string]interface{}{
		"interval":     s.interval.String(),
		"runOnStartup": s.runOnStartup,
	})

	if s.runOnStartup {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", nil)
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	release, err := s.lease.Acquire(ctx)
	if err != nil {
		reason := "lease_failed"
		if errors.HasCode(err, errors.ErrCodeLeaseHeld) {
			reason = "lease_held"
			s.logger.Info("run lease held elsewhere, skipping tick", nil)
		} else {
			s.logger.WithError(err).Warn("run lease unavailable, skipping tick", nil)
		}
		metrics.SkippedTicks.WithLabelValues(reason).Inc()
		metrics.RunsTotal.WithLabelValues(string(models.OutcomeSkipped), string(models.TriggerSchedule)).Inc()
		return
	}
	defer func() {
		// the run context may already be cancelled on shutdown
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.WithError(err).Warn("failed to release run lease", nil)
		}
	}()

	s.runner.Run(ctx, models.TriggerSchedule)
}
