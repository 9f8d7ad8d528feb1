package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commitment-reaper/internal/common/camunda"
	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/scheduler"
	reaper "commitment-reaper/internal/workers/capacity/reap-expired-commitments"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reaper on its interval with health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := wireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runLease, err := a.wireLease(ctx)
	if err != nil {
		return err
	}

	health := newHealthServer()
	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           health,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.Metrics.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("health/metrics server failed", nil)
		}
	}()

	if cfg.Camunda.Enabled() {
		zb, err := camunda.NewClient(ctx, camunda.ConfigFrom(cfg.Camunda), a.log)
		if err != nil {
			return err
		}
		defer func() {
			if err := zb.Close(); err != nil {
				a.log.WithError(err).Error("error closing Zeebe client", nil)
			}
		}()

		jobType := cfg.Camunda.JobType
		if jobType == "" {
			jobType = reaper.TaskType
		}
		w := camunda.NewWorker(zb.Zeebe(), camunda.WorkerConfig{
			TaskType:      jobType,
			MaxJobsActive: cfg.Camunda.MaxJobsActive,
			Timeout:       config.GetDuration(cfg.Camunda.Timeout),
		}, a.handler.Handle, a.log)
		defer w.Stop()
	}

	sched := scheduler.New(a.handler, runLease, scheduler.Options{
		Interval:     cfg.Cleanup.Interval,
		RunOnStartup: cfg.Cleanup.RunOnStartup,
		Clock:        a.clock,
	}, a.log)

	health.SetReady(true)
	a.log.Info("reaper started", map[string]interface{}{
		"interval": cfg.Cleanup.Interval.String(),
		"dryRun":   cfg.Cleanup.DryRun,
	})

	err = sched.Start(ctx)

	a.log.Info("shutdown signal received, stopping", nil)
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.WithError(serr).Error("health/metrics server shutdown failed", nil)
	}

	a.log.Info("reaper stopped gracefully", nil)
	return err
}
