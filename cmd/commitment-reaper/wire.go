package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"commitment-reaper/internal/common/audit"
	"commitment-reaper/internal/common/auth"
	"commitment-reaper/internal/common/aws"
	"commitment-reaper/internal/common/azure"
	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/common/database"
	httpclient "commitment-reaper/internal/common/http"
	"commitment-reaper/internal/common/lease"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/common/observability"
	"commitment-reaper/internal/common/validation"
	reaper "commitment-reaper/internal/workers/capacity/reap-expired-commitments"
)

const (
	infraRetries    = 5
	infraRetryDelay = 2 * time.Second
)

// app holds everything a command needs, built from one config.
type app struct {
	cfg       *config.Config
	zapLog    *zap.Logger
	log       logger.Logger
	obs       *observability.Observability
	clock     clock.Clock
	transport *httpclient.Client
	provider  auth.Provider
	handler   *reaper.Handler

	closers []func() error
}

func wireApp(ctx context.Context, cfg *config.Config) (*app, error) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": version,
	})

	a := &app{
		cfg:    cfg,
		zapLog: zapLog,
		log:    log,
		clock:  clock.New(),
	}
	a.obs = observability.New(cfg.App.Name, cfg.Tracing, log)
	a.transport = httpclient.NewClient(cfg.Azure.RequestTimeout, log)
	a.provider = auth.NewClientSecretProvider(cfg.Azure, a.transport)

	validator, err := validation.NewReportValidator()
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := reaper.Dependencies{
		Credentials:   a.provider,
		NewClient:     func(token azcore.AccessToken) reaper.ManagementAPI { return a.managementClient(token) },
		Validator:     validator,
		Clock:         a.clock,
		Observability: a.obs,
	}

	sink, err := a.wireSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if sink.Len() > 0 {
		deps.Sink = sink
	}

	if deps.Notifiers, err = a.wireNotifiers(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.handler, err = reaper.NewHandler(reaper.NewConfig(cfg), deps, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create reaper handler: %w", err)
	}

	log.Info("application wired", map[string]interface{}{
		"dryRun":    cfg.Cleanup.DryRun,
		"sinks":     sink.Len(),
		"notifiers": len(deps.Notifiers),
	})
	return a, nil
}

// managementClient binds a fresh client to the token of one run.
func (a *app) managementClient(token azcore.AccessToken) *azure.Client {
	opts := azure.OptionsFromConfig(a.cfg.Azure, a.transport)
	opts.Clock = a.clock
	return azure.NewClient(auth.NewStaticCredential(token), opts, a.log)
}

func (a *app) wireSinks(ctx context.Context) (*audit.MultiSink, error) {
	var sinks []audit.Sink

	if pgCfg := a.cfg.Database.Postgres; pgCfg.Enabled() {
		var pg *database.PostgresClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(pgCfg)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			return nil
		}, infraRetries, infraRetryDelay, a.log, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)

		pgSink := audit.NewPostgresSink(pg.DB)
		if err := pgSink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, pgSink)
		a.log.Info("PostgreSQL audit sink ready", nil)
	}

	if esCfg := a.cfg.Database.Elasticsearch; esCfg.Enabled() {
		var es *database.ElasticsearchClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			es, err = database.NewElasticsearch(esCfg, nil)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, infraRetries, infraRetryDelay, a.log, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewElasticsearchSink(es.Client, esCfg.Index))
		a.log.Info("Elasticsearch audit sink ready", map[string]interface{}{"index": esCfg.Index})
	}

	return audit.NewMultiSink(a.log, sinks...), nil
}

func (a *app) wireNotifiers(ctx context.Context) ([]reaper.Notifier, error) {
	var notifiers []reaper.Notifier
	n := a.cfg.Notifications

	if n.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, aws.NewSNSNotifier(client, n.SNS.TopicARN))
	}
	if n.SES.Enabled {
		client, err := aws.NewSESClient(ctx, n.AWS.Region)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, aws.NewSESNotifier(client, n.SES.FromEmail, n.SES.ToEmails))
	}
	return notifiers, nil
}

// wireLease returns the redis-backed run lease, or a no-op lease when disabled.
func (a *app) wireLease(ctx context.Context) (lease.Lease, error) {
	if !a.cfg.Lease.Enabled {
		return lease.NopLease{}, nil
	}

	rdb := database.NewRedis(a.cfg.Database.Redis)
	err := retryWithBackoff(ctx, func() error {
		return rdb.Ping(ctx)
	}, infraRetries, infraRetryDelay, a.log, "Redis connection")
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)

	a.log.Info("Redis run lease ready", map[string]interface{}{
		"key": a.cfg.Lease.Key,
		"ttl": a.cfg.Lease.TTL.String(),
	})
	return lease.NewRedisLease(rdb.Client, a.cfg.Lease.Key, a.cfg.Lease.TTL), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error while closing resource", nil)
		}
	}
	a.closers = nil
	a.obs.Shutdown()
	_ = a.zapLog.Sync()
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
