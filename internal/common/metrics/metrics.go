// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_runs_total",
			Help: "Total number of reaper runs by outcome and trigger",
		},
		[]string{"outcome", "trigger"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reaper_run_duration_seconds",
			Help:    "Duration of reaper runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"outcome"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reaper_last_run_timestamp_seconds",
			Help: "Unix time the last reaper run finished",
		},
	)

	AzurePagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_azure_pages_fetched_total",
			Help: "Total number of management API list pages fetched",
		},
		[]string{"operation"},
	)

	AzureListErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_azure_list_errors_total",
			Help: "Total number of list traversals aborted with a partial result",
		},
		[]string{"operation", "error_code"},
	)

	DeploymentActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_deployment_actions_total",
			Help: "Total number of deployment actions by status",
		},
		[]string{"status"},
	)

	SkippedTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_skipped_ticks_total",
			Help: "Total number of scheduled ticks skipped",
		},
		[]string{"reason"},
	)
)
