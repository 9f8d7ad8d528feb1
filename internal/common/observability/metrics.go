package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/common/logger"
)

// Observability owns the otel meter and tracer providers for the process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
	actionCounter  otelmetric.Int64Counter
}

// New wires the prometheus metric exporter and, when enabled, a jaeger span exporter.
// Exporter failures degrade to no-op instruments.
func New(serviceName string, tracing config.TracingConfig, log logger.Logger) *Observability {
	o := NewNoop(serviceName)

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("prometheus exporter unavailable, otel metrics disabled", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		o.initInstruments(o.meterProvider.Meter(serviceName))
	}

	if tracing.Enabled {
		tp, err := newTracerProvider(tracing)
		if err != nil {
			log.Warn("jaeger exporter unavailable, tracing disabled", map[string]interface{}{"error": err.Error()})
		} else {
			o.tracerProvider = tp
			o.tracer = tp.Tracer(serviceName)
			otel.SetTracerProvider(tp)
		}
	}

	return o
}

// NewNoop returns an Observability whose instruments and spans record nothing.
func NewNoop(serviceName string) *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}
}

func (o *Observability) initInstruments(meter otelmetric.Meter) {
	o.runCounter, _ = meter.Int64Counter(
		"reaper.runs",
		otelmetric.WithDescription("Number of reaper runs"),
	)
	o.runDuration, _ = meter.Float64Histogram(
		"reaper.run.duration",
		otelmetric.WithDescription("Reaper run duration"),
		otelmetric.WithUnit("ms"),
	)
	o.actionCounter, _ = meter.Int64Counter(
		"reaper.deployment.actions",
		otelmetric.WithDescription("Deployment actions taken by the reaper"),
	)
}

// StartSpan starts a span on the configured tracer. Safe on a nil receiver.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordRun(ctx context.Context, outcome, trigger string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("trigger", trigger),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordAction(ctx context.Context, status string) {
	if o == nil || o.actionCounter == nil {
		return
	}
	o.actionCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
