// Package metrics wires OpenTelemetry for the refresh pipeline: a meter
// exported through a Prometheus registry and an optional stdout tracer.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	TracingNone   = "none"
	TracingStdout = "stdout"
)

// Refresh outcomes.
const (
	OutcomeRan          = "ran"
	OutcomeSkippedBusy  = "skipped_busy"
	OutcomeSkippedFresh = "skipped_fresh"
	OutcomeCanceled     = "canceled"
)

// Fetch results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const (
	attrOutcome = "outcome"
	attrChannel = "channel"
	attrResult  = "result"
	attrSource  = "source"
)

// Config selects what gets exported.
type Config struct {
	Enabled        bool
	Tracing        string
	ServiceName    string
	ServiceVersion string
	// TraceWriter receives stdout spans. Defaults to os.Stdout.
	TraceWriter io.Writer
}

// Provider owns the meter and tracer providers.
type Provider struct {
	enabled        bool
	registry       *promclient.Registry
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	recorder       *Recorder
}

// New builds a Provider. A disabled config yields a Provider whose recorder
// and tracer do nothing and whose Handler is nil.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{recorder: &Recorder{}}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "skycal"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p := &Provider{
		enabled:  true,
		registry: reg,
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		),
	}

	switch cfg.Tracing {
	case "", TracingNone:
	case TracingStdout:
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			_ = p.meterProvider.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSyncer(spanExporter),
		)
	default:
		_ = p.meterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Tracing)
	}

	p.recorder, err = NewRecorder(p.meterProvider.Meter(cfg.ServiceName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	return p, nil
}

// Recorder returns the metric recorder. Never nil.
func (p *Provider) Recorder() *Recorder {
	return p.recorder
}

// Tracer returns a tracer, a no-op one when tracing is off.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tracerProvider.Tracer(name)
}

// Handler serves the Prometheus exposition format, or nil when disabled.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Recorder records refresh pipeline metrics. The zero value and a nil
// *Recorder are both safe and record nothing.
type Recorder struct {
	refreshes       otelmetric.Int64Counter
	refreshDuration otelmetric.Float64Histogram
	sourceFetches   otelmetric.Int64Counter
	malformed       otelmetric.Int64Counter
}

// NewRecorder creates every instrument on meter.
func NewRecorder(meter otelmetric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	r.refreshes, err = meter.Int64Counter(
		"skycal_refreshes",
		otelmetric.WithDescription("Refresh requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skycal_refreshes counter: %w", err)
	}

	r.refreshDuration, err = meter.Float64Histogram(
		"skycal_refresh_duration_seconds",
		otelmetric.WithDescription("Duration of refreshes that ran"),
		otelmetric.WithUnit("s"),
		otelmetric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skycal_refresh_duration_seconds histogram: %w", err)
	}

	r.sourceFetches, err = meter.Int64Counter(
		"skycal_source_fetches",
		otelmetric.WithDescription("Per-source fetch attempts by channel and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skycal_source_fetches counter: %w", err)
	}

	r.malformed, err = meter.Int64Counter(
		"skycal_malformed_events",
		otelmetric.WithDescription("Raw event records skipped during normalization"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skycal_malformed_events counter: %w", err)
	}
	return r, nil
}

// RecordRefresh counts one refresh request. duration is only observed for
// refreshes that ran.
func (r *Recorder) RecordRefresh(ctx context.Context, outcome string, duration time.Duration) {
	if r == nil || r.refreshes == nil {
		return
	}
	r.refreshes.Add(ctx, 1, otelmetric.WithAttributes(attribute.String(attrOutcome, outcome)))
	if outcome == OutcomeRan {
		r.refreshDuration.Record(ctx, duration.Seconds())
	}
}

// RecordSourceFetch counts one primary or fallback attempt.
func (r *Recorder) RecordSourceFetch(ctx context.Context, channel, result string) {
	if r == nil || r.sourceFetches == nil {
		return
	}
	r.sourceFetches.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String(attrChannel, channel),
		attribute.String(attrResult, result),
	))
}

// RecordMalformed counts skipped records for a source.
func (r *Recorder) RecordMalformed(ctx context.Context, source string, n int) {
	if r == nil || r.malformed == nil || n <= 0 {
		return
	}
	r.malformed.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String(attrSource, source)))
}
