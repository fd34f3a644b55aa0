// Package metrics exposes pipeline counters through OpenTelemetry. Until
// Setup or Use is called every recording function is a no-op.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "voicein/pipeline"

type instruments struct {
	recordings  metric.Int64Counter
	jobs        metric.Int64Counter
	jobDuration metric.Float64Histogram
	audioSecs   metric.Float64Histogram
	negotiation metric.Int64Counter
}

var current atomic.Pointer[instruments]

// Setup installs a meter provider backed by a Prometheus exporter and
// returns the scrape handler plus a shutdown func.
func Setup(serviceName string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	if err := Use(provider); err != nil {
		return nil, nil, err
	}
	return promhttp.Handler(), provider.Shutdown, nil
}

// Use builds the instruments from p.
func Use(p metric.MeterProvider) error {
	meter := p.Meter(meterName)
	var in instruments
	var err error
	if in.recordings, err = meter.Int64Counter("voicein.recordings",
		metric.WithDescription("Finished recordings by outcome")); err != nil {
		return err
	}
	if in.jobs, err = meter.Int64Counter("voicein.jobs",
		metric.WithDescription("Finished transcription jobs by provider and status")); err != nil {
		return err
	}
	if in.jobDuration, err = meter.Float64Histogram("voicein.job.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Transcription job latency")); err != nil {
		return err
	}
	if in.audioSecs, err = meter.Float64Histogram("voicein.recording.length",
		metric.WithUnit("s"),
		metric.WithDescription("Recorded audio length")); err != nil {
		return err
	}
	if in.negotiation, err = meter.Int64Counter("voicein.stream.opens",
		metric.WithDescription("Input streams opened by negotiated sample rate")); err != nil {
		return err
	}
	current.Store(&in)
	return nil
}

// Reset drops the installed instruments.
func Reset() {
	current.Store(nil)
}

func RecordingFinished(ctx context.Context, outcome string, seconds float64) {
	in := current.Load()
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	in.recordings.Add(ctx, 1, attrs)
	in.audioSecs.Record(ctx, seconds, attrs)
}

func JobFinished(ctx context.Context, provider, status string, elapsed time.Duration) {
	in := current.Load()
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	in.jobs.Add(ctx, 1, attrs)
	in.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func StreamOpened(ctx context.Context, rate uint32) {
	in := current.Load()
	if in == nil {
		return
	}
	in.negotiation.Add(ctx, 1, metric.WithAttributes(attribute.Int("rate", int(rate))))
}
