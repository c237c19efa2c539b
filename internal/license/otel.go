package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"nodelock/internal/infrastructure"
)

const (
	TracerName = "nodelock/license"
	MeterName  = "nodelock/license"
)

// Metrics holds the license OpenTelemetry instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	Checks              metric.Int64Counter
	CheckDuration       metric.Float64Histogram
	Commits             metric.Int64Counter
	Reauthorizations    metric.Int64Counter
	StoreCorrupted      metric.Int64Counter
	FingerprintDegraded metric.Int64Counter
}

// NewMetrics creates the license instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Checks, err = meter.Int64Counter(
		"license.checks",
		metric.WithDescription("Authorization checks by verdict reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}

	m.CheckDuration, err = meter.Float64Histogram(
		"license.check.duration",
		metric.WithDescription("Authorization check duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create check duration histogram: %w", err)
	}

	m.Commits, err = meter.Int64Counter(
		"license.commits",
		metric.WithDescription("License code commits by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commits counter: %w", err)
	}

	m.Reauthorizations, err = meter.Int64Counter(
		"license.reauthorizations",
		metric.WithDescription("Re-authorization requests by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reauthorizations counter: %w", err)
	}

	m.StoreCorrupted, err = meter.Int64Counter(
		"license.store.corrupted",
		metric.WithDescription("Loads that found a corrupted license record"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create corrupted counter: %w", err)
	}

	m.FingerprintDegraded, err = meter.Int64Counter(
		"fingerprint.degraded",
		metric.WithDescription("Machine code resolutions that fell back to the degraded sentinel"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create degraded counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordCheck(ctx context.Context, v Verdict, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("reason", string(v.Reason)),
		attribute.String("capability", string(v.Capability)),
	)
	m.Checks.Add(ctx, 1, attrs)
	m.CheckDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if v.RecordCorrupted {
		m.StoreCorrupted.Add(ctx, 1)
	}
}

func (m *Metrics) recordCommit(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.Commits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(err))))
}

func (m *Metrics) recordReauthorize(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.Reauthorizations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(err))))
}

// RecordDegraded counts a degraded machine code resolution
func (m *Metrics) RecordDegraded(ctx context.Context) {
	if m == nil {
		return
	}
	m.FingerprintDegraded.Add(ctx, 1)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// startSpan opens a span for a license operation
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("component", "license_engine"))
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records the outcome on span and closes it
func endSpan(ctx context.Context, span trace.Span, err error, event string, fields map[string]interface{}) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		if event != "" {
			infrastructure.AddSpanEvent(ctx, event, fields)
		}
	}
	span.End()
}
