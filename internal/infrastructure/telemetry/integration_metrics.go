package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter is required")

// IntegrationMetrics records platform calls, retries, rate-limit waits and auto-post decisions.
type IntegrationMetrics struct {
	calls        metric.Int64Counter
	callDuration metric.Float64Histogram
	retries      metric.Int64Counter
	limiterWaits metric.Float64Histogram
	decisions    metric.Int64Counter
	blockReasons metric.Int64Counter
}

// NewIntegrationMetrics creates the instruments on meter.
func NewIntegrationMetrics(meter metric.Meter) (*IntegrationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	var (
		m   IntegrationMetrics
		err error
		all []error
	)
	m.calls, err = meter.Int64Counter("ledgerflow.integration.calls",
		metric.WithDescription("Accounting platform calls by operation and outcome"),
		metric.WithUnit("{call}"))
	all = append(all, err)
	m.callDuration, err = meter.Float64Histogram("ledgerflow.integration.call.duration",
		metric.WithDescription("Duration of platform calls including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	all = append(all, err)
	m.retries, err = meter.Int64Counter("ledgerflow.integration.retries",
		metric.WithDescription("Retried platform call attempts"),
		metric.WithUnit("{attempt}"))
	all = append(all, err)
	m.limiterWaits, err = meter.Float64Histogram("ledgerflow.integration.ratelimit.wait",
		metric.WithDescription("Time callers waited for a rate limiter slot"),
		metric.WithUnit("s"))
	all = append(all, err)
	m.decisions, err = meter.Int64Counter("ledgerflow.autopost.decisions",
		metric.WithDescription("Auto-post guardrail decisions by state"),
		metric.WithUnit("{decision}"))
	all = append(all, err)
	m.blockReasons, err = meter.Int64Counter("ledgerflow.autopost.block_reasons",
		metric.WithDescription("Reasons that blocked automatic posting"),
		metric.WithUnit("{reason}"))
	all = append(all, err)
	if err := errors.Join(all...); err != nil {
		return nil, err
	}
	return &m, nil
}

// ObserveCall records one logical platform call. An empty kind means success.
func (m *IntegrationMetrics) ObserveCall(ctx context.Context, operation string, kind integration.ErrorKind, d time.Duration) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.calls.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, d.Seconds(), attrs)
}

// ObserveRetries records the extra attempts a call needed.
func (m *IntegrationMetrics) ObserveRetries(ctx context.Context, operation string, retries int) {
	if retries <= 0 {
		return
	}
	m.retries.Add(ctx, int64(retries), metric.WithAttributes(attribute.String("operation", operation)))
}

// ObserveLimiterWait records a rate limiter wait. It matches resilience.WithWaitObserver.
func (m *IntegrationMetrics) ObserveLimiterWait(wait time.Duration) {
	m.limiterWaits.Record(context.Background(), wait.Seconds())
}

// ObserveDecision records a guardrail decision and each blocking reason.
func (m *IntegrationMetrics) ObserveDecision(ctx context.Context, d guardrail.Decision) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(d.State))))
	for _, r := range d.Reasons {
		m.blockReasons.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(r))))
	}
}
