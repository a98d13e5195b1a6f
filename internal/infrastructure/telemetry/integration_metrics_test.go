package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
)

func newTestMetrics(t *testing.T) (*IntegrationMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewIntegrationMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewIntegrationMetrics_NilMeter(t *testing.T) {
	_, err := NewIntegrationMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestNewIntegrationMetrics_Noop(t *testing.T) {
	m, err := NewIntegrationMetrics(noop.NewMeterProvider().Meter("noop"))
	require.NoError(t, err)

	ctx := context.Background()
	m.ObserveCall(ctx, "create_voucher", "", time.Millisecond)
	m.ObserveRetries(ctx, "create_voucher", 2)
	m.ObserveLimiterWait(10 * time.Millisecond)
	m.ObserveDecision(ctx, guardrail.Decision{State: guardrail.StateAllowed})
}

func TestIntegrationMetrics_ObserveCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveCall(ctx, "create_voucher", "", 120*time.Millisecond)
	m.ObserveCall(ctx, "create_voucher", integration.KindRateLimit, 2*time.Second)
	m.ObserveCall(ctx, "create_voucher", integration.KindRateLimit, time.Second)

	data := collect(t, reader)
	calls := data["ledgerflow.integration.calls"]
	assert.Equal(t, int64(1), sumFor(t, calls, "outcome", "ok"))
	assert.Equal(t, int64(2), sumFor(t, calls, "outcome", "rate_limit"))

	hist, ok := data["ledgerflow.integration.call.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestIntegrationMetrics_ObserveRetries(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveRetries(ctx, "refresh_token", 0)
	m.ObserveRetries(ctx, "refresh_token", 2)
	m.ObserveRetries(ctx, "refresh_token", 1)

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumFor(t, data["ledgerflow.integration.retries"], "operation", "refresh_token"))
}

func TestIntegrationMetrics_ObserveDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveDecision(ctx, guardrail.Decision{State: guardrail.StateAllowed})
	m.ObserveDecision(ctx, guardrail.Decision{
		State:   guardrail.StateBlocked,
		Reasons: []guardrail.Reason{guardrail.ReasonLowConfidence, guardrail.ReasonUnknownCounterparty},
	})
	m.ObserveDecision(ctx, guardrail.Decision{
		State:   guardrail.StateBlocked,
		Reasons: []guardrail.Reason{guardrail.ReasonLowConfidence},
	})

	data := collect(t, reader)
	decisions := data["ledgerflow.autopost.decisions"]
	assert.Equal(t, int64(1), sumFor(t, decisions, "state", "allowed"))
	assert.Equal(t, int64(2), sumFor(t, decisions, "state", "blocked"))

	reasons := data["ledgerflow.autopost.block_reasons"]
	assert.Equal(t, int64(2), sumFor(t, reasons, "reason", "low_confidence"))
	assert.Equal(t, int64(1), sumFor(t, reasons, "reason", "unknown_counterparty"))
}

func TestIntegrationMetrics_ObserveLimiterWait(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.ObserveLimiterWait(250 * time.Millisecond)

	data := collect(t, reader)
	hist, ok := data["ledgerflow.integration.ratelimit.wait"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 0.25, hist.DataPoints[0].Sum, 1e-9)
}

func TestProviders_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Enabled: false, ServiceName: "ledgerflow"}

	tp, err := NewTracerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := NewMeterProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
