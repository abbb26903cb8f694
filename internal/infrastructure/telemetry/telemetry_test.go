package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/omnihub/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "test-service",
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, tp)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))

	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ExportInterval:    time.Minute,
		ServiceName:       "test-service",
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))

	assert.NoError(t, mp.Shutdown(ctx))
}

func TestDispatchMetrics_NoopProvider(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)

	dm, err := telemetry.NewDispatchMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, dm)

	// All recordings must be safe no-ops on a disabled provider.
	dm.RecordRequest(ctx, "shopify", "success")
	dm.RecordRetry(ctx, "shopify")
	dm.RecordRateLimitWait(ctx, "telegram", 150*time.Millisecond)
	dm.RecordWebhookVerification(ctx, "telegram", "accepted")
	dm.RecordDispatchDuration(ctx, "shopify", 2*time.Second)
}

func TestNewProfiler_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)

	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         false,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "test-service",
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("missing server address", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:         true,
			ApplicationName: "test-service",
		}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server address is required")
	})

	t.Run("missing application name", func(t *testing.T) {
		_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
			Enabled:       true,
			ServerAddress: "http://localhost:4040",
		}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "application name is required")
	})
}
