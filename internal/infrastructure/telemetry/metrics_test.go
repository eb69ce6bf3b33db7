package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zaptest"

	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/telemetry"
)

func disabledConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ExportInterval:    time.Minute,
	}
}

func TestNewMeterProviderDisabled(t *testing.T) {
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, disabledConfig(), "channelsync-test", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.False(t, mp.IsEnabled())

	// A disabled provider still hands out a usable meter
	meter := mp.Meter("test")
	require.NotNil(t, meter)

	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestMeterProviderShutdownWithCancelledContext(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), disabledConfig(), "channelsync-test", zaptest.NewLogger(t))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, mp.Shutdown(cancelled))
}

func TestCounter(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, disabledConfig(), "channelsync-test", zaptest.NewLogger(t))
	require.NoError(t, err)

	counter, err := telemetry.NewCounter(mp.Meter("test"), "jobs_processed", "Processed jobs", "{job}")
	require.NoError(t, err)
	require.NotNil(t, counter)

	counter.Add(ctx, 5, telemetry.AttrJobCategory.String("SYNC"))
	counter.Inc(ctx, telemetry.AttrJobStatus.String("COMPLETED"))
}

func TestHistogram(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, disabledConfig(), "channelsync-test", zaptest.NewLogger(t))
	require.NoError(t, err)

	histogram, err := telemetry.NewHistogram(mp.Meter("test"), telemetry.HistogramOpts{
		Name:        "job_duration",
		Description: "Job duration",
		Unit:        "s",
		Boundaries:  telemetry.JobDurationBuckets,
	})
	require.NoError(t, err)

	histogram.Record(ctx, 0.25)
	histogram.RecordDuration(ctx, 1500*time.Millisecond, telemetry.AttrJobKind.String("sync.push_channel"))
}

func TestGauges(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, disabledConfig(), "channelsync-test", zaptest.NewLogger(t))
	require.NoError(t, err)

	gauge, err := telemetry.NewGauge(mp.Meter("test"), "queue_depth", "Queue depth", "{job}")
	require.NoError(t, err)
	gauge.Record(ctx, 12, telemetry.AttrJobCategory.String("WEBHOOK"))

	fgauge, err := telemetry.NewFloatGauge(mp.Meter("test"), "reliability", "Channel reliability", "1")
	require.NoError(t, err)
	fgauge.Record(ctx, 0.95, attribute.String("channel_type", "SHOPIFY"))
}

func TestAttributeKeys(t *testing.T) {
	assert.Equal(t, "store_id", string(telemetry.AttrStoreID))
	assert.Equal(t, "channel_id", string(telemetry.AttrChannelID))
	assert.Equal(t, "channel_type", string(telemetry.AttrChannelType))
	assert.Equal(t, "job_category", string(telemetry.AttrJobCategory))
	assert.Equal(t, "job_kind", string(telemetry.AttrJobKind))
	assert.Equal(t, "job_status", string(telemetry.AttrJobStatus))
	assert.Equal(t, "breaker_state", string(telemetry.AttrBreakerState))
	assert.Equal(t, "outcome", string(telemetry.AttrOutcome))
}

func TestJobDurationBucketsCoverRateLimitedCalls(t *testing.T) {
	buckets := telemetry.JobDurationBuckets
	require.NotEmpty(t, buckets)
	// Jobs wait on per-channel token buckets, so the top bucket must sit
	// beyond the two minute job timeout's same order of magnitude
	assert.GreaterOrEqual(t, buckets[len(buckets)-1], 60.0)
	for i := 1; i < len(buckets); i++ {
		assert.Greater(t, buckets[i], buckets[i-1])
	}
}
