package conflict

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	now := time.Now()
	storeID, productID := uuid.New(), uuid.New()
	detector := NewDetector(DefaultDetectorConfig())

	t.Run("fewer than two observations never conflict", func(t *testing.T) {
		c, err := detector.Detect(storeID, productID, []Observation{
			obs(channelA, "SHOPIFY", 100, now, 0.9),
		})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("agreement yields no conflict", func(t *testing.T) {
		c, err := detector.Detect(storeID, productID, []Observation{
			obs(channelA, "SHOPIFY", 100, now, 0.9),
			obs(channelB, "AMAZON", 100, now, 0.8),
		})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("default threshold flags any mismatch", func(t *testing.T) {
		c, err := detector.Detect(storeID, productID, []Observation{
			obs(channelA, "SHOPIFY", 100, now, 0.9),
			obs(channelB, "AMAZON", 99, now, 0.8),
		})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, TypeStockMismatch, c.Type)
		assert.True(t, c.Discrepancy.Equal(decimal.NewFromInt(1)))
	})

	t.Run("spread at or below the threshold is tolerated", func(t *testing.T) {
		tolerant := NewDetector(DetectorConfig{AbsoluteThreshold: decimal.NewFromInt(5)})

		c, err := tolerant.Detect(storeID, productID, []Observation{
			obs(channelA, "SHOPIFY", 100, now, 0.9),
			obs(channelB, "AMAZON", 95, now, 0.8),
		})
		require.NoError(t, err)
		assert.Nil(t, c)

		c, err = tolerant.Detect(storeID, productID, []Observation{
			obs(channelA, "SHOPIFY", 100, now, 0.9),
			obs(channelB, "AMAZON", 94, now, 0.8),
		})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.True(t, c.Discrepancy.Equal(decimal.NewFromInt(6)))
	})
}

func TestSeverityScalesWithDiscrepancy(t *testing.T) {
	now := time.Now()
	detector := NewDetector(DefaultDetectorConfig())

	tests := []struct {
		name string
		low  int64
		high int64
		want Severity
	}{
		{"small spread is low", 98, 100, SeverityLow},
		{"moderate spread is medium", 90, 100, SeverityMedium},
		{"large spread is high", 70, 100, SeverityHigh},
		{"huge spread is critical", 40, 100, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := detector.Detect(uuid.New(), uuid.New(), []Observation{
				obs(channelA, "SHOPIFY", tt.low, now, 0.9),
				obs(channelB, "AMAZON", tt.high, now, 0.8),
			})
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.Severity)
		})
	}
}
