package conflict

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictFor(t *testing.T, productID uuid.UUID, conflictType Type, low, high int64) *SyncConflict {
	t.Helper()
	now := time.Now()
	c, err := NewSyncConflict(uuid.New(), productID, conflictType, []Observation{
		obs(channelA, "SHOPIFY", low, now, 0.9),
		obs(channelB, "AMAZON", high, now, 0.8),
	})
	require.NoError(t, err)
	return c
}

func TestAnalyzePatterns(t *testing.T) {
	assert.Empty(t, AnalyzePatterns(nil))

	productA := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000")
	productB := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000")

	noisy1 := conflictFor(t, productA, TypeStockMismatch, 90, 100)
	noisy2 := conflictFor(t, productA, TypeStockMismatch, 80, 100)
	noisy3 := conflictFor(t, productA, TypeOverselling, 95, 100)
	noisy3.Status = StatusManualReview
	quiet := conflictFor(t, productB, TypePriceMismatch, 99, 100)

	summaries := AnalyzePatterns([]*SyncConflict{quiet, noisy1, noisy2, noisy3})
	require.Len(t, summaries, 2)

	// Noisiest product first
	assert.Equal(t, productA, summaries[0].ProductID)
	assert.Equal(t, 3, summaries[0].ConflictCount)
	// (10 + 20 + 5) / 3
	assert.True(t, summaries[0].MeanDiscrepancy.Equal(decimal.NewFromFloat(11.67)), "got %s", summaries[0].MeanDiscrepancy)
	assert.Equal(t, TypeStockMismatch, summaries[0].DominantType)
	assert.Equal(t, 1, summaries[0].ManualReviews)

	assert.Equal(t, productB, summaries[1].ProductID)
	assert.Equal(t, 1, summaries[1].ConflictCount)
	assert.Equal(t, TypePriceMismatch, summaries[1].DominantType)
}
