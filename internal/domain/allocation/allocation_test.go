package allocation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelsync/backend/internal/domain/shared"
)

func newTestAllocation(t *testing.T, physical int64, bufferPercent int64) *InventoryAllocation {
	t.Helper()
	a, err := NewInventoryAllocation(
		uuid.New(), uuid.New(),
		decimal.NewFromInt(physical), decimal.NewFromInt(bufferPercent),
	)
	require.NoError(t, err)
	return a
}

func applyEqualPlan(t *testing.T, a *InventoryAllocation, channels ...uuid.UUID) {
	t.Helper()
	inputs := make([]ChannelInput, 0, len(channels))
	for _, id := range channels {
		inputs = append(inputs, ChannelInput{ChannelID: id})
	}
	plan, err := ComputePlan(StrategyEqualDistribution, a.Allocatable(), inputs)
	require.NoError(t, err)
	require.NoError(t, a.ApplyPlan(plan))
}

func TestNewInventoryAllocation(t *testing.T) {
	_, err := NewInventoryAllocation(uuid.New(), uuid.New(), decimal.NewFromInt(-1), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPhysicalStock)

	_, err = NewInventoryAllocation(uuid.New(), uuid.New(), decimal.NewFromInt(10), decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	a := newTestAllocation(t, 100, 10)
	assert.True(t, a.Allocatable().Equal(decimal.NewFromInt(90)))
	assert.Empty(t, a.Lines)
}

func TestAllocatableRoundsDownToWholeUnits(t *testing.T) {
	a := newTestAllocation(t, 95, 10)
	// 95 * 0.9 = 85.5
	assert.True(t, a.Allocatable().Equal(decimal.NewFromInt(85)))
}

func TestApplyPlan(t *testing.T) {
	t.Run("plan within allocatable stock is accepted", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)

		assert.True(t, a.TotalAllocated().Equal(decimal.NewFromInt(10)))
		assert.False(t, a.TotalAllocated().GreaterThan(a.Allocatable()))
	})

	t.Run("plan exceeding allocatable stock is rejected", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		err := a.ApplyPlan(Plan{Strategy: StrategyEqualDistribution, Lines: []PlanLine{
			{ChannelID: chanA, Quantity: decimal.NewFromInt(11)},
		}})
		assert.ErrorIs(t, err, ErrPlanExceedsStock)
		assert.Empty(t, a.Lines, "rejected plan leaves state untouched")
	})

	t.Run("plan cannot allocate below a channel's reservations", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)
		_, err := a.Reserve(chanA, decimal.NewFromInt(4), "order-1")
		require.NoError(t, err)

		err = a.ApplyPlan(Plan{Strategy: StrategyEqualDistribution, Lines: []PlanLine{
			{ChannelID: chanA, Quantity: decimal.NewFromInt(3)},
			{ChannelID: chanB, Quantity: decimal.NewFromInt(7)},
		}})
		assert.ErrorIs(t, err, ErrPlanBelowReserved)
	})

	t.Run("plan cannot drop a channel holding reservations", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)
		_, err := a.Reserve(chanB, decimal.NewFromInt(1), "order-1")
		require.NoError(t, err)

		err = a.ApplyPlan(Plan{Strategy: StrategyEqualDistribution, Lines: []PlanLine{
			{ChannelID: chanA, Quantity: decimal.NewFromInt(10)},
		}})
		assert.ErrorIs(t, err, ErrPlanBelowReserved)
	})

	t.Run("rebalance preserves existing reservations", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)
		_, err := a.Reserve(chanA, decimal.NewFromInt(2), "order-1")
		require.NoError(t, err)

		err = a.ApplyPlan(Plan{Strategy: StrategyEqualDistribution, Lines: []PlanLine{
			{ChannelID: chanA, Quantity: decimal.NewFromInt(7)},
			{ChannelID: chanB, Quantity: decimal.NewFromInt(3)},
		}})
		require.NoError(t, err)

		assert.True(t, a.Lines[0].Reserved.Equal(decimal.NewFromInt(2)))
		assert.True(t, a.Lines[0].Available().Equal(decimal.NewFromInt(5)))
	})
}

func TestSetPhysicalStock(t *testing.T) {
	a := newTestAllocation(t, 10, 0)
	applyEqualPlan(t, a, chanA, chanB)

	assert.ErrorIs(t, a.SetPhysicalStock(decimal.NewFromInt(-1)), ErrInvalidPhysicalStock)
	assert.ErrorIs(t, a.SetPhysicalStock(decimal.NewFromInt(5)), ErrPlanExceedsStock)
	assert.NoError(t, a.SetPhysicalStock(decimal.NewFromInt(20)))
}

func TestReserve(t *testing.T) {
	t.Run("reservation holds stock against the channel line", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)

		res, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
		require.NoError(t, err)
		assert.Equal(t, ReservationActive, res.Status)
		assert.True(t, a.Lines[0].Available().Equal(decimal.NewFromInt(2)))
	})

	t.Run("repeating the same order ref returns the existing hold", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)

		first, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
		require.NoError(t, err)
		second, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
		require.NoError(t, err)

		assert.Equal(t, first.OrderRef, second.OrderRef)
		assert.True(t, a.Lines[0].Reserved.Equal(decimal.NewFromInt(3)), "no double counting")
		assert.Len(t, a.Reservations, 1)
	})

	t.Run("over-reserving a line fails with insufficient stock", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA, chanB)

		_, err := a.Reserve(chanA, decimal.NewFromInt(6), "order-1")
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})

	t.Run("input validation", func(t *testing.T) {
		a := newTestAllocation(t, 10, 0)
		applyEqualPlan(t, a, chanA)

		_, err := a.Reserve(chanA, decimal.NewFromInt(1), "")
		assert.ErrorIs(t, err, ErrOrderRefRequired)

		_, err = a.Reserve(chanA, decimal.Zero, "order-1")
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = a.Reserve(chanB, decimal.NewFromInt(1), "order-1")
		assert.ErrorIs(t, err, ErrChannelNotAllocated)
	})
}

func TestRelease(t *testing.T) {
	a := newTestAllocation(t, 10, 0)
	applyEqualPlan(t, a, chanA, chanB)
	_, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
	require.NoError(t, err)

	require.NoError(t, a.Release("order-1"))
	assert.True(t, a.Lines[0].Available().Equal(decimal.NewFromInt(5)), "stock returned to the line")
	assert.Equal(t, ReservationReleased, a.Reservations[0].Status)

	// Releasing again, or an unknown ref, is a no-op
	assert.NoError(t, a.Release("order-1"))
	assert.NoError(t, a.Release("never-seen"))
	assert.True(t, a.Lines[0].Available().Equal(decimal.NewFromInt(5)))
}

func TestReserveAfterReleaseIsSettled(t *testing.T) {
	a := newTestAllocation(t, 10, 0)
	applyEqualPlan(t, a, chanA, chanB)
	_, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
	require.NoError(t, err)
	require.NoError(t, a.Release("order-1"))

	res, err := a.Reserve(chanA, decimal.NewFromInt(3), "order-1")
	require.NoError(t, err)
	assert.Equal(t, ReservationReleased, res.Status, "replayed ref does not re-hold stock")
	assert.True(t, a.Lines[0].Reserved.IsZero())
}

func TestSnapshotInvariant(t *testing.T) {
	a := newTestAllocation(t, 100, 10)
	applyEqualPlan(t, a, chanA, chanB, chanC)
	_, err := a.Reserve(chanA, decimal.NewFromInt(5), "order-1")
	require.NoError(t, err)
	_, err = a.Reserve(chanB, decimal.NewFromInt(7), "order-2")
	require.NoError(t, err)

	s := a.Snapshot()
	assert.True(t, s.TotalAllocated.Equal(decimal.NewFromInt(90)))
	assert.True(t, s.TotalReserved.Equal(decimal.NewFromInt(12)))
	assert.False(t, s.TotalAllocated.GreaterThan(s.Allocatable))
	assert.False(t, s.TotalReserved.GreaterThan(s.TotalAllocated))
	assert.True(t, s.PhysicalStock.Sub(s.Allocatable).GreaterThanOrEqual(decimal.Zero), "buffer stays out of the pool")
}
