package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/allocation"
	"github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/shared"
)

// AllocationService coordinates allocation planning, reservations and
// releases. Every mutation goes through the repository's compare-and-swap;
// a version conflict is reloaded and retried once before surfacing.
type AllocationService struct {
	allocations allocation.Repository
	channels    channel.Repository
	forecaster  allocation.DemandForecaster
	events      shared.EventPublisher
	logger      *zap.Logger
}

// NewAllocationService creates a new AllocationService. The forecaster is
// optional; without it demand_based degrades to sales-velocity weighting.
func NewAllocationService(
	allocations allocation.Repository,
	channels channel.Repository,
	logger *zap.Logger,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		allocations: allocations,
		channels:    channels,
		logger:      logger,
	}
}

// SetEventPublisher sets the publisher for domain events
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.events = publisher
}

// SetForecaster sets the demand forecaster used by demand_based
func (s *AllocationService) SetForecaster(forecaster allocation.DemandForecaster) {
	s.forecaster = forecaster
}

// Rebalance computes and applies a fresh allocation plan for the product.
// A product without an allocation record is created on the fly when the
// request carries a physical stock figure.
func (s *AllocationService) Rebalance(ctx context.Context, storeID, productID uuid.UUID, req *RebalanceRequest) (*AllocationResponse, error) {
	strategy := allocation.Strategy(req.Strategy)

	inputs, err := s.buildChannelInputs(ctx, storeID, productID, strategy, req.Channels)
	if err != nil {
		return nil, err
	}

	a, err := s.loadOrCreate(ctx, storeID, productID, req)
	if err != nil {
		return nil, err
	}

	plan := func(a *allocation.InventoryAllocation) error {
		if req.PhysicalStock != nil {
			if err := a.SetPhysicalStock(*req.PhysicalStock); err != nil {
				return err
			}
		}
		if req.BufferPercent != nil {
			a.BufferPercent = *req.BufferPercent
		}
		p, err := allocation.ComputePlan(strategy, a.Allocatable(), inputs)
		if err != nil {
			return err
		}
		return a.ApplyPlan(p)
	}

	if err := plan(a); err != nil {
		return nil, err
	}
	a, err = s.saveWithRetry(ctx, a, storeID, productID, plan)
	if err != nil {
		return nil, err
	}

	s.logger.Info("allocation rebalanced",
		zap.String("product_id", productID.String()),
		zap.String("strategy", req.Strategy),
		zap.String("allocatable", a.Allocatable().String()),
	)
	return toAllocationResponse(a), nil
}

// Reserve places an idempotent hold against a channel's allocation
func (s *AllocationService) Reserve(ctx context.Context, storeID uuid.UUID, req *ReserveRequest) (*ReservationResponse, error) {
	var res *allocation.Reservation
	mutate := func(a *allocation.InventoryAllocation) error {
		r, err := a.Reserve(req.ChannelID, req.Quantity, req.OrderRef)
		if err != nil {
			return err
		}
		res = r
		return nil
	}

	a, err := s.allocations.FindByProduct(ctx, storeID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := mutate(a); err != nil {
		return nil, err
	}
	if _, err := s.saveWithRetry(ctx, a, storeID, req.ProductID, mutate); err != nil {
		return nil, err
	}
	return toReservationResponse(req.ProductID, res), nil
}

// Release returns a reservation's quantity to the channel. Unknown or
// already-released references are a no-op.
func (s *AllocationService) Release(ctx context.Context, storeID, productID uuid.UUID, orderRef string) error {
	mutate := func(a *allocation.InventoryAllocation) error {
		return a.Release(orderRef)
	}

	a, err := s.allocations.FindByProduct(ctx, storeID, productID)
	if err != nil {
		return err
	}
	if err := mutate(a); err != nil {
		return err
	}
	_, err = s.saveWithRetry(ctx, a, storeID, productID, mutate)
	return err
}

// GetSummary returns the read-only allocation snapshot for a product
func (s *AllocationService) GetSummary(ctx context.Context, storeID, productID uuid.UUID) (*AllocationResponse, error) {
	a, err := s.allocations.FindByProduct(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	return toAllocationResponse(a), nil
}

// loadOrCreate fetches the product's allocation, creating an empty one when
// the request supplies the initial physical stock
func (s *AllocationService) loadOrCreate(ctx context.Context, storeID, productID uuid.UUID, req *RebalanceRequest) (*allocation.InventoryAllocation, error) {
	a, err := s.allocations.FindByProduct(ctx, storeID, productID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, allocation.ErrAllocationNotFound) || req.PhysicalStock == nil {
		return nil, err
	}

	buffer := decimal.Zero
	if req.BufferPercent != nil {
		buffer = *req.BufferPercent
	}
	a, err = allocation.NewInventoryAllocation(storeID, productID, *req.PhysicalStock, buffer)
	if err != nil {
		return nil, err
	}
	if err := s.allocations.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// saveWithRetry persists the mutated aggregate. On a version conflict the
// aggregate is reloaded, the mutation replayed and the save retried once.
func (s *AllocationService) saveWithRetry(
	ctx context.Context,
	a *allocation.InventoryAllocation,
	storeID, productID uuid.UUID,
	mutate func(*allocation.InventoryAllocation) error,
) (*allocation.InventoryAllocation, error) {
	err := s.allocations.SaveWithVersion(ctx, a, a.Version)
	if err == nil {
		s.publishEvents(ctx, a)
		return a, nil
	}
	if !errors.Is(err, shared.ErrConcurrencyConflict) {
		return nil, err
	}

	s.logger.Debug("allocation version conflict, retrying",
		zap.String("product_id", productID.String()),
	)
	fresh, err := s.allocations.FindByProduct(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if err := mutate(fresh); err != nil {
		return nil, err
	}
	if err := s.allocations.SaveWithVersion(ctx, fresh, fresh.Version); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, fresh)
	return fresh, nil
}

func (s *AllocationService) publishEvents(ctx context.Context, a *allocation.InventoryAllocation) {
	if s.events == nil {
		return
	}
	events := a.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.events.Publish(ctx, events...)
	a.ClearDomainEvents()
}

// buildChannelInputs resolves the strategy inputs. Signals default to the
// store's active channels; each referenced channel must exist and be active.
func (s *AllocationService) buildChannelInputs(
	ctx context.Context,
	storeID, productID uuid.UUID,
	strategy allocation.Strategy,
	signals []ChannelSignal,
) ([]allocation.ChannelInput, error) {
	if len(signals) == 0 {
		active, err := s.channels.FindActiveByStore(ctx, storeID)
		if err != nil {
			return nil, err
		}
		inputs := make([]allocation.ChannelInput, 0, len(active))
		for _, ch := range active {
			inputs = append(inputs, allocation.ChannelInput{
				ChannelID: ch.ID,
				Priority:  ch.Priority,
			})
		}
		return inputs, nil
	}

	inputs := make([]allocation.ChannelInput, 0, len(signals))
	for _, sig := range signals {
		ch, err := s.channels.FindByID(ctx, sig.ChannelID)
		if err != nil {
			return nil, err
		}
		if !ch.IsActive {
			return nil, fmt.Errorf("%w: channel %s is inactive", shared.ErrInvalidInput, ch.ID)
		}
		inputs = append(inputs, allocation.ChannelInput{
			ChannelID:     ch.ID,
			Priority:      ch.Priority,
			SalesVelocity: effectiveVelocity(sig),
			Cap:           sig.Cap,
			Weight:        sig.Weight,
		})
	}

	if strategy == allocation.StrategyDemandBased {
		s.fillForecastDemand(ctx, productID, signals, inputs)
	}
	return inputs, nil
}

// fillForecastDemand asks the forecaster for the product's demand and splits
// it across channels by sales-velocity share. Without a usable forecast the
// velocity itself carries the weight, so planning still converges.
func (s *AllocationService) fillForecastDemand(
	ctx context.Context,
	productID uuid.UUID,
	signals []ChannelSignal,
	inputs []allocation.ChannelInput,
) {
	fallback := func() {
		for i := range inputs {
			inputs[i].ForecastDemand = inputs[i].SalesVelocity
		}
	}

	if s.forecaster == nil {
		fallback()
		return
	}

	history := mergeSalesHistory(signals)
	fc, err := s.forecaster.GetForecast(ctx, productID, history)
	if err != nil {
		if !errors.Is(err, allocation.ErrForecastDisabled) {
			s.logger.Warn("forecast unavailable, falling back to sales velocity",
				zap.String("product_id", productID.String()),
				zap.Error(err),
			)
		}
		fallback()
		return
	}

	demand := fc.AverageDailyDemand()
	velocitySum := decimal.Zero
	for _, in := range inputs {
		if in.SalesVelocity.IsPositive() {
			velocitySum = velocitySum.Add(in.SalesVelocity)
		}
	}
	for i := range inputs {
		if velocitySum.IsPositive() {
			inputs[i].ForecastDemand = demand.Mul(inputs[i].SalesVelocity).Div(velocitySum)
		} else {
			inputs[i].ForecastDemand = demand
		}
	}
}

// effectiveVelocity prefers the explicit velocity and otherwise derives it
// as the mean of the supplied sales history
func effectiveVelocity(sig ChannelSignal) decimal.Decimal {
	if sig.SalesVelocity.IsPositive() || len(sig.SalesHistory) == 0 {
		return sig.SalesVelocity
	}
	total := decimal.Zero
	for _, p := range sig.SalesHistory {
		total = total.Add(p.Quantity)
	}
	return total.Div(decimal.NewFromInt(int64(len(sig.SalesHistory))))
}

// mergeSalesHistory sums per-channel daily sales into one product series
func mergeSalesHistory(signals []ChannelSignal) []allocation.SalesPoint {
	byDate := make(map[string]decimal.Decimal)
	for _, sig := range signals {
		for _, p := range sig.SalesHistory {
			byDate[p.Date] = byDate[p.Date].Add(p.Quantity)
		}
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	merged := make([]allocation.SalesPoint, 0, len(dates))
	for _, date := range dates {
		merged = append(merged, allocation.SalesPoint{Date: date, Quantity: byDate[date]})
	}
	return merged
}
