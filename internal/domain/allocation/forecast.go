package allocation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrForecastDisabled is returned by a forecaster whose integration is off;
// callers fall back to sales velocity
var ErrForecastDisabled = errors.New("allocation: demand forecasting is disabled")

// SalesPoint is one day of a product's historical sales
type SalesPoint struct {
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ForecastPoint is one predicted day of demand
type ForecastPoint struct {
	Date            string
	PredictedDemand decimal.Decimal
	LowerBound      decimal.Decimal
	UpperBound      decimal.Decimal
}

// DemandForecast is the demand prediction for one product over a horizon
type DemandForecast struct {
	ProductID       uuid.UUID
	Points          []ForecastPoint
	ConfidenceLevel string
}

// AverageDailyDemand returns the mean predicted demand across the horizon,
// the figure the demand_based strategy weighs channels by
func (f *DemandForecast) AverageDailyDemand() decimal.Decimal {
	if len(f.Points) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, p := range f.Points {
		total = total.Add(p.PredictedDemand)
	}
	return total.Div(decimal.NewFromInt(int64(len(f.Points))))
}

// DemandForecaster supplies demand predictions for the demand_based
// strategy. Implementations return ErrForecastDisabled when the
// integration is off.
type DemandForecaster interface {
	GetForecast(ctx context.Context, productID uuid.UUID, history []SalesPoint) (*DemandForecast, error)
}
