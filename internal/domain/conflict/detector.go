package conflict

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DetectorConfig controls when a discrepancy becomes a conflict.
// The core uses one explicit policy: a single absolute threshold on the
// max-minus-min spread across channels. Severity is derived from the
// magnitude afterwards and never feeds back into detection.
type DetectorConfig struct {
	// AbsoluteThreshold is the max-min spread above which a conflict is
	// raised. The default of zero reports any non-zero discrepancy.
	AbsoluteThreshold decimal.Decimal
}

// DefaultDetectorConfig reports any disagreement between channels
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{AbsoluteThreshold: decimal.Zero}
}

// Detector flags disagreements between channels' reported quantities
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a detector with the given config
func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// Detect compares the observations for one product and returns a pending
// conflict when the spread exceeds the threshold, or nil when the channels
// agree. Fewer than two observations can never conflict.
func (d *Detector) Detect(storeID, productID uuid.UUID, observations []Observation) (*SyncConflict, error) {
	if len(observations) < 2 {
		return nil, nil
	}

	discrepancy := maxQuantity(observations).Sub(minQuantity(observations))
	if !discrepancy.GreaterThan(d.config.AbsoluteThreshold) {
		return nil, nil
	}

	return NewSyncConflict(storeID, productID, TypeStockMismatch, observations)
}
