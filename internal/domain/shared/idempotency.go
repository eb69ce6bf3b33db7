package shared

import (
	"context"
	"time"
)

// IdempotencyStore records processed keys to suppress duplicate work.
// The webhook ingestion path uses it for event deduplication; the forecast
// client uses it as a generic TTL cache guard.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for duplicate suppression
type IdempotencyConfig struct {
	// TTL is the retention window for processed keys. After this duration
	// the same key is treated as new again.
	TTL time.Duration

	// Enabled determines whether duplicate checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default configuration (72h retention)
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}
