package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys that were already accepted so a
// retried ingest does not produce a second journal
type IdempotencyStore interface {
	// Claim marks a key as taken for ttl.
	// Returns true if the key was newly claimed, false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees a key so the caller may retry after a failed attempt
	Release(ctx context.Context, key string) error

	// IsClaimed checks if a key is currently held
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL after which the same key may be accepted again. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

// IdempotencyKey scopes a caller supplied key to its organization
func IdempotencyKey(orgID, key string) string {
	return "ingest:" + orgID + ":" + key
}
