package port

import "context"

// GateResult is the outcome of a conditional decrement against the cached
// quantity projection.
type GateResult int

const (
	// GateMissing means the variant has no cached quantity; the caller
	// falls through to the authoritative store.
	GateMissing GateResult = iota
	GateInsufficient
	GateAllowed
)

// CacheRepository is the fast quantity projection in front of the
// authoritative store. It is refreshed after every committed movement and
// never consulted as a source of truth.
type CacheRepository interface {
	// GateDecrement atomically decrements the cached quantity when it
	// covers the requested amount.
	GateDecrement(ctx context.Context, productID, variantID string, quantity int) (GateResult, error)

	// RestoreStock adds a gated quantity back after the authoritative
	// transaction aborted.
	RestoreStock(ctx context.Context, productID, variantID string, quantity int) error

	// GetQuantity reads the cached quantity; ok is false on a cache miss.
	GetQuantity(ctx context.Context, productID, variantID string) (int, bool, error)

	// SetQuantity refreshes the cached quantity after a committed movement.
	SetQuantity(ctx context.Context, productID, variantID string, quantity int) error

	// SetIdempotency sets a dedup key, returns false if already present.
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
