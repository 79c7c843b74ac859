package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	stockKeyPrefix    = "stock:"
	dedupKeyPrefix    = "dedup:"
	idempotencyKeyTTL = 24 * time.Hour
)

// gateDecrementScript conditionally decrements the cached quantity.
// Returns -1 when the variant has no cached value (caller falls through to
// the authoritative store), 0 when the cached quantity is insufficient and
// 1 when the decrement was applied.
var gateDecrementScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// RedisAdapter holds the per-variant quantity projection and the request
// dedup keys. It is refreshed after each committed movement and is never
// the source of truth.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockKey(productID, variantID string) string {
	return stockKeyPrefix + productID + ":" + variantID
}

func (r *RedisAdapter) GateDecrement(ctx context.Context, productID, variantID string, quantity int) (port.GateResult, error) {
	result, err := gateDecrementScript.Run(ctx, r.client, []string{stockKey(productID, variantID)}, quantity).Int()
	if err != nil {
		return port.GateMissing, fmt.Errorf("gate decrement: %w", err)
	}

	switch result {
	case 1:
		return port.GateAllowed, nil
	case 0:
		return port.GateInsufficient, nil
	default:
		return port.GateMissing, nil
	}
}

func (r *RedisAdapter) RestoreStock(ctx context.Context, productID, variantID string, quantity int) error {
	return r.client.IncrBy(ctx, stockKey(productID, variantID), int64(quantity)).Err()
}

func (r *RedisAdapter) GetQuantity(ctx context.Context, productID, variantID string) (int, bool, error) {
	quantity, err := r.client.Get(ctx, stockKey(productID, variantID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return quantity, true, nil
}

func (r *RedisAdapter) SetQuantity(ctx context.Context, productID, variantID string, quantity int) error {
	return r.client.Set(ctx, stockKey(productID, variantID), quantity, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
