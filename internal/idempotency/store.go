// Package idempotency answers two questions under concurrent access: has this
// deposit transaction been admitted before, and is this the user's first
// deposit. Backed by Redis when configured, an in-process map otherwise.
package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/agenciamidas/capi-gateway/internal/store"
)

// TTL is the window within which a key stays claimed. After expiry the key is
// reclaimable.
const TTL = 48 * time.Hour

const (
	depositKeyPrefix = "capi:dep:"
	ftdKeyPrefix     = "capi:ftd:"
)

// Store provides the two atomic claim primitives. Both return true exactly
// once per key within the TTL window, regardless of concurrency.
type Store interface {
	// AddDeposit claims a deposit transaction id. True means the transaction
	// was not seen before.
	AddDeposit(ctx context.Context, txID string) (bool, error)
	// ClaimFirstDeposit claims a user's first-deposit marker. True means this
	// caller is the first claimant.
	ClaimFirstDeposit(ctx context.Context, userKey string) (bool, error)
	// Name identifies the backend for logs and health reporting.
	Name() string
}

// Select picks the backend once at process start. A non-empty redisURL gets
// exactly one connection attempt; on failure the process runs on memory for
// its whole lifetime. No reconnect loop.
func Select(ctx context.Context, redisURL string, logger *slog.Logger) Store {
	if redisURL == "" {
		logger.Info("idempotency store: in-memory (no REDIS_URL)")
		return NewMemoryStore()
	}

	client, err := store.NewRedis(ctx, redisURL)
	if err != nil {
		logger.Warn("idempotency store: redis unreachable, falling back to memory", "error", err)
		return NewMemoryStore()
	}

	logger.Info("idempotency store: redis")
	return NewRedisStore(client)
}
