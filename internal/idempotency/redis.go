package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore claims keys with SET NX + TTL, which is linearizable per key on
// a single Redis instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) AddDeposit(ctx context.Context, txID string) (bool, error) {
	return s.setNX(ctx, depositKeyPrefix+txID)
}

func (s *RedisStore) ClaimFirstDeposit(ctx context.Context, userKey string) (bool, error) {
	return s.setNX(ctx, ftdKeyPrefix+userKey)
}

func (s *RedisStore) setNX(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, time.Now().Unix(), TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Close() error { return s.client.Close() }
