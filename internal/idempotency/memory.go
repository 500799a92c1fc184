package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the fallback backend: a map of key to expiry guarded by one
// mutex, so check-then-set is a single critical section. State does not
// survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *MemoryStore) AddDeposit(_ context.Context, txID string) (bool, error) {
	return s.claim(depositKeyPrefix + txID), nil
}

func (s *MemoryStore) ClaimFirstDeposit(_ context.Context, userKey string) (bool, error) {
	return s.claim(ftdKeyPrefix + userKey), nil
}

func (s *MemoryStore) claim(key string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false
	}
	s.keys[key] = now.Add(TTL)

	// Opportunistic purge keeps the map from growing unbounded between
	// restarts; requests are infrequent enough that a full sweep is fine.
	if len(s.keys) > 10000 {
		for k, exp := range s.keys {
			if now.After(exp) {
				delete(s.keys, k)
			}
		}
	}
	return true
}

func (s *MemoryStore) Name() string { return "memory" }
