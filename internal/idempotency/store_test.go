package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisUnderTest(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisUnderTest(t),
	}
}

func TestAddDeposit_SecondClaimIsDuplicate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			fresh, err := store.AddDeposit(ctx, "tx-1001")
			if err != nil {
				t.Fatalf("first claim: %v", err)
			}
			if !fresh {
				t.Fatal("first claim should be new")
			}

			fresh, err = store.AddDeposit(ctx, "tx-1001")
			if err != nil {
				t.Fatalf("second claim: %v", err)
			}
			if fresh {
				t.Fatal("second claim should be a duplicate")
			}

			fresh, err = store.AddDeposit(ctx, "tx-1002")
			if err != nil {
				t.Fatalf("other tx: %v", err)
			}
			if !fresh {
				t.Fatal("distinct transaction should be admitted")
			}
		})
	}
}

func TestClaimFirstDeposit_ExactlyOneWinner(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const claimants = 32
			ctx := context.Background()

			var wg sync.WaitGroup
			wins := make(chan bool, claimants)
			for i := 0; i < claimants; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := store.ClaimFirstDeposit(ctx, "user:joao")
					if err != nil {
						t.Errorf("claim: %v", err)
						return
					}
					wins <- ok
				}()
			}
			wg.Wait()
			close(wins)

			winners := 0
			for ok := range wins {
				if ok {
					winners++
				}
			}
			if winners != 1 {
				t.Fatalf("expected exactly 1 FTD winner among %d claims, got %d", claimants, winners)
			}
		})
	}
}

func TestDepositAndFirstDepositKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if ok, _ := store.AddDeposit(ctx, "same"); !ok {
		t.Fatal("deposit claim should succeed")
	}
	if ok, _ := store.ClaimFirstDeposit(ctx, "same"); !ok {
		t.Fatal("first-deposit claim uses its own keyspace and should succeed")
	}
}

func TestMemoryStore_ExpiryReclaims(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	if ok, _ := store.AddDeposit(ctx, "tx-exp"); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := store.AddDeposit(ctx, "tx-exp"); ok {
		t.Fatal("claim within TTL should be a duplicate")
	}

	current = current.Add(TTL + time.Minute)
	if ok, _ := store.AddDeposit(ctx, "tx-exp"); !ok {
		t.Fatal("claim after TTL expiry should succeed again")
	}
}

func TestRedisStore_TTLSet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	if ok, _ := store.AddDeposit(ctx, "tx-ttl"); !ok {
		t.Fatal("claim should succeed")
	}

	ttl := client.TTL(ctx, depositKeyPrefix+"tx-ttl").Val()
	if ttl <= 0 || ttl > TTL {
		t.Fatalf("expected TTL in (0, %v], got %v", TTL, ttl)
	}

	mr.FastForward(TTL + time.Minute)
	if ok, _ := store.AddDeposit(ctx, "tx-ttl"); !ok {
		t.Fatal("claim after redis expiry should succeed again")
	}
}
