// notify/guard.go
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard claims notice keys with SET NX, so concurrent or repeated sweeps
// across processes send each notice once per key lifetime.
type RedisGuard struct {
	rdb *redis.Client
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, key).Err()
}

// MemoryGuard is the single-process guard used when redis is absent.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: map[string]time.Time{}, now: time.Now}
}

func (g *MemoryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)
	// drop expired entries so long-running processes don't grow forever
	for k, exp := range g.keys {
		if !now.Before(exp) {
			delete(g.keys, k)
		}
	}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}
