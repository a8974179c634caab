package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
)

// Guard admits one in-flight AI request or posting per draft. Locks expire
// after their TTL so a crashed holder cannot block a draft forever.
type Guard interface {
	Acquire(ctx context.Context, id uuid.UUID) (token string, err error)
	Release(ctx context.Context, id uuid.UUID, token string) error
	// Clear drops the lock regardless of holder.
	Clear(ctx context.Context, id uuid.UUID) error
}

const guardKeyPrefix = "ledgerdesk:inflight:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard implements Guard with SET NX PX.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard constructs a guard whose locks live for ttl.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, id uuid.UUID) (string, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, guardKeyPrefix+id.String(), token, g.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("workspace: acquire guard: %w", err)
	}
	if !ok {
		return "", interpreter.ErrBusy
	}
	return token, nil
}

func (g *RedisGuard) Release(ctx context.Context, id uuid.UUID, token string) error {
	err := releaseScript.Run(ctx, g.client, []string{guardKeyPrefix + id.String()}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("workspace: release guard: %w", err)
	}
	return nil
}

func (g *RedisGuard) Clear(ctx context.Context, id uuid.UUID) error {
	return g.client.Del(ctx, guardKeyPrefix+id.String()).Err()
}

// MemoryGuard implements Guard in process.
type MemoryGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	locks map[uuid.UUID]memoryLock
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryGuard constructs an in-process guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, locks: map[uuid.UUID]memoryLock{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, id uuid.UUID) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if l, ok := g.locks[id]; ok && now.Before(l.expires) {
		return "", interpreter.ErrBusy
	}
	token := uuid.NewString()
	g.locks[id] = memoryLock{token: token, expires: now.Add(g.ttl)}
	return token, nil
}

func (g *MemoryGuard) Release(_ context.Context, id uuid.UUID, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.locks[id]; ok && l.token == token {
		delete(g.locks, id)
	}
	return nil
}

func (g *MemoryGuard) Clear(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, id)
	return nil
}
