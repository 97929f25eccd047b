package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed attempt can hold an intent. It
// must not exceed the queue visibility timeout, or a redelivery would find
// the intent still locked.
const DefaultLockTTL = 2 * time.Minute

const defaultKeyPrefix = "settling:"

// ErrInFlight reports that another attempt currently holds the intent.
var ErrInFlight = errors.New("payout already in flight")

// Locker keeps two attempts from executing the same intent at once. It does
// not remember settled intents; the ledger does.
type Locker interface {
	// Acquire returns true if the caller now holds id.
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLocker holds intents as expiring Redis keys shared by every settler.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	prefix string
}

// NewRedisLocker constructs a RedisLocker. A zero ttl uses DefaultLockTTL.
func NewRedisLocker(client redisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: defaultKeyPrefix}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+id, time.Now().UTC().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", id, err)
	}
	return ok, nil
}

// Release implements Locker.
func (l *RedisLocker) Release(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, l.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", id, err)
	}
	return nil
}

// MemoryLocker holds intents in process memory.
type MemoryLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	held map[string]time.Time
}

// NewMemoryLocker constructs a MemoryLocker. A zero ttl uses DefaultLockTTL.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &MemoryLocker{ttl: ttl, now: time.Now, held: make(map[string]time.Time)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, ok := l.held[id]; ok && now.Before(until) {
		return false, nil
	}
	l.held[id] = now.Add(l.ttl)
	return true, nil
}

// Release implements Locker.
func (l *MemoryLocker) Release(_ context.Context, id string) error {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
	return nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
