package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvoiceLockKey builds redis keys for invoice critical sections.
func InvoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("billing:invoice:%d:lock", invoiceID)
}

// ErrLockNotAcquired indicates the mutex could not be taken before the
// context deadline.
var ErrLockNotAcquired = errors.New("shared: lock not acquired")

// releaseScript deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Mutex is a redis-backed mutex for short critical sections such as the
// payment read-modify-write sequence.
type Mutex struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewMutex constructs a Mutex. ttl bounds how long a crashed holder can block
// other callers.
func NewMutex(client *redis.Client, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Mutex{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Acquire takes the named lock, polling until the context is cancelled.
// The returned release function is safe to call once.
func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	if m == nil || m.client == nil {
		return nil, errors.New("shared: mutex not initialised")
	}
	token := uuid.NewString()
	for {
		ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock: %w", err)
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = m.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err()
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockNotAcquired
		case <-time.After(m.retry):
		}
	}
}
