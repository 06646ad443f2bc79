package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestMutexAcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	mu := NewMutex(client, time.Second)

	release, err := mu.Acquire(context.Background(), InvoiceLockKey(42))
	require.NoError(t, err)

	// Second acquisition on the same key must block until release.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = mu.Acquire(ctx, InvoiceLockKey(42))
	require.ErrorIs(t, err, ErrLockNotAcquired)

	release()

	release2, err := mu.Acquire(context.Background(), InvoiceLockKey(42))
	require.NoError(t, err)
	release2()
}

func TestMutexIndependentKeys(t *testing.T) {
	client := newTestRedis(t)
	mu := NewMutex(client, time.Second)

	release1, err := mu.Acquire(context.Background(), InvoiceLockKey(1))
	require.NoError(t, err)
	defer release1()

	release2, err := mu.Acquire(context.Background(), InvoiceLockKey(2))
	require.NoError(t, err)
	defer release2()
}

func TestInvoiceLockKey(t *testing.T) {
	require.Equal(t, "billing:invoice:7:lock", InvoiceLockKey(7))
}
