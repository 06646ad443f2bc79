package invoices

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSource struct {
	prefix string
	seq    int64
	err    error
}

func (c *countingSource) NextInvoiceSequence(context.Context, int64) (string, int64, error) {
	if c.err != nil {
		return "", 0, c.err
	}
	c.seq++
	return c.prefix, c.seq, nil
}

func TestAllocateSequentialNumbers(t *testing.T) {
	allocator := NewNumberAllocator(&countingSource{prefix: "ACME", seq: 40}, slog.New(slog.DiscardHandler))
	allocator.now = func() time.Time {
		return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	}

	first := allocator.Allocate(context.Background(), 1)
	second := allocator.Allocate(context.Background(), 1)
	require.Equal(t, "ACME-2025-0041", first)
	require.Equal(t, "ACME-2025-0042", second)
	require.NotEqual(t, first, second)
}

func TestAllocateFallsBackWhenCounterFails(t *testing.T) {
	allocator := NewNumberAllocator(&countingSource{err: errors.New("down")}, slog.New(slog.DiscardHandler))
	allocator.now = func() time.Time {
		return time.Date(2025, time.June, 1, 0, 0, 0, 123e6, time.UTC)
	}

	number := allocator.Allocate(context.Background(), 1)
	require.Regexp(t, `^INV-2025-\d{4}$`, number)
}

func TestAllocateWithoutSourceUsesFallback(t *testing.T) {
	allocator := NewNumberAllocator(nil, slog.New(slog.DiscardHandler))
	number := allocator.Allocate(context.Background(), 1)
	require.Regexp(t, `^INV-2\d{3}-\d{4}$`, number)
}
