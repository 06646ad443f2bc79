package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// SequenceSource hands out durable, monotonically increasing invoice
// sequence values per company.
type SequenceSource interface {
	NextInvoiceSequence(ctx context.Context, companyID int64) (prefix string, seq int64, err error)
}

// NumberAllocator produces human-readable invoice numbers such as
// INV-2025-0042. When the counter is unreachable it degrades to a
// time-and-randomness fallback that stays unique enough for display while the
// database UNIQUE constraint remains the real guard.
type NumberAllocator struct {
	source SequenceSource
	logger *slog.Logger
	now    func() time.Time
}

// NewNumberAllocator constructs an allocator.
func NewNumberAllocator(source SequenceSource, logger *slog.Logger) *NumberAllocator {
	return &NumberAllocator{source: source, logger: logger, now: time.Now}
}

// Allocate returns the next invoice number for the company.
func (a *NumberAllocator) Allocate(ctx context.Context, companyID int64) string {
	now := a.now()
	if a.source != nil {
		prefix, seq, err := a.source.NextInvoiceSequence(ctx, companyID)
		if err == nil {
			return fmt.Sprintf("%s-%d-%04d", prefix, now.Year(), seq)
		}
		if a.logger != nil {
			a.logger.Warn("invoice number counter unavailable, using fallback",
				slog.Int64("company_id", companyID),
				slog.Any("error", err))
		}
	}
	// Two sub-second digits plus two random digits keep the fallback at a
	// fixed four digits.
	ms := now.UnixMilli() % 100
	return fmt.Sprintf("INV-%d-%02d%d", now.Year(), ms, 10+rand.Intn(90))
}
