package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/billing/invoices"
	calc "github.com/fieldserve/fieldserve/internal/billing/shared"
	"github.com/fieldserve/fieldserve/internal/shared"
)

// Ledger is the payment persistence surface. *Repository satisfies it.
type Ledger interface {
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, invoiceID, paymentID int64) (*Payment, error)
	ListForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
	Delete(ctx context.Context, invoiceID, paymentID int64) error
	SumSuccessful(ctx context.Context, invoiceID int64) (float64, error)
}

// InvoiceStore is the slice of the invoice repository the ledger needs.
type InvoiceStore interface {
	Get(ctx context.Context, companyID, id int64) (*invoices.Invoice, error)
	UpdateStatusVersioned(ctx context.Context, invoiceID, expectedVersion int64, status invoices.InvoiceStatus, amountPaid float64) (bool, error)
}

// Locker serialises the read-modify-write around an invoice's ledger.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// IdempotencyChecker deduplicates retried submissions.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder persists audit entries. Failures are logged, never returned.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const idempotencyScope = "payments:record"

// Service records and deletes payments and keeps the invoice status in sync
// with the ledger.
type Service struct {
	ledger   Ledger
	invoices InvoiceStore
	locks    Locker
	idem     IdempotencyChecker
	audit    AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the payment service. locks and idem may be nil when the
// caller runs without redis or the idempotency table (tests).
func NewService(ledger Ledger, invoiceStore InvoiceStore, locks Locker, idem IdempotencyChecker, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		invoices: invoiceStore,
		locks:    locks,
		idem:     idem,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}

// RecordPayment appends a ledger entry and recomputes the invoice status from
// the new paid-to-date sum. The critical section runs under the per-invoice
// mutex so two concurrent payments cannot both read a stale sum.
func (s *Service) RecordPayment(ctx context.Context, companyID, invoiceID, actorID int64, req RecordPaymentRequest) (*Payment, *invoices.Invoice, error) {
	if req.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: %.2f", billing.ErrInvalidAmount, req.Amount)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, err
	}

	inv, err := s.invoices.Get(ctx, companyID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status == invoices.StatusVoid {
		return nil, nil, fmt.Errorf("%w: invoice is void", billing.ErrInvalidTransition)
	}

	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, shared.InvoiceLockKey(invoiceID))
		if err != nil {
			return nil, nil, err
		}
		defer release()
	}

	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyScope); err != nil {
			return nil, nil, err
		}
	}

	receivedAt := s.now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	payment := &Payment{
		InvoiceID:            invoiceID,
		Amount:               calc.Round2(req.Amount),
		Method:               NormalizeMethod(req.Method),
		Status:               StatusSuccess,
		TransactionReference: req.TransactionReference,
		ReceivedAt:           receivedAt,
		CreatedBy:            actorID,
	}
	if err := s.ledger.Insert(ctx, payment); err != nil {
		s.rollbackIdempotency(ctx, req.IdempotencyKey)
		return nil, nil, err
	}

	inv, err = s.syncInvoiceStatus(ctx, inv)
	if err != nil {
		return nil, nil, err
	}
	if inv.AmountPaid > inv.TotalAmount {
		s.logger.Warn("invoice over-paid",
			slog.Int64("invoice_id", inv.ID),
			slog.Float64("paid", inv.AmountPaid),
			slog.Float64("total", inv.TotalAmount))
	}

	s.recordAudit(ctx, actorID, "payment.recorded", payment.ID, map[string]any{
		"invoice_id": invoiceID,
		"amount":     payment.Amount,
		"method":     payment.Method,
	})
	return payment, inv, nil
}

func (s *Service) rollbackIdempotency(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", err))
	}
}

// DeletePayment removes a ledger entry and recomputes the invoice status.
// Deleting the final payment moves a PAID invoice back to UNPAID.
func (s *Service) DeletePayment(ctx context.Context, companyID, invoiceID, paymentID, actorID int64) (*invoices.Invoice, error) {
	inv, err := s.invoices.Get(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	payment, err := s.ledger.Get(ctx, invoiceID, paymentID)
	if err != nil {
		return nil, err
	}

	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, shared.InvoiceLockKey(invoiceID))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := s.ledger.Delete(ctx, invoiceID, paymentID); err != nil {
		return nil, err
	}
	inv, err = s.syncInvoiceStatus(ctx, inv)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, "payment.deleted", paymentID, map[string]any{
		"invoice_id": invoiceID,
		"amount":     payment.Amount,
	})
	return inv, nil
}

// ListPayments returns the ledger for an invoice.
func (s *Service) ListPayments(ctx context.Context, companyID, invoiceID int64) ([]Payment, error) {
	if _, err := s.invoices.Get(ctx, companyID, invoiceID); err != nil {
		return nil, err
	}
	return s.ledger.ListForInvoice(ctx, invoiceID)
}

// syncInvoiceStatus writes the payment-derived status with an optimistic
// compare-and-set, reloading and retrying once when another writer moved the
// version. The derived status is authoritative and skips edge validation.
func (s *Service) syncInvoiceStatus(ctx context.Context, inv *invoices.Invoice) (*invoices.Invoice, error) {
	paid, err := s.ledger.SumSuccessful(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	next := invoices.StatusForPayments(paid, inv.TotalAmount)

	for attempt := 0; attempt < 2; attempt++ {
		if inv.Status == next && inv.AmountPaid == paid {
			return inv, nil
		}
		ok, err := s.invoices.UpdateStatusVersioned(ctx, inv.ID, inv.Version, next, paid)
		if err != nil {
			return nil, err
		}
		if ok {
			inv.Status = next
			inv.AmountPaid = paid
			inv.Version++
			return inv, nil
		}
		inv, err = s.invoices.Get(ctx, inv.CompanyID, inv.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, billing.ErrConflict
}
