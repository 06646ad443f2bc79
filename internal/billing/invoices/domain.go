// Package invoices implements the invoice lifecycle: creation from completed
// jobs, item synchronisation, progress billing, status transitions and CSV
// export. Monetary math lives in billing/shared; this package owns
// persistence and orchestration.
package invoices

import (
	"time"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	StatusUnpaid        InvoiceStatus = "UNPAID"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusVoid          InvoiceStatus = "VOID"
)

// allowedTransitions is the explicit edge set for caller-driven status
// changes. Payment-driven recomputation does not consult it.
var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	StatusUnpaid:        {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusVoid},
	StatusPartiallyPaid: {StatusPaid, StatusVoid},
	StatusOverdue:       {StatusPaid, StatusVoid},
	StatusPaid:          {StatusVoid},
	StatusVoid:          {},
}

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the edge s -> target is allowed.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// StatusForPayments derives the status implied by the paid-to-date sum. It is
// authoritative after every ledger change and intentionally ignores the edge
// set: deleting the final payment moves a PAID invoice straight back to
// UNPAID.
func StatusForPayments(paidToDate, totalAmount float64) InvoiceStatus {
	switch {
	case paidToDate >= totalAmount && totalAmount > 0:
		return StatusPaid
	case paidToDate <= 0:
		return StatusUnpaid
	default:
		return StatusPartiallyPaid
	}
}

// InvoiceKind distinguishes full invoices from progress (partial) billing.
type InvoiceKind string

const (
	KindStandard InvoiceKind = "STANDARD"
	KindProgress InvoiceKind = "PROGRESS"
)

// Invoice is the aggregate root for billing.
type Invoice struct {
	ID         int64
	CompanyID  int64
	CustomerID int64
	// JobID links the invoice to the job it bills, when any.
	JobID *int64
	// ParentInvoiceID links a progress invoice to the invoice it draws down.
	ParentInvoiceID *int64
	Kind            InvoiceKind
	Number          string
	Status          InvoiceStatus

	IssueDate time.Time
	DueDate   time.Time

	// Subtotal is the sum of line totals before the invoice-level discount.
	Subtotal       float64
	DiscountAmount float64
	// TaxRatePercent is the invoice-level rate applied to the discounted base.
	TaxRatePercent float64
	TaxAmount      float64
	TotalAmount    float64
	AmountPaid     float64

	Notes string

	// Progress billing fields, populated only on KindProgress invoices.
	// ProgressAmount is the amount before the deposit deduction and
	// ComputedBalance is the caller-reported remainder after this invoice.
	ProgressBasis   ProgressBasis
	ProgressPercent float64
	ProgressAmount  float64
	DepositAmount   float64
	ComputedBalance float64

	// Version increments on every status write and backs the optimistic
	// compare-and-set in UpdateStatusVersioned.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceDue is the outstanding amount on the invoice.
func (inv *Invoice) BalanceDue() float64 {
	return inv.TotalAmount - inv.AmountPaid
}

// IsPastDue reports whether the invoice should be flipped to OVERDUE at the
// given instant. Only UNPAID invoices qualify: the edge set has no
// PARTIALLY_PAID -> OVERDUE transition, so a partially paid invoice keeps its
// status until the ledger changes it.
func (inv *Invoice) IsPastDue(now time.Time) bool {
	if inv.Status != StatusUnpaid {
		return false
	}
	return inv.DueDate.Before(now)
}

// InvoiceItem is a single invoice line.
type InvoiceItem struct {
	ID        int64
	InvoiceID int64
	// SourceItemID points at the job or quote item this line was synced from.
	SourceItemID *int64
	Description  string
	Quantity     float64
	UnitPrice    float64
	// DiscountType is NONE, FLAT or PERCENT; DiscountValue is interpreted
	// accordingly.
	DiscountType   string
	DiscountValue  float64
	TaxRatePercent float64

	DiscountAmount float64
	TaxAmount      float64
	LineTotal      float64

	Position int
}
