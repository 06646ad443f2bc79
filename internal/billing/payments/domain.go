// Package payments keeps the append-style payment ledger and drives the
// payment-derived invoice status.
package payments

import "time"

// PaymentStatus marks a ledger entry's settlement state. Only SUCCESS rows
// count toward the paid-to-date sum.
type PaymentStatus string

const (
	StatusSuccess  PaymentStatus = "SUCCESS"
	StatusRefunded PaymentStatus = "REFUNDED"
)

// Known payment methods. Free-text methods are stored as OTHER.
const (
	MethodCash  = "CASH"
	MethodCheck = "CHECK"
	MethodCard  = "CARD"
	MethodACH   = "ACH"
	MethodOther = "OTHER"
)

// NormalizeMethod maps input to a known method tag.
func NormalizeMethod(method string) string {
	switch method {
	case MethodCash, MethodCheck, MethodCard, MethodACH:
		return method
	default:
		return MethodOther
	}
}

// Payment is one ledger entry against an invoice.
type Payment struct {
	ID        int64
	InvoiceID int64
	Amount    float64
	Method    string
	Status    PaymentStatus
	// TransactionReference carries the processor or check reference, if any.
	TransactionReference string
	ReceivedAt           time.Time
	CreatedBy            int64
	CreatedAt            time.Time
}

// RecordPaymentRequest records a payment against an invoice.
type RecordPaymentRequest struct {
	Amount               float64    `json:"amount"`
	Method               string     `json:"method" validate:"max=40"`
	TransactionReference string     `json:"transaction_reference" validate:"max=200"`
	ReceivedAt           *time.Time `json:"received_at"`
	// IdempotencyKey deduplicates retried submissions when present.
	IdempotencyKey string `json:"idempotency_key" validate:"max=200"`
}
