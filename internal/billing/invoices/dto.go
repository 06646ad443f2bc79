package invoices

import "time"

// ItemInput is one line supplied by a caller or synced from a job.
type ItemInput struct {
	SourceItemID   *int64  `json:"source_item_id"`
	Description    string  `json:"description" validate:"required,max=500"`
	Quantity       float64 `json:"quantity" validate:"gte=0"`
	UnitPrice      float64 `json:"unit_price"`
	DiscountType   string  `json:"discount_type" validate:"omitempty,oneof=NONE FLAT PERCENT"`
	DiscountValue  float64 `json:"discount_value" validate:"gte=0"`
	TaxRatePercent float64 `json:"tax_rate_percent" validate:"gte=0,lte=100"`
	// LineTotal, when positive, is trusted as a precomputed amount.
	LineTotal float64 `json:"line_total"`
}

// CreateInvoiceRequest creates a standard invoice.
type CreateInvoiceRequest struct {
	CustomerID     int64       `json:"customer_id" validate:"required,gt=0"`
	JobID          *int64      `json:"job_id"`
	IssueDate      *time.Time  `json:"issue_date"`
	DueDays        *int        `json:"due_days" validate:"omitempty,gte=0,lte=365"`
	DiscountAmount float64     `json:"discount_amount" validate:"gte=0"`
	TaxRatePercent *float64    `json:"tax_rate_percent" validate:"omitempty,gte=0,lte=100"`
	Notes          string      `json:"notes" validate:"max=2000"`
	Items          []ItemInput `json:"items" validate:"dive"`
}

// UpdateInvoiceRequest updates mutable invoice fields. Totals are recomputed
// when the discount or tax rate changes.
type UpdateInvoiceRequest struct {
	DueDate        *time.Time `json:"due_date"`
	DiscountAmount *float64   `json:"discount_amount" validate:"omitempty,gte=0"`
	TaxRatePercent *float64   `json:"tax_rate_percent" validate:"omitempty,gte=0,lte=100"`
	Notes          *string    `json:"notes" validate:"omitempty,max=2000"`
}

// SyncItemsRequest replaces the invoice's items with the given source lines.
type SyncItemsRequest struct {
	Items []ItemInput `json:"items" validate:"dive"`
}

// MarkStatusRequest drives an explicit status transition.
type MarkStatusRequest struct {
	Status InvoiceStatus `json:"status" validate:"required"`
}

// ProgressBasis selects how a progress invoice amount is derived.
type ProgressBasis string

const (
	ProgressByPercent ProgressBasis = "PERCENT"
	ProgressByAmount  ProgressBasis = "AMOUNT"
)

// CreateProgressRequest bills a portion of a parent invoice. ParentInvoiceID
// may be omitted when JobID is set; the earliest invoice on the job is used.
type CreateProgressRequest struct {
	ParentInvoiceID *int64        `json:"parent_invoice_id"`
	JobID           *int64        `json:"job_id"`
	Basis           ProgressBasis `json:"basis" validate:"required,oneof=PERCENT AMOUNT"`
	Percent         float64       `json:"percent" validate:"gte=0,lte=100"`
	Amount          float64       `json:"amount" validate:"gte=0"`
	// DepositAmount is subtracted from the computed progress amount.
	DepositAmount float64 `json:"deposit_amount" validate:"gte=0"`
	// ComputedBalance is the caller-supplied remainder after this invoice,
	// persisted on the invoice and on the audit trail.
	ComputedBalance float64 `json:"computed_balance" validate:"gte=0"`
	DueDays         *int    `json:"due_days" validate:"omitempty,gte=0,lte=365"`
	Notes           string  `json:"notes" validate:"max=2000"`
}

// PricingInput selects a pricing model for a completed job. Fields are read
// per model; unset models fall back to time & materials.
type PricingInput struct {
	Model             string  `json:"model" validate:"omitempty,oneof=TIME_MATERIALS FLAT_RATE UNIT PERCENTAGE RECURRING MILESTONE"`
	FlatRateAmount    float64 `json:"flat_rate_amount" validate:"gte=0"`
	UnitCount         float64 `json:"unit_count" validate:"gte=0"`
	UnitPrice         float64 `json:"unit_price" validate:"gte=0"`
	MaterialsSubtotal float64 `json:"materials_subtotal" validate:"gte=0"`
	Percent           float64 `json:"percent" validate:"gte=0,lte=100"`
	PercentBaseAmount float64 `json:"percent_base_amount" validate:"gte=0"`
	RecurringRate     float64 `json:"recurring_rate" validate:"gte=0"`
}

// JobCompletion describes a finished job for idempotent invoice creation.
type JobCompletion struct {
	JobID      int64         `json:"job_id" validate:"required,gt=0"`
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	Items      []ItemInput   `json:"items" validate:"dive"`
	Pricing    *PricingInput `json:"pricing"`
	Notes      string        `json:"notes" validate:"max=2000"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status     InvoiceStatus
	CustomerID int64
	JobID      int64
	IssuedFrom *time.Time
	IssuedTo   *time.Time
	Page       int
	PerPage    int
}
