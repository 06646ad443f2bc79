// Package settings stores per-company invoicing configuration, including the
// durable invoice-number counter.
package settings

import (
	"errors"
	"time"
)

// ErrNotFound indicates the company has no settings row.
var ErrNotFound = errors.New("settings: not found")

// InvoiceConfig is the invoicing configuration for one company.
type InvoiceConfig struct {
	CompanyID int64
	// TermsCode is a symbolic terms identifier (NET_30, ...) or free text.
	TermsCode string
	// DueDays overrides TermsCode when set.
	DueDays *int
	// TaxRatePercent is the default invoice-level tax rate, e.g. 8.25.
	TaxRatePercent float64
	// InvoicePrefix prefixes allocated invoice numbers; defaults to INV.
	InvoicePrefix string
	// NextInvoiceNumber is the next sequence value the counter will hand out.
	NextInvoiceNumber int64
	UpdatedAt         time.Time
}
