// Package shared holds the pure monetary calculations used across the
// billing engine. All amounts are rounded to 2 decimal places with
// round-half-up at each step so computed values always match persisted
// per-line amounts.
package shared

import "math"

// Round2 rounds a monetary amount to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DiscountType enumerates how a line discount value is interpreted.
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountFlat    DiscountType = "FLAT"
	DiscountPercent DiscountType = "PERCENT"
)

// NormalizeDiscountType maps loosely-typed input to a stored discount type:
// PERCENT stays PERCENT, any other positive value is a flat amount.
func NormalizeDiscountType(raw DiscountType, value float64) DiscountType {
	if raw == DiscountPercent {
		return DiscountPercent
	}
	if value > 0 {
		return DiscountFlat
	}
	return DiscountNone
}

// CalculateLineAmounts computes the discount, tax and total for a single
// line. The taxable base is clamped at zero when the discount exceeds the
// pre-discount amount.
func CalculateLineAmounts(quantity, unitPrice float64, discountType DiscountType, discountValue, taxRatePercent float64) (discountAmount, taxAmount, lineTotal float64) {
	preDiscount := quantity * unitPrice
	switch NormalizeDiscountType(discountType, discountValue) {
	case DiscountPercent:
		discountAmount = preDiscount * (discountValue / 100)
	case DiscountFlat:
		discountAmount = discountValue
	}
	taxableBase := math.Max(preDiscount-discountAmount, 0)
	taxAmount = Round2(taxableBase * (taxRatePercent / 100))
	lineTotal = Round2(taxableBase + taxAmount)
	return discountAmount, taxAmount, lineTotal
}

// LineKind discriminates how a line contributes to invoice totals.
type LineKind int

const (
	// LineRaw computes the contribution from quantity, price, discount and tax.
	LineRaw LineKind = iota
	// LinePrecomputed trusts a persisted line total as-is.
	LinePrecomputed
)

// Line is one invoice line presented to the totals calculator. Precomputed
// lines carry only LineTotal; raw lines carry the component fields.
type Line struct {
	Kind           LineKind
	LineTotal      float64
	Quantity       float64
	UnitPrice      float64
	DiscountType   DiscountType
	DiscountValue  float64
	TaxRatePercent float64
}

// PrecomputedLine wraps a persisted line total.
func PrecomputedLine(total float64) Line {
	return Line{Kind: LinePrecomputed, LineTotal: total}
}

// RawLine wraps the components of a line that still needs computing.
func RawLine(quantity, unitPrice float64, discountType DiscountType, discountValue, taxRatePercent float64) Line {
	return Line{
		Kind:           LineRaw,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		DiscountType:   discountType,
		DiscountValue:  discountValue,
		TaxRatePercent: taxRatePercent,
	}
}

// Totals aggregates invoice-level amounts.
type Totals struct {
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
}

// ComputeInvoiceTotals sums line totals, applies the invoice-level discount
// and tax rate (a percent, e.g. 8.25) and returns the aggregate amounts.
// A precomputed line total is used only when finite and positive; anything
// else falls back to the raw computation. Calling twice with identical input
// yields identical output.
func ComputeInvoiceTotals(lines []Line, invoiceTaxRatePercent, invoiceDiscountAmount float64) Totals {
	var lineSum float64
	for _, line := range lines {
		if line.Kind == LinePrecomputed {
			if !math.IsNaN(line.LineTotal) && !math.IsInf(line.LineTotal, 0) && line.LineTotal > 0 {
				lineSum += line.LineTotal
				continue
			}
		}
		_, _, total := CalculateLineAmounts(line.Quantity, line.UnitPrice, line.DiscountType, line.DiscountValue, line.TaxRatePercent)
		lineSum += total
	}

	subtotal := Round2(lineSum)
	taxableBase := math.Max(subtotal-invoiceDiscountAmount, 0)
	taxAmount := Round2(taxableBase * (invoiceTaxRatePercent / 100))
	total := Round2(taxableBase + taxAmount)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: invoiceDiscountAmount,
		TaxAmount:      taxAmount,
		TotalAmount:    total,
	}
}
