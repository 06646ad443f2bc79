// Package pricing implements the closed set of pricing models used by the
// quote and invoicing workflow. Time & materials prices from line items;
// the remaining models are shortcuts that bypass item-level computation.
package pricing

import "fmt"

// Model tags how a quote or invoice subtotal is derived.
type Model string

const (
	ModelTimeMaterials Model = "TIME_MATERIALS"
	ModelFlatRate      Model = "FLAT_RATE"
	ModelUnit          Model = "UNIT"
	ModelPercentage    Model = "PERCENTAGE"
	ModelRecurring     Model = "RECURRING"
	ModelMilestone     Model = "MILESTONE"
)

// Milestone is one entry in a milestone payment schedule. Amount and Percent
// may both be set; percent entries are resolved against the base amount.
type Milestone struct {
	Name    string
	Amount  float64
	Percent float64
}

// Context carries the inputs a pricing model may read. Callers fill only the
// fields their model uses.
type Context struct {
	// ItemsSubtotal is the summed line-item total, labor included.
	ItemsSubtotal float64
	// MaterialsSubtotal is the non-labor portion, added on top of unit pricing.
	MaterialsSubtotal float64

	FlatRateAmount float64

	UnitCount float64
	UnitPrice float64

	Percent           float64
	PercentBaseAmount float64

	RecurringRate float64

	MilestoneBaseAmount float64
	Milestones          []Milestone
}

// ParseModel validates a stored model tag. An empty tag is time & materials.
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case "", ModelTimeMaterials:
		return ModelTimeMaterials, nil
	case ModelFlatRate, ModelUnit, ModelPercentage, ModelRecurring, ModelMilestone:
		return Model(s), nil
	}
	return "", fmt.Errorf("pricing: unknown model %q", s)
}

// ComputeSubtotal returns the pre-discount, pre-tax subtotal for the model.
func (m Model) ComputeSubtotal(ctx Context) float64 {
	switch m {
	case ModelFlatRate:
		return ctx.FlatRateAmount
	case ModelUnit:
		return ctx.UnitCount*ctx.UnitPrice + ctx.MaterialsSubtotal
	case ModelPercentage:
		return (ctx.Percent / 100) * ctx.PercentBaseAmount
	case ModelRecurring:
		// Per-interval amount; the schedule itself lives with the caller.
		return ctx.RecurringRate
	case ModelMilestone:
		var fixed, pct float64
		for _, ms := range ctx.Milestones {
			fixed += ms.Amount
			pct += ms.Percent
		}
		return fixed + (pct/100)*ctx.MilestoneBaseAmount
	default:
		return ctx.ItemsSubtotal
	}
}
