package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/billing/pricing"
	calc "github.com/fieldserve/fieldserve/internal/billing/shared"
	"github.com/fieldserve/fieldserve/internal/billing/terms"
	"github.com/fieldserve/fieldserve/internal/notify"
	"github.com/fieldserve/fieldserve/internal/settings"
	"github.com/fieldserve/fieldserve/internal/shared"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests substitute an in-memory implementation.
type Store interface {
	Create(ctx context.Context, inv *Invoice, items []InvoiceItem) error
	Get(ctx context.Context, companyID, id int64) (*Invoice, error)
	Items(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error)
	Update(ctx context.Context, inv *Invoice) error
	ReplaceItems(ctx context.Context, inv *Invoice, items []InvoiceItem) error
	PaidToDate(ctx context.Context, invoiceID int64) (float64, error)
	PaymentCount(ctx context.Context, invoiceID int64) (int, error)
	UpdateStatusVersioned(ctx context.Context, invoiceID, expectedVersion int64, status InvoiceStatus, amountPaid float64) (bool, error)
	Delete(ctx context.Context, companyID, id int64) error
	FindEarliestJobInvoice(ctx context.Context, companyID, jobID int64) (*Invoice, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)
}

// SettingsSource reads per-company invoicing configuration.
type SettingsSource interface {
	GetInvoiceConfig(ctx context.Context, companyID int64) (*settings.InvoiceConfig, error)
}

// AuditRecorder persists audit entries. Failures are logged, never returned.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the invoice lifecycle.
type Service struct {
	store    Store
	settings SettingsSource
	numbers  *NumberAllocator
	notifier notify.Notifier
	audit    AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the invoice service.
func NewService(store Store, settingsSrc SettingsSource, numbers *NumberAllocator, notifier notify.Notifier, audit AuditRecorder, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		store:    store,
		settings: settingsSrc,
		numbers:  numbers,
		notifier: notifier,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// config loads company settings, degrading to zero-value defaults when the
// company has no settings row.
func (s *Service) config(ctx context.Context, companyID int64) *settings.InvoiceConfig {
	if s.settings == nil {
		return &settings.InvoiceConfig{CompanyID: companyID, InvoicePrefix: "INV"}
	}
	cfg, err := s.settings.GetInvoiceConfig(ctx, companyID)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			s.logger.Warn("invoice config unavailable, using defaults",
				slog.Int64("company_id", companyID), slog.Any("error", err))
		}
		return &settings.InvoiceConfig{CompanyID: companyID, InvoicePrefix: "INV"}
	}
	return cfg
}

// buildItems converts inputs into persisted items plus the calculator lines
// that produced them. A positive supplied line total is trusted as-is;
// otherwise the line is computed from its components.
func buildItems(inputs []ItemInput) ([]InvoiceItem, []calc.Line) {
	items := make([]InvoiceItem, 0, len(inputs))
	lines := make([]calc.Line, 0, len(inputs))
	for i, in := range inputs {
		discountType := calc.NormalizeDiscountType(calc.DiscountType(in.DiscountType), in.DiscountValue)
		item := InvoiceItem{
			SourceItemID:   in.SourceItemID,
			Description:    in.Description,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			DiscountType:   string(discountType),
			DiscountValue:  in.DiscountValue,
			TaxRatePercent: in.TaxRatePercent,
			Position:       i + 1,
		}
		var line calc.Line
		if in.LineTotal > 0 {
			line = calc.PrecomputedLine(in.LineTotal)
			item.LineTotal = calc.Round2(in.LineTotal)
		} else {
			line = calc.RawLine(in.Quantity, in.UnitPrice, discountType, in.DiscountValue, in.TaxRatePercent)
			discount, tax, total := calc.CalculateLineAmounts(in.Quantity, in.UnitPrice, discountType, in.DiscountValue, in.TaxRatePercent)
			item.DiscountAmount = calc.Round2(discount)
			item.TaxAmount = tax
			item.LineTotal = total
		}
		items = append(items, item)
		lines = append(lines, line)
	}
	return items, lines
}

func applyTotals(inv *Invoice, totals calc.Totals) {
	inv.Subtotal = totals.Subtotal
	inv.DiscountAmount = totals.DiscountAmount
	inv.TaxAmount = totals.TaxAmount
	inv.TotalAmount = totals.TotalAmount
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}

// Create issues a standard invoice. The number is allocated from the company
// counter, the due date from payment-terms configuration, and totals from the
// supplied items.
func (s *Service) Create(ctx context.Context, companyID, actorID int64, req CreateInvoiceRequest) (*Invoice, []InvoiceItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, err
	}
	cfg := s.config(ctx, companyID)

	issueDate := s.now().UTC()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	taxRate := cfg.TaxRatePercent
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}
	dueDays := cfg.DueDays
	if req.DueDays != nil {
		dueDays = req.DueDays
	}

	items, lines := buildItems(req.Items)
	totals := calc.ComputeInvoiceTotals(lines, taxRate, req.DiscountAmount)

	inv := &Invoice{
		CompanyID:      companyID,
		CustomerID:     req.CustomerID,
		JobID:          req.JobID,
		Kind:           KindStandard,
		Number:         s.numbers.Allocate(ctx, companyID),
		Status:         StatusUnpaid,
		IssueDate:      issueDate,
		DueDate:        terms.ResolveDueDate(issueDate, cfg.TermsCode, dueDays),
		TaxRatePercent: taxRate,
		Notes:          req.Notes,
	}
	applyTotals(inv, totals)

	if err := s.store.Create(ctx, inv, items); err != nil {
		return nil, nil, err
	}

	s.recordAudit(ctx, actorID, "invoice.created", inv.ID, map[string]any{
		"number": inv.Number,
		"total":  inv.TotalAmount,
	})
	if err := s.notifier.InvoiceIssued(ctx, s.notice(inv)); err != nil {
		s.logger.Warn("issued notice not queued", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
	return inv, items, nil
}

func (s *Service) notice(inv *Invoice) notify.InvoiceNotice {
	return notify.InvoiceNotice{
		CompanyID:     inv.CompanyID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		CustomerID:    inv.CustomerID,
		BalanceDue:    inv.BalanceDue(),
		DueDate:       inv.DueDate.Format("2006-01-02"),
	}
}

// Get returns an invoice with its items.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Invoice, []InvoiceItem, error) {
	inv, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.Items(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, shared.Pagination, error) {
	invs, total, err := s.store.List(ctx, companyID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return invs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Update applies mutable fields. When the invoice-level discount or tax rate
// changes, totals are recomputed from the stored items and the payment-derived
// status is refreshed against the new total.
func (s *Service) Update(ctx context.Context, companyID, id, actorID int64, req UpdateInvoiceRequest) (*Invoice, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	inv, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusVoid {
		return nil, billing.ErrInvalidTransition
	}

	if req.DueDate != nil {
		inv.DueDate = req.DueDate.UTC()
	}
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}

	totalsChanged := false
	if req.DiscountAmount != nil && *req.DiscountAmount != inv.DiscountAmount {
		inv.DiscountAmount = *req.DiscountAmount
		totalsChanged = true
	}
	if req.TaxRatePercent != nil && *req.TaxRatePercent != inv.TaxRatePercent {
		inv.TaxRatePercent = *req.TaxRatePercent
		totalsChanged = true
	}
	if totalsChanged {
		items, err := s.store.Items(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		totals := calc.ComputeInvoiceTotals(linesFromItems(items), inv.TaxRatePercent, inv.DiscountAmount)
		applyTotals(inv, totals)
	}

	if err := s.store.Update(ctx, inv); err != nil {
		return nil, err
	}
	if totalsChanged {
		if err := s.refreshPaymentStatus(ctx, inv); err != nil {
			return nil, err
		}
	}
	s.recordAudit(ctx, actorID, "invoice.updated", inv.ID, map[string]any{"total": inv.TotalAmount})
	return inv, nil
}

// linesFromItems feeds stored items back through the calculator. Persisted
// totals are preferred; a line without one is recomputed from its fields.
func linesFromItems(items []InvoiceItem) []calc.Line {
	lines := make([]calc.Line, 0, len(items))
	for _, item := range items {
		if item.LineTotal > 0 {
			lines = append(lines, calc.PrecomputedLine(item.LineTotal))
			continue
		}
		lines = append(lines, calc.RawLine(item.Quantity, item.UnitPrice, calc.DiscountType(item.DiscountType), item.DiscountValue, item.TaxRatePercent))
	}
	return lines
}

// SyncItems replaces the invoice's lines with the supplied source lines,
// recomputes totals and refreshes the payment-derived status. An empty source
// list collapses to a single placeholder line so the invoice keeps its amount
// instead of dropping to zero.
func (s *Service) SyncItems(ctx context.Context, companyID, id, actorID int64, req SyncItemsRequest) (*Invoice, []InvoiceItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, err
	}
	inv, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status == StatusVoid {
		return nil, nil, billing.ErrInvalidTransition
	}

	inputs := req.Items
	if len(inputs) == 0 {
		inputs = []ItemInput{{
			Description: "Service",
			Quantity:    1,
			UnitPrice:   inv.Subtotal,
			LineTotal:   inv.Subtotal,
		}}
	}
	items, lines := buildItems(inputs)
	totals := calc.ComputeInvoiceTotals(lines, inv.TaxRatePercent, inv.DiscountAmount)
	applyTotals(inv, totals)

	if err := s.store.ReplaceItems(ctx, inv, items); err != nil {
		return nil, nil, err
	}
	if err := s.refreshPaymentStatus(ctx, inv); err != nil {
		return nil, nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.items_synced", inv.ID, map[string]any{
		"item_count": len(items),
		"total":      inv.TotalAmount,
	})
	return inv, items, nil
}

// refreshPaymentStatus recomputes the payment-derived status against the
// current total and writes it with an optimistic compare-and-set, retrying
// once on a lost race.
func (s *Service) refreshPaymentStatus(ctx context.Context, inv *Invoice) error {
	if inv.Status == StatusVoid {
		return nil
	}
	paid, err := s.store.PaidToDate(ctx, inv.ID)
	if err != nil {
		return err
	}
	next := StatusForPayments(paid, inv.TotalAmount)
	// A zero-total invoice has nothing left to collect.
	if inv.TotalAmount <= 0 {
		next = StatusPaid
	}
	if next == inv.Status && paid == inv.AmountPaid {
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.store.UpdateStatusVersioned(ctx, inv.ID, inv.Version, next, paid)
		if err != nil {
			return err
		}
		if ok {
			inv.Status = next
			inv.AmountPaid = paid
			inv.Version++
			return nil
		}
		fresh, err := s.store.Get(ctx, inv.CompanyID, inv.ID)
		if err != nil {
			return err
		}
		inv.Version = fresh.Version
		inv.Status = fresh.Status
	}
	return billing.ErrConflict
}

// MarkStatus performs a caller-driven status transition, validating the edge
// against the allowed set. A customer notice is queued for OVERDUE and for
// any transition other than PAID on an invoice already past due.
func (s *Service) MarkStatus(ctx context.Context, companyID, id, actorID int64, target InvoiceStatus) (*Invoice, error) {
	if !target.Valid() {
		return nil, billing.ErrInvalidTransition
	}
	inv, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if inv.Status == target {
			return inv, nil
		}
		if !inv.Status.CanTransitionTo(target) {
			return nil, fmt.Errorf("%w: %s -> %s", billing.ErrInvalidTransition, inv.Status, target)
		}
		ok, err := s.store.UpdateStatusVersioned(ctx, inv.ID, inv.Version, target, inv.AmountPaid)
		if err != nil {
			return nil, err
		}
		if ok {
			inv.Status = target
			inv.Version++
			break
		}
		inv, err = s.store.Get(ctx, companyID, id)
		if err != nil {
			return nil, err
		}
		if attempt == 1 {
			return nil, billing.ErrConflict
		}
	}

	s.recordAudit(ctx, actorID, "invoice.status_changed", inv.ID, map[string]any{"status": string(target)})
	// Any transition that leaves a past-due invoice unpaid tells the customer.
	pastDue := inv.DueDate.Before(s.now())
	if target == StatusOverdue || (pastDue && target != StatusPaid) {
		if err := s.notifier.InvoiceOverdue(ctx, s.notice(inv)); err != nil {
			s.logger.Warn("overdue notice not queued", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
		}
	}
	return inv, nil
}

// Delete removes an invoice. Paid invoices and invoices with any recorded
// payment are kept for the ledger's sake.
func (s *Service) Delete(ctx context.Context, companyID, id, actorID int64) error {
	inv, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return billing.ErrDeletionForbidden
	}
	count, err := s.store.PaymentCount(ctx, inv.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return billing.ErrDeletionForbidden
	}
	if err := s.store.Delete(ctx, companyID, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice.deleted", id, map[string]any{"number": inv.Number})
	return nil
}

// CreateProgressInvoice bills a portion of a parent invoice. The parent is
// taken from the request or discovered as the earliest standard invoice on
// the job. The progress amount is a percent of the parent total or a fixed
// amount, less any deposit already collected.
func (s *Service) CreateProgressInvoice(ctx context.Context, companyID, actorID int64, req CreateProgressRequest) (*Invoice, []InvoiceItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, err
	}

	var parent *Invoice
	var err error
	switch {
	case req.ParentInvoiceID != nil:
		parent, err = s.store.Get(ctx, companyID, *req.ParentInvoiceID)
	case req.JobID != nil:
		parent, err = s.store.FindEarliestJobInvoice(ctx, companyID, *req.JobID)
	default:
		return nil, nil, fmt.Errorf("%w: parent invoice or job required", billing.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	if parent.Status == StatusVoid {
		return nil, nil, billing.ErrInvalidTransition
	}

	var amount float64
	var description string
	switch req.Basis {
	case ProgressByPercent:
		amount = calc.Round2(parent.TotalAmount * (req.Percent / 100))
		description = fmt.Sprintf("Progress billing (%.0f%% of %s)", req.Percent, parent.Number)
	case ProgressByAmount:
		amount = calc.Round2(req.Amount)
		description = fmt.Sprintf("Progress billing against %s", parent.Number)
	}
	progressAmount := amount
	if req.DepositAmount > 0 {
		amount = calc.Round2(amount - req.DepositAmount)
		description += fmt.Sprintf(" less %.2f deposit", req.DepositAmount)
	}
	if amount <= 0 {
		return nil, nil, fmt.Errorf("%w: progress amount %.2f", billing.ErrInvalidAmount, amount)
	}

	cfg := s.config(ctx, companyID)
	issueDate := s.now().UTC()
	dueDays := cfg.DueDays
	if req.DueDays != nil {
		dueDays = req.DueDays
	}

	items, lines := buildItems([]ItemInput{{
		Description: description,
		Quantity:    1,
		UnitPrice:   amount,
		LineTotal:   amount,
	}})
	// Progress billing draws down an already-taxed parent total, so no
	// invoice-level tax is applied again.
	totals := calc.ComputeInvoiceTotals(lines, 0, 0)

	inv := &Invoice{
		CompanyID:       companyID,
		CustomerID:      parent.CustomerID,
		JobID:           parent.JobID,
		ParentInvoiceID: &parent.ID,
		Kind:            KindProgress,
		Number:          s.numbers.Allocate(ctx, companyID),
		Status:          StatusUnpaid,
		IssueDate:       issueDate,
		DueDate:         terms.ResolveDueDate(issueDate, cfg.TermsCode, dueDays),
		Notes:           req.Notes,
		ProgressBasis:   req.Basis,
		ProgressPercent: req.Percent,
		ProgressAmount:  progressAmount,
		DepositAmount:   req.DepositAmount,
		ComputedBalance: req.ComputedBalance,
	}
	applyTotals(inv, totals)

	if err := s.store.Create(ctx, inv, items); err != nil {
		return nil, nil, err
	}

	s.recordAudit(ctx, actorID, "invoice.progress_created", inv.ID, map[string]any{
		"parent_invoice_id": parent.ID,
		"basis":             string(req.Basis),
		"percent":           req.Percent,
		"progress_amount":   progressAmount,
		"deposit":           req.DepositAmount,
		"computed_balance":  req.ComputedBalance,
		"total":             inv.TotalAmount,
	})
	if err := s.notifier.InvoiceIssued(ctx, s.notice(inv)); err != nil {
		s.logger.Warn("issued notice not queued", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
	return inv, items, nil
}

// EnsureForJobCompletion creates the invoice for a completed job exactly
// once. Replays return the existing invoice. A non time-and-materials
// pricing model collapses the job's items into a single computed line.
func (s *Service) EnsureForJobCompletion(ctx context.Context, companyID, actorID int64, jc JobCompletion) (*Invoice, bool, error) {
	if err := s.validate.Struct(jc); err != nil {
		return nil, false, err
	}
	existing, err := s.store.FindEarliestJobInvoice(ctx, companyID, jc.JobID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, billing.ErrNotFound) {
		return nil, false, err
	}

	inv, _, err := s.Create(ctx, companyID, actorID, CreateInvoiceRequest{
		CustomerID: jc.CustomerID,
		JobID:      &jc.JobID,
		Items:      resolveJobItems(jc),
		Notes:      jc.Notes,
	})
	if err != nil {
		return nil, false, err
	}
	return inv, true, nil
}

// resolveJobItems prices a completed job. Time & materials keeps the job's
// own lines; every other model bills a single line for the computed amount.
func resolveJobItems(jc JobCompletion) []ItemInput {
	if jc.Pricing == nil {
		return jc.Items
	}
	model, err := pricing.ParseModel(jc.Pricing.Model)
	if err != nil || model == pricing.ModelTimeMaterials {
		return jc.Items
	}
	var itemsSubtotal float64
	for _, item := range jc.Items {
		if item.LineTotal > 0 {
			itemsSubtotal += item.LineTotal
			continue
		}
		itemsSubtotal += item.Quantity * item.UnitPrice
	}
	amount := calc.Round2(model.ComputeSubtotal(pricing.Context{
		ItemsSubtotal:     itemsSubtotal,
		MaterialsSubtotal: jc.Pricing.MaterialsSubtotal,
		FlatRateAmount:    jc.Pricing.FlatRateAmount,
		UnitCount:         jc.Pricing.UnitCount,
		UnitPrice:         jc.Pricing.UnitPrice,
		Percent:           jc.Pricing.Percent,
		PercentBaseAmount: jc.Pricing.PercentBaseAmount,
		RecurringRate:     jc.Pricing.RecurringRate,
	}))
	if amount <= 0 {
		return jc.Items
	}
	return []ItemInput{{
		Description: pricedLineDescription(model),
		Quantity:    1,
		UnitPrice:   amount,
		LineTotal:   amount,
	}}
}

func pricedLineDescription(model pricing.Model) string {
	switch model {
	case pricing.ModelFlatRate:
		return "Flat rate service"
	case pricing.ModelUnit:
		return "Unit-priced service"
	case pricing.ModelPercentage:
		return "Percentage-based service"
	case pricing.ModelRecurring:
		return "Recurring service"
	case pricing.ModelMilestone:
		return "Milestone billing"
	default:
		return "Service"
	}
}

// SweepOverdue flips unpaid invoices past their due date to OVERDUE and
// queues a notice per invoice. Partially paid invoices are left alone; the
// payment ledger owns their status. Returns how many invoices were flipped.
func (s *Service) SweepOverdue(ctx context.Context, asOf time.Time, limit int) (int, error) {
	candidates, err := s.store.ListOverdueCandidates(ctx, asOf, limit)
	if err != nil {
		return 0, err
	}
	flipped := 0
	for i := range candidates {
		inv := &candidates[i]
		if !inv.IsPastDue(asOf) {
			continue
		}
		ok, err := s.store.UpdateStatusVersioned(ctx, inv.ID, inv.Version, StatusOverdue, inv.AmountPaid)
		if err != nil {
			return flipped, err
		}
		if !ok {
			// Lost to a concurrent payment; the next sweep reconsiders it.
			continue
		}
		inv.Status = StatusOverdue
		flipped++
		if err := s.notifier.InvoiceOverdue(ctx, s.notice(inv)); err != nil {
			s.logger.Warn("overdue notice not queued", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
		}
	}
	return flipped, nil
}
