package invoices

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/notify"
	"github.com/fieldserve/fieldserve/internal/settings"
	"github.com/fieldserve/fieldserve/internal/shared"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	invoices map[int64]*Invoice
	items    map[int64][]InvoiceItem
	paid     map[int64][]float64
}

func newMemStore() *memStore {
	return &memStore{
		invoices: make(map[int64]*Invoice),
		items:    make(map[int64][]InvoiceItem),
		paid:     make(map[int64][]float64),
	}
}

func (m *memStore) Create(_ context.Context, inv *Invoice, items []InvoiceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inv.ID = m.nextID
	inv.Version = 1
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	clone := *inv
	m.invoices[inv.ID] = &clone
	for i := range items {
		items[i].ID = int64(i + 1)
		items[i].InvoiceID = inv.ID
	}
	m.items[inv.ID] = append([]InvoiceItem(nil), items...)
	return nil
}

func (m *memStore) Get(_ context.Context, companyID, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return nil, billing.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (m *memStore) Items(_ context.Context, invoiceID int64) ([]InvoiceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InvoiceItem(nil), m.items[invoiceID]...), nil
}

func (m *memStore) List(_ context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID != companyID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.CustomerID > 0 && inv.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memStore) Update(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return billing.ErrNotFound
	}
	stored.DueDate = inv.DueDate
	stored.Subtotal = inv.Subtotal
	stored.DiscountAmount = inv.DiscountAmount
	stored.TaxRatePercent = inv.TaxRatePercent
	stored.TaxAmount = inv.TaxAmount
	stored.TotalAmount = inv.TotalAmount
	stored.Notes = inv.Notes
	return nil
}

func (m *memStore) ReplaceItems(_ context.Context, inv *Invoice, items []InvoiceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return billing.ErrNotFound
	}
	for i := range items {
		items[i].ID = int64(i + 1)
		items[i].InvoiceID = inv.ID
	}
	m.items[inv.ID] = append([]InvoiceItem(nil), items...)
	stored.Subtotal = inv.Subtotal
	stored.DiscountAmount = inv.DiscountAmount
	stored.TaxRatePercent = inv.TaxRatePercent
	stored.TaxAmount = inv.TaxAmount
	stored.TotalAmount = inv.TotalAmount
	return nil
}

func (m *memStore) PaidToDate(_ context.Context, invoiceID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, amount := range m.paid[invoiceID] {
		sum += amount
	}
	return sum, nil
}

func (m *memStore) PaymentCount(_ context.Context, invoiceID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paid[invoiceID]), nil
}

func (m *memStore) UpdateStatusVersioned(_ context.Context, invoiceID, expectedVersion int64, status InvoiceStatus, amountPaid float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok || inv.Version != expectedVersion {
		return false, nil
	}
	inv.Status = status
	inv.AmountPaid = amountPaid
	inv.Version++
	return true, nil
}

func (m *memStore) Delete(_ context.Context, companyID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok || inv.CompanyID != companyID {
		return billing.ErrNotFound
	}
	delete(m.invoices, id)
	delete(m.items, id)
	return nil
}

func (m *memStore) FindEarliestJobInvoice(_ context.Context, companyID, jobID int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var earliest *Invoice
	for _, inv := range m.invoices {
		if inv.CompanyID != companyID || inv.Kind != KindStandard {
			continue
		}
		if inv.JobID == nil || *inv.JobID != jobID {
			continue
		}
		if earliest == nil || inv.ID < earliest.ID {
			earliest = inv
		}
	}
	if earliest == nil {
		return nil, billing.ErrNotFound
	}
	clone := *earliest
	return &clone, nil
}

func (m *memStore) ListOverdueCandidates(_ context.Context, asOf time.Time, limit int) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.Status == StatusUnpaid && inv.DueDate.Before(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type fixedSettings struct {
	cfg *settings.InvoiceConfig
	seq int64
	err error
}

func (f *fixedSettings) GetInvoiceConfig(context.Context, int64) (*settings.InvoiceConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

func (f *fixedSettings) NextInvoiceSequence(context.Context, int64) (string, int64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	f.seq++
	return f.cfg.InvoicePrefix, f.seq, nil
}

type captureNotifier struct {
	issued  []notify.InvoiceNotice
	overdue []notify.InvoiceNotice
}

func (c *captureNotifier) InvoiceIssued(_ context.Context, n notify.InvoiceNotice) error {
	c.issued = append(c.issued, n)
	return nil
}

func (c *captureNotifier) InvoiceOverdue(_ context.Context, n notify.InvoiceNotice) error {
	c.overdue = append(c.overdue, n)
	return nil
}

type captureAudit struct {
	entries []shared.AuditLog
}

func (c *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	c.entries = append(c.entries, log)
	return nil
}

func newTestService(t *testing.T, store *memStore, src *fixedSettings) (*Service, *captureNotifier, *captureAudit) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	notifier := &captureNotifier{}
	audit := &captureAudit{}
	svc := NewService(store, src, NewNumberAllocator(src, logger), notifier, audit, logger)
	fixedNow := func() time.Time {
		return time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	}
	svc.now = fixedNow
	svc.numbers.now = fixedNow
	return svc, notifier, audit
}

func defaultSettings() *fixedSettings {
	return &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID:      1,
		TermsCode:      "NET_30",
		TaxRatePercent: 8.25,
		InvoicePrefix:  "INV",
	}}
}

func TestCreateComputesTotalsAndDueDate(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(t, store, defaultSettings())

	inv, items, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items: []ItemInput{
			{Description: "Diagnostic", Quantity: 1, UnitPrice: 49.99},
			{Description: "Compressor repair", Quantity: 1, UnitPrice: 149.99},
			{Description: "Refrigerant", Quantity: 1, UnitPrice: 50.00},
		},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, 249.98, inv.Subtotal)
	require.Equal(t, 20.62, inv.TaxAmount)
	require.Equal(t, 270.60, inv.TotalAmount)
	require.Equal(t, StatusUnpaid, inv.Status)
	require.Equal(t, "INV-2025-0001", inv.Number)
	require.Equal(t, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.Len(t, notifier.issued, 1)
}

func TestCreateAppliesInvoiceDiscountBeforeTax(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 8, InvoicePrefix: "INV",
	}})

	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID:     42,
		DiscountAmount: 20,
		Items:          []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, inv.Subtotal)
	require.Equal(t, 6.40, inv.TaxAmount)
	require.Equal(t, 86.40, inv.TotalAmount)
}

func TestCreateFallbackNumberWhenCounterUnavailable(t *testing.T) {
	store := newMemStore()
	src := &fixedSettings{err: errors.New("connection refused")}
	svc, _, _ := newTestService(t, store, src)

	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	require.Regexp(t, `^INV-2\d{3}-\d{4}$`, inv.Number)
	// Settings failure also means defaults: no terms, due on issue date.
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), inv.DueDate)
}

func TestMarkStatusValidatesEdges(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(t, store, defaultSettings())
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	updated, err := svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusOverdue)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, updated.Status)
	require.Len(t, notifier.overdue, 1)

	// OVERDUE permits only PAID and VOID.
	_, err = svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusUnpaid)
	require.ErrorIs(t, err, billing.ErrInvalidTransition)

	updated, err = svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusVoid)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, updated.Status)

	// VOID is terminal.
	_, err = svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusPaid)
	require.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestMarkStatusSameStatusIsNoop(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, defaultSettings())
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	updated, err := svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusUnpaid)
	require.NoError(t, err)
	require.Equal(t, inv.Version, updated.Version)
}

func TestDeleteForbiddenForPaidOrLedgeredInvoices(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, defaultSettings())
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	store.paid[inv.ID] = []float64{25}
	require.ErrorIs(t, svc.Delete(context.Background(), 1, inv.ID, 7), billing.ErrDeletionForbidden)

	store.paid[inv.ID] = nil
	store.invoices[inv.ID].Status = StatusPaid
	require.ErrorIs(t, svc.Delete(context.Background(), 1, inv.ID, 7), billing.ErrDeletionForbidden)

	store.invoices[inv.ID].Status = StatusUnpaid
	require.NoError(t, svc.Delete(context.Background(), 1, inv.ID, 7))
	_, _, err = svc.Get(context.Background(), 1, inv.ID)
	require.ErrorIs(t, err, billing.ErrNotFound)
}

func TestSyncItemsReplacesAndRecomputes(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 0, InvoicePrefix: "INV",
	}})
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Old line", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	sourceID := int64(900)
	updated, items, err := svc.SyncItems(context.Background(), 1, inv.ID, 7, SyncItemsRequest{
		Items: []ItemInput{
			{SourceItemID: &sourceID, Description: "Labor", Quantity: 2, UnitPrice: 60},
			{Description: "Parts", Quantity: 1, UnitPrice: 80},
		},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 200.0, updated.Subtotal)
	require.Equal(t, 200.0, updated.TotalAmount)
	require.Equal(t, &sourceID, items[0].SourceItemID)
}

func TestSyncItemsIsIdempotentPerInput(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, defaultSettings())
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Old line", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	req := SyncItemsRequest{Items: []ItemInput{
		{Description: "Labor", Quantity: 2, UnitPrice: 60},
		{Description: "Parts", Quantity: 1, UnitPrice: 80},
	}}
	first, firstItems, err := svc.SyncItems(context.Background(), 1, inv.ID, 7, req)
	require.NoError(t, err)
	second, secondItems, err := svc.SyncItems(context.Background(), 1, inv.ID, 7, req)
	require.NoError(t, err)

	require.Equal(t, first.Subtotal, second.Subtotal)
	require.Equal(t, first.TotalAmount, second.TotalAmount)
	require.Len(t, secondItems, len(firstItems))
}

func TestSyncItemsEmptyCollapsesToPlaceholder(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 0, InvoicePrefix: "INV",
	}})
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 150}},
	})
	require.NoError(t, err)

	updated, items, err := svc.SyncItems(context.Background(), 1, inv.ID, 7, SyncItemsRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Service", items[0].Description)
	require.Equal(t, 150.0, updated.Subtotal)
	require.Equal(t, 150.0, updated.TotalAmount)
}

func TestSyncItemsRefreshesPaymentStatus(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 0, InvoicePrefix: "INV",
	}})
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	// Fully paid at the old total.
	store.paid[inv.ID] = []float64{100}
	store.invoices[inv.ID].Status = StatusPaid
	store.invoices[inv.ID].AmountPaid = 100
	store.invoices[inv.ID].Version++

	updated, _, err := svc.SyncItems(context.Background(), 1, inv.ID, 7, SyncItemsRequest{
		Items: []ItemInput{{Description: "Expanded scope", Quantity: 1, UnitPrice: 200}},
	})
	require.NoError(t, err)
	require.Equal(t, 200.0, updated.TotalAmount)
	require.Equal(t, StatusPartiallyPaid, store.invoices[inv.ID].Status)
}

func TestCreateProgressInvoiceByPercent(t *testing.T) {
	store := newMemStore()
	svc, _, audit := newTestService(t, store, defaultSettings())
	jobID := int64(5)
	parent, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		JobID:      &jobID,
		Items:      []ItemInput{{Description: "Install", Quantity: 1, UnitPrice: 1000, LineTotal: 1000}},
	})
	require.NoError(t, err)

	// Parent discovered from the job; 30% of the total less a 100 deposit.
	progress, items, err := svc.CreateProgressInvoice(context.Background(), 1, 7, CreateProgressRequest{
		JobID:           &jobID,
		Basis:           ProgressByPercent,
		Percent:         30,
		DepositAmount:   100,
		ComputedBalance: 757.75,
	})
	require.NoError(t, err)
	require.Equal(t, KindProgress, progress.Kind)
	require.Equal(t, &parent.ID, progress.ParentInvoiceID)
	require.Equal(t, parent.CustomerID, progress.CustomerID)
	require.InDelta(t, 0.3*parent.TotalAmount-100, progress.TotalAmount, 0.001)
	require.Zero(t, progress.TaxAmount)
	require.Len(t, items, 1)
	require.Contains(t, items[0].Description, parent.Number)

	// The progress breakdown lives on the invoice row, not just the audit log.
	stored := store.invoices[progress.ID]
	require.Equal(t, ProgressByPercent, stored.ProgressBasis)
	require.Equal(t, 30.0, stored.ProgressPercent)
	require.InDelta(t, 0.3*parent.TotalAmount, stored.ProgressAmount, 0.001)
	require.Equal(t, 100.0, stored.DepositAmount)
	require.Equal(t, 757.75, stored.ComputedBalance)

	var found bool
	for _, entry := range audit.entries {
		if entry.Action == "invoice.progress_created" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCreateProgressInvoiceRejectsNonPositiveAmount(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, defaultSettings())
	parent, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Install", Quantity: 1, UnitPrice: 100, LineTotal: 100}},
	})
	require.NoError(t, err)

	_, _, err = svc.CreateProgressInvoice(context.Background(), 1, 7, CreateProgressRequest{
		ParentInvoiceID: &parent.ID,
		Basis:           ProgressByAmount,
		Amount:          50,
		DepositAmount:   80,
	})
	require.ErrorIs(t, err, billing.ErrInvalidAmount)
}

func TestEnsureForJobCompletionIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, defaultSettings())

	jc := JobCompletion{
		JobID:      11,
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Water heater install", Quantity: 1, UnitPrice: 1800}},
	}
	first, created, err := svc.EnsureForJobCompletion(context.Background(), 1, 7, jc)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.EnsureForJobCompletion(context.Background(), 1, 7, jc)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestEnsureForJobCompletionFlatRatePricing(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 0, InvoicePrefix: "INV",
	}})

	inv, created, err := svc.EnsureForJobCompletion(context.Background(), 1, 7, JobCompletion{
		JobID:      12,
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Labor", Quantity: 6, UnitPrice: 95}},
		Pricing:    &PricingInput{Model: "FLAT_RATE", FlatRateAmount: 450},
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 450.0, inv.TotalAmount)

	items, err := store.Items(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Flat rate service", items[0].Description)
}

func TestSweepOverdueFlipsPastDueInvoices(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(t, store, defaultSettings())

	days := 0
	pastDue, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		DueDays:    &days,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	current, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	flipped, err := svc.SweepOverdue(context.Background(), time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	require.Equal(t, 1, flipped)
	require.Equal(t, StatusOverdue, store.invoices[pastDue.ID].Status)
	require.Equal(t, StatusUnpaid, store.invoices[current.ID].Status)
	require.Len(t, notifier.overdue, 1)
}

func TestSweepOverdueLeavesPartiallyPaidInvoices(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(t, store, defaultSettings())

	days := 0
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		DueDays:    &days,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	store.paid[inv.ID] = []float64{40}
	store.invoices[inv.ID].Status = StatusPartiallyPaid
	store.invoices[inv.ID].AmountPaid = 40

	// No edge exists from PARTIALLY_PAID to OVERDUE; the sweep must not take it.
	require.False(t, StatusPartiallyPaid.CanTransitionTo(StatusOverdue))

	flipped, err := svc.SweepOverdue(context.Background(), time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	require.Zero(t, flipped)
	require.Equal(t, StatusPartiallyPaid, store.invoices[inv.ID].Status)
	require.Empty(t, notifier.overdue)
}

func TestMarkStatusNotifiesOnPastDueVoid(t *testing.T) {
	store := newMemStore()
	svc, notifier, _ := newTestService(t, store, defaultSettings())

	days := 0
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		DueDays:    &days,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	// Due at midnight, clock at noon: voiding past due still tells the customer.
	updated, err := svc.MarkStatus(context.Background(), 1, inv.ID, 7, StatusVoid)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, updated.Status)
	require.Len(t, notifier.overdue, 1)

	// Settling a past-due invoice does not.
	paid, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		DueDays:    &days,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	_, err = svc.MarkStatus(context.Background(), 1, paid.ID, 7, StatusPaid)
	require.NoError(t, err)
	require.Len(t, notifier.overdue, 1)
}

func TestUpdateRecomputesTotalsOnDiscountChange(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(t, store, &fixedSettings{cfg: &settings.InvoiceConfig{
		CompanyID: 1, TaxRatePercent: 8, InvoicePrefix: "INV",
	}})
	inv, _, err := svc.Create(context.Background(), 1, 7, CreateInvoiceRequest{
		CustomerID: 42,
		Items:      []ItemInput{{Description: "Service call", Quantity: 1, UnitPrice: 100, LineTotal: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, 108.0, inv.TotalAmount)

	discount := 20.0
	updated, err := svc.Update(context.Background(), 1, inv.ID, 7, UpdateInvoiceRequest{
		DiscountAmount: &discount,
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, updated.Subtotal)
	require.Equal(t, 6.40, updated.TaxAmount)
	require.Equal(t, 86.40, updated.TotalAmount)
}
