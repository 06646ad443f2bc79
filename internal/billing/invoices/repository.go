package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/fieldserve/internal/billing"
	"github.com/fieldserve/fieldserve/internal/platform/db"
)

const invoiceColumns = `id, company_id, customer_id, job_id, parent_invoice_id, kind, number, status,
issue_date, due_date, subtotal, discount_amount, tax_rate, tax_amount, total_amount, amount_paid,
notes, progress_basis, progress_percent, progress_amount, deposit_amount, computed_balance,
version, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for invoices and their
// items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var (
		inv      Invoice
		jobID    pgtype.Int8
		parentID pgtype.Int8
		notes    pgtype.Text
		basis    pgtype.Text
	)
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.CustomerID, &jobID, &parentID, &inv.Kind, &inv.Number, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.DiscountAmount, &inv.TaxRatePercent, &inv.TaxAmount,
		&inv.TotalAmount, &inv.AmountPaid, &notes, &basis, &inv.ProgressPercent, &inv.ProgressAmount,
		&inv.DepositAmount, &inv.ComputedBalance, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if jobID.Valid {
		inv.JobID = &jobID.Int64
	}
	if parentID.Valid {
		inv.ParentInvoiceID = &parentID.Int64
	}
	inv.Notes = notes.String
	inv.ProgressBasis = ProgressBasis(basis.String)
	return &inv, nil
}

// Create inserts the invoice and its items in one transaction and fills the
// generated IDs.
func (r *Repository) Create(ctx context.Context, inv *Invoice, items []InvoiceItem) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO invoices
(company_id, customer_id, job_id, parent_invoice_id, kind, number, status, issue_date, due_date,
 subtotal, discount_amount, tax_rate, tax_amount, total_amount, amount_paid, notes,
 progress_basis, progress_percent, progress_amount, deposit_amount, computed_balance,
 version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $16, $17, $18, $19, $20, 1, NOW(), NOW())
RETURNING id, created_at, updated_at`,
			inv.CompanyID, inv.CustomerID, inv.JobID, inv.ParentInvoiceID, inv.Kind, inv.Number, inv.Status,
			inv.IssueDate, inv.DueDate, inv.Subtotal, inv.DiscountAmount, inv.TaxRatePercent, inv.TaxAmount,
			inv.TotalAmount, inv.Notes, string(inv.ProgressBasis), inv.ProgressPercent, inv.ProgressAmount,
			inv.DepositAmount, inv.ComputedBalance).
			Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("invoices: insert: %w", err)
		}
		inv.Version = 1
		return insertItems(ctx, tx, inv.ID, items)
	})
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID int64, items []InvoiceItem) error {
	for i := range items {
		items[i].InvoiceID = invoiceID
		items[i].Position = i + 1
		err := tx.QueryRow(ctx, `INSERT INTO invoice_items
(invoice_id, source_item_id, description, quantity, unit_price, discount_type, discount_value,
 tax_rate, discount_amount, tax_amount, line_total, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
			invoiceID, items[i].SourceItemID, items[i].Description, items[i].Quantity, items[i].UnitPrice,
			items[i].DiscountType, items[i].DiscountValue, items[i].TaxRatePercent, items[i].DiscountAmount,
			items[i].TaxAmount, items[i].LineTotal, items[i].Position).
			Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("invoices: insert item: %w", err)
		}
	}
	return nil
}

// Get loads an invoice scoped to its company.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id = $1 AND id = $2`, companyID, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, fmt.Errorf("invoices: get: %w", err)
	}
	return inv, nil
}

// Items returns the invoice's lines ordered by position.
func (r *Repository) Items(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, source_item_id, description, quantity, unit_price,
discount_type, discount_value, tax_rate, discount_amount, tax_amount, line_total, position
FROM invoice_items WHERE invoice_id = $1 ORDER BY position, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: list items: %w", err)
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var (
			item     InvoiceItem
			sourceID pgtype.Int8
		)
		err := rows.Scan(&item.ID, &item.InvoiceID, &sourceID, &item.Description, &item.Quantity, &item.UnitPrice,
			&item.DiscountType, &item.DiscountValue, &item.TaxRatePercent, &item.DiscountAmount, &item.TaxAmount,
			&item.LineTotal, &item.Position)
		if err != nil {
			return nil, fmt.Errorf("invoices: scan item: %w", err)
		}
		if sourceID.Valid {
			item.SourceItemID = &sourceID.Int64
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns a page of invoices matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error) {
	where := []string{"company_id = $1"}
	args := []any{companyID}

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.CustomerID > 0 {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.JobID > 0 {
		add("job_id = $%d", filter.JobID)
	}
	if filter.IssuedFrom != nil {
		add("issue_date >= $%d", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		add("issue_date <= $%d", *filter.IssuedTo)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoices: count: %w", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, whereSQL, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("invoices: list: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("invoices: scan: %w", err)
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

// Update persists mutable fields and recomputed totals.
func (r *Repository) Update(ctx context.Context, inv *Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
due_date = $3, subtotal = $4, discount_amount = $5, tax_rate = $6, tax_amount = $7,
total_amount = $8, notes = $9, updated_at = NOW()
WHERE company_id = $1 AND id = $2`,
		inv.CompanyID, inv.ID, inv.DueDate, inv.Subtotal, inv.DiscountAmount, inv.TaxRatePercent,
		inv.TaxAmount, inv.TotalAmount, inv.Notes)
	if err != nil {
		return fmt.Errorf("invoices: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrNotFound
	}
	return nil
}

// ReplaceItems swaps the invoice's lines and totals atomically. The
// delete-then-insert runs under REPEATABLE READ so a concurrent sync cannot
// interleave and leave a mixed item set.
func (r *Repository) ReplaceItems(ctx context.Context, inv *Invoice, items []InvoiceItem) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("invoices: clear items: %w", err)
		}
		if err := insertItems(ctx, tx, inv.ID, items); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE invoices SET
subtotal = $2, discount_amount = $3, tax_rate = $4, tax_amount = $5, total_amount = $6, updated_at = NOW()
WHERE id = $1`,
			inv.ID, inv.Subtotal, inv.DiscountAmount, inv.TaxRatePercent, inv.TaxAmount, inv.TotalAmount)
		if err != nil {
			return fmt.Errorf("invoices: update totals: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrNotFound
		}
		return nil
	})
}

// PaidToDate sums successful payments against the invoice.
func (r *Repository) PaidToDate(ctx context.Context, invoiceID int64) (float64, error) {
	var paid float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE invoice_id = $1 AND status = 'SUCCESS'`, invoiceID).Scan(&paid)
	if err != nil {
		return 0, fmt.Errorf("invoices: paid to date: %w", err)
	}
	return paid, nil
}

// PaymentCount counts ledger entries against the invoice, any status.
func (r *Repository) PaymentCount(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("invoices: payment count: %w", err)
	}
	return n, nil
}

// UpdateStatusVersioned writes status and amount_paid only when the stored
// version still matches. Returns false when another writer won the race.
func (r *Repository) UpdateStatusVersioned(ctx context.Context, invoiceID, expectedVersion int64, status InvoiceStatus, amountPaid float64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET
status = $3, amount_paid = $4, version = version + 1, updated_at = NOW()
WHERE id = $1 AND version = $2`,
		invoiceID, expectedVersion, status, amountPaid)
	if err != nil {
		return false, fmt.Errorf("invoices: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the invoice and its items.
func (r *Repository) Delete(ctx context.Context, companyID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return fmt.Errorf("invoices: delete items: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE company_id = $1 AND id = $2`, companyID, id)
		if err != nil {
			return fmt.Errorf("invoices: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrNotFound
		}
		return nil
	})
}

// FindEarliestJobInvoice returns the oldest standard invoice on a job, or
// billing.ErrNotFound.
func (r *Repository) FindEarliestJobInvoice(ctx context.Context, companyID, jobID int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE company_id = $1 AND job_id = $2 AND kind = $3
ORDER BY created_at ASC, id ASC LIMIT 1`, companyID, jobID, KindStandard)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, fmt.Errorf("invoices: earliest job invoice: %w", err)
	}
	return inv, nil
}

// ListOverdueCandidates returns unpaid invoices whose due date has passed.
// Partially paid invoices are excluded: their status is owned by the payment
// ledger and the edge set has no path from PARTIALLY_PAID to OVERDUE.
func (r *Repository) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE status = $1 AND due_date < $2
ORDER BY due_date ASC LIMIT $3`, StatusUnpaid, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("invoices: overdue candidates: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("invoices: scan: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}
