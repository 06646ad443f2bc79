package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/fieldserve/internal/billing"
)

// Repository provides PostgreSQL backed persistence for the payment ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a ledger entry and fills the generated ID.
func (r *Repository) Insert(ctx context.Context, p *Payment) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO payments
(invoice_id, amount, method, status, transaction_reference, received_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id, created_at`,
		p.InvoiceID, p.Amount, p.Method, p.Status, p.TransactionReference, p.ReceivedAt, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert: %w", err)
	}
	return nil
}

// Get loads one ledger entry scoped to its invoice.
func (r *Repository) Get(ctx context.Context, invoiceID, paymentID int64) (*Payment, error) {
	var (
		p   Payment
		ref pgtype.Text
	)
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_id, amount, method, status, transaction_reference, received_at, created_by, created_at
FROM payments WHERE invoice_id = $1 AND id = $2`, invoiceID, paymentID).
		Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Status, &ref, &p.ReceivedAt, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, fmt.Errorf("payments: get: %w", err)
	}
	p.TransactionReference = ref.String
	return &p, nil
}

// ListForInvoice returns the ledger for an invoice, oldest first.
func (r *Repository) ListForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, method, status, transaction_reference, received_at, created_by, created_at
FROM payments WHERE invoice_id = $1 ORDER BY received_at ASC, id ASC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("payments: list: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var (
			p   Payment
			ref pgtype.Text
		)
		err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Status, &ref, &p.ReceivedAt, &p.CreatedBy, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		p.TransactionReference = ref.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a ledger entry.
func (r *Repository) Delete(ctx context.Context, invoiceID, paymentID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE invoice_id = $1 AND id = $2`, invoiceID, paymentID)
	if err != nil {
		return fmt.Errorf("payments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrNotFound
	}
	return nil
}

// SumSuccessful totals SUCCESS entries for an invoice.
func (r *Repository) SumSuccessful(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE invoice_id = $1 AND status = $2`, invoiceID, StatusSuccess).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("payments: sum: %w", err)
	}
	return sum, nil
}
