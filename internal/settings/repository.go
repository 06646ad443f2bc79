package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for company settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetInvoiceConfig loads a company's invoicing configuration.
func (r *Repository) GetInvoiceConfig(ctx context.Context, companyID int64) (*InvoiceConfig, error) {
	var (
		cfg      InvoiceConfig
		terms    pgtype.Text
		dueDays  pgtype.Int4
		taxRate  pgtype.Float8
		prefix   pgtype.Text
		updated  pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `SELECT company_id, terms_code, due_days, tax_rate_percent, invoice_prefix, next_invoice_number, updated_at
FROM company_settings WHERE company_id = $1`, companyID).
		Scan(&cfg.CompanyID, &terms, &dueDays, &taxRate, &prefix, &cfg.NextInvoiceNumber, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("settings: get invoice config: %w", err)
	}
	if terms.Valid {
		cfg.TermsCode = terms.String
	}
	if dueDays.Valid {
		days := int(dueDays.Int32)
		cfg.DueDays = &days
	}
	if taxRate.Valid {
		cfg.TaxRatePercent = taxRate.Float64
	}
	cfg.InvoicePrefix = "INV"
	if prefix.Valid && prefix.String != "" {
		cfg.InvoicePrefix = prefix.String
	}
	if updated.Valid {
		cfg.UpdatedAt = updated.Time
	}
	return &cfg, nil
}

// NextInvoiceSequence atomically claims the next counter value for the
// company. The single-row UPDATE serialises concurrent callers inside
// Postgres, so values are monotonic and never reused (gaps are fine).
func (r *Repository) NextInvoiceSequence(ctx context.Context, companyID int64) (prefix string, seq int64, err error) {
	var prefixCol pgtype.Text
	err = r.pool.QueryRow(ctx, `UPDATE company_settings
SET next_invoice_number = next_invoice_number + 1, updated_at = NOW()
WHERE company_id = $1
RETURNING invoice_prefix, next_invoice_number - 1`, companyID).Scan(&prefixCol, &seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("settings: next invoice sequence: %w", err)
	}
	prefix = "INV"
	if prefixCol.Valid && prefixCol.String != "" {
		prefix = prefixCol.String
	}
	return prefix, seq, nil
}

// UpdateInvoiceConfig upserts a company's invoicing configuration. The
// counter is only seeded on first insert; later updates never move it
// backwards.
func (r *Repository) UpdateInvoiceConfig(ctx context.Context, cfg InvoiceConfig) error {
	var dueDays pgtype.Int4
	if cfg.DueDays != nil {
		dueDays = pgtype.Int4{Int32: int32(*cfg.DueDays), Valid: true}
	}
	next := cfg.NextInvoiceNumber
	if next < 1 {
		next = 1
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO company_settings (company_id, terms_code, due_days, tax_rate_percent, invoice_prefix, next_invoice_number, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (company_id) DO UPDATE SET
  terms_code = EXCLUDED.terms_code,
  due_days = EXCLUDED.due_days,
  tax_rate_percent = EXCLUDED.tax_rate_percent,
  invoice_prefix = EXCLUDED.invoice_prefix,
  updated_at = NOW()`,
		cfg.CompanyID, cfg.TermsCode, dueDays, cfg.TaxRatePercent, cfg.InvoicePrefix, next)
	if err != nil {
		return fmt.Errorf("settings: update invoice config: %w", err)
	}
	return nil
}
