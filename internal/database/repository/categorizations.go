package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/crechebooks/crechebooks/internal/database"
)

// CategorizationFilters defines list filters for categorizations.
type CategorizationFilters struct {
	AccountCode string
	Source      string
	Limit       int
}

// CategorizationRepo handles categorization rows.
type CategorizationRepo struct {
	db *sql.DB
}

func NewCategorizationRepo(db *sql.DB) *CategorizationRepo { return &CategorizationRepo{db: db} }

const categorizationColumns = `id, tenant_id, transaction_id, account_code, account_name,
 confidence_score, source, is_split, amount_cents, vat_type, vat_amount_cents, created_at, updated_at`

func scanCategorization(row interface{ Scan(...any) error }) (*Categorization, error) {
	var c Categorization
	err := row.Scan(
		&c.ID, &c.TenantID, &c.TransactionID, &c.AccountCode, &c.AccountName,
		&c.ConfidenceScore, &c.Source, &c.IsSplit, &c.AmountCents, &c.VATType, &c.VATAmountCents,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByTransaction returns all categorizations for one transaction, newest first.
func (r *CategorizationRepo) FindByTransaction(ctx context.Context, tenantID, transactionID string) ([]Categorization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categorizationColumns+` FROM categorizations
		 WHERE tenant_id = ? AND transaction_id = ?
		 ORDER BY created_at DESC, id DESC`, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategorizations(rows)
}

func (r *CategorizationRepo) FindWithFilters(ctx context.Context, tenantID string, f CategorizationFilters) ([]Categorization, error) {
	where := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if f.AccountCode != "" {
		where = append(where, "account_code = ?")
		args = append(args, f.AccountCode)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}

	query := `SELECT ` + categorizationColumns + ` FROM categorizations WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategorizations(rows)
}

const insertCategorizationSQL = `
	INSERT INTO categorizations(
	 id, tenant_id, transaction_id, account_code, account_name, confidence_score, source,
	 is_split, amount_cents, vat_type, vat_amount_cents, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`

func (r *CategorizationRepo) Create(ctx context.Context, c Categorization) error {
	_, err := r.db.ExecContext(ctx, insertCategorizationSQL,
		c.ID, c.TenantID, c.TransactionID, c.AccountCode, c.AccountName, c.ConfidenceScore, c.Source,
		c.IsSplit, c.AmountCents, c.VATType, c.VATAmountCents)
	return err
}

// ReplaceForTransaction swaps a transaction's categorizations for the given
// set in one database transaction; a failed insert rolls the delete back.
func (r *CategorizationRepo) ReplaceForTransaction(ctx context.Context, tenantID, transactionID string, cats []Categorization) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM categorizations WHERE tenant_id = ? AND transaction_id = ?`,
			tenantID, transactionID); err != nil {
			return err
		}
		for _, c := range cats {
			if _, err := tx.ExecContext(ctx, insertCategorizationSQL,
				c.ID, c.TenantID, c.TransactionID, c.AccountCode, c.AccountName, c.ConfidenceScore, c.Source,
				c.IsSplit, c.AmountCents, c.VATType, c.VATAmountCents); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CategorizationRepo) Update(ctx context.Context, c Categorization) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE categorizations SET
	 account_code = ?, account_name = ?, confidence_score = ?, source = ?, is_split = ?,
	 amount_cents = ?, vat_type = ?, vat_amount_cents = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`,
		c.AccountCode, c.AccountName, c.ConfidenceScore, c.Source, c.IsSplit,
		c.AmountCents, c.VATType, c.VATAmountCents,
		c.TenantID, c.ID)
	return err
}

// DeleteByTransaction removes all categorizations for a transaction. Used
// when a user override replaces an existing split set.
func (r *CategorizationRepo) DeleteByTransaction(ctx context.Context, tenantID, transactionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM categorizations WHERE tenant_id = ? AND transaction_id = ?`, tenantID, transactionID)
	return err
}

func collectCategorizations(rows *sql.Rows) ([]Categorization, error) {
	var out []Categorization
	for rows.Next() {
		c, err := scanCategorization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
