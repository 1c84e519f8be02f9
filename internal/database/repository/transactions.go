package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TransactionFilters defines list filters. All filters are ANDed; zero
// values mean "no filter".
type TransactionFilters struct {
	Status          string
	PayeeNormalized string // matched against LOWER(TRIM(payee_name))
	UnlinkedDebits  bool   // debits with no reversal linkage
	OnlyReversals   bool
	ReversesID      string // reversals pointing at this original
	DateFrom        time.Time
	DateTo          time.Time
	Limit           int
}

// TransactionRepo handles transactions. Every query is tenant-scoped; a row
// under a different tenant is indistinguishable from an absent row.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, tenant_id, payee_name, description, amount_cents, is_credit, date,
 status, is_reconciled, reconciled_at, is_reversal, reverses_transaction_id,
 reversal_reason, reversal_auto_linked, reversal_linked_by, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.TenantID, &t.PayeeName, &t.Description, &t.AmountCents, &t.IsCredit, &t.Date,
		&t.Status, &t.IsReconciled, &t.ReconciledAt, &t.IsReversal, &t.ReversesTransactionID,
		&t.ReversalReason, &t.ReversalAutoLinked, &t.ReversalLinkedBy,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindByID returns nil, nil when the transaction does not exist under the tenant.
func (r *TransactionRepo) FindByID(ctx context.Context, tenantID, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TransactionRepo) FindByIDs(ctx context.Context, tenantID string, ids []string) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE tenant_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) FindByTenant(ctx context.Context, tenantID string, f TransactionFilters) ([]Transaction, error) {
	where := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.PayeeNormalized != "" {
		where = append(where, "LOWER(TRIM(payee_name)) = ?")
		args = append(args, f.PayeeNormalized)
	}
	if f.UnlinkedDebits {
		where = append(where, "is_credit = 0 AND is_reversal = 0 AND reverses_transaction_id IS NULL")
	}
	if f.OnlyReversals {
		where = append(where, "is_reversal = 1")
	}
	if f.ReversesID != "" {
		where = append(where, "reverses_transaction_id = ?")
		args = append(args, f.ReversesID)
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.DateTo)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// Update persists every mutable field of the transaction, tenant-scoped.
func (r *TransactionRepo) Update(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET
	 payee_name = ?, description = ?, amount_cents = ?, is_credit = ?, date = ?, status = ?,
	 is_reconciled = ?, reconciled_at = ?, is_reversal = ?, reverses_transaction_id = ?,
	 reversal_reason = ?, reversal_auto_linked = ?, reversal_linked_by = ?,
	 updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`,
		t.PayeeName, t.Description, t.AmountCents, t.IsCredit, t.Date, t.Status,
		t.IsReconciled, t.ReconciledAt, t.IsReversal, t.ReversesTransactionID,
		t.ReversalReason, t.ReversalAutoLinked, t.ReversalLinkedBy,
		t.TenantID, t.ID)
	return err
}

func (r *TransactionRepo) CreateMany(ctx context.Context, ts []Transaction) error {
	for _, t := range ts {
		_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(
		 id, tenant_id, payee_name, description, amount_cents, is_credit, date, status,
		 is_reconciled, reconciled_at, is_reversal, reverses_transaction_id,
		 reversal_reason, reversal_auto_linked, reversal_linked_by, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			t.ID, t.TenantID, t.PayeeName, t.Description, t.AmountCents, t.IsCredit, t.Date, t.Status,
			t.IsReconciled, t.ReconciledAt, t.IsReversal, t.ReversesTransactionID,
			t.ReversalReason, t.ReversalAutoLinked, t.ReversalLinkedBy)
		if err != nil {
			return err
		}
	}
	return nil
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
