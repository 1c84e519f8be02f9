package repository

import (
	"context"
	"database/sql"
)

// ThresholdRepo stores per-tenant (optionally per-payee) variation thresholds.
type ThresholdRepo struct {
	db *sql.DB
}

func NewThresholdRepo(db *sql.DB) *ThresholdRepo { return &ThresholdRepo{db: db} }

const thresholdColumns = `id, tenant_id, payee_name, threshold_type, percentage, z_score,
 absolute_cents, created_at, updated_at`

// FindByTenantPayee returns the threshold row for the exact tenant+payee
// pair (payee empty for the tenant-wide row), or nil, nil when absent.
func (r *ThresholdRepo) FindByTenantPayee(ctx context.Context, tenantID, normalizedPayee string) (*VariationThreshold, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+thresholdColumns+` FROM variation_thresholds WHERE tenant_id = ? AND payee_name = ?`,
		tenantID, normalizedPayee)
	var t VariationThreshold
	err := row.Scan(&t.ID, &t.TenantID, &t.PayeeName, &t.ThresholdType,
		&t.Percentage, &t.ZScore, &t.AbsoluteCents, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ThresholdRepo) Upsert(ctx context.Context, t VariationThreshold) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO variation_thresholds(
	 id, tenant_id, payee_name, threshold_type, percentage, z_score, absolute_cents, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(tenant_id, payee_name) DO UPDATE SET
	 threshold_type = excluded.threshold_type,
	 percentage = excluded.percentage,
	 z_score = excluded.z_score,
	 absolute_cents = excluded.absolute_cents,
	 updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.TenantID, t.PayeeName, t.ThresholdType, t.Percentage, t.ZScore, t.AbsoluteCents)
	return err
}
