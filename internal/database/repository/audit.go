package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// AuditRepo is an append-only audit-log sink.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// LogAction appends one audit row. beforeValue and userID may be nil.
func (r *AuditRepo) LogAction(ctx context.Context, tenantID, entityType, entityID, action string, beforeValue *string, changeSummary string, userID *string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO audit_log(id, tenant_id, entity_type, entity_id, action, before_value, change_summary, user_id, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		uuid.NewString(), tenantID, entityType, entityID, action, beforeValue, changeSummary, userID)
	return err
}

// ListByEntity returns audit rows for one entity, oldest first.
func (r *AuditRepo) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, tenant_id, entity_type, entity_id, action, before_value, change_summary, user_id, created_at
	FROM audit_log WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	ORDER BY created_at, id`, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action,
			&e.BeforeValue, &e.ChangeSummary, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
