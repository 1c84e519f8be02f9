package repository

import (
	"context"
	"database/sql"
	"strings"
)

// PayeePatternRepo stores learned payee -> account mappings.
type PayeePatternRepo struct {
	db *sql.DB
}

func NewPayeePatternRepo(db *sql.DB) *PayeePatternRepo { return &PayeePatternRepo{db: db} }

const patternColumns = `id, tenant_id, payee_name, aliases, account_code, account_name,
 confidence_boost, match_count, expected_amount_cents, created_at, updated_at`

// FindByPayeeName looks up a pattern by normalized payee name. Returns
// nil, nil when no pattern exists under the tenant.
func (r *PayeePatternRepo) FindByPayeeName(ctx context.Context, tenantID, normalizedPayee string) (*PayeePattern, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM payee_patterns WHERE tenant_id = ? AND payee_name = ?`,
		tenantID, normalizedPayee)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// FindByAlias looks up a pattern whose alias list contains the normalized
// payee name. Aliases are newline-delimited, so the LIKE match is anchored on
// the delimiter. Returns nil, nil when no alias matches.
func (r *PayeePatternRepo) FindByAlias(ctx context.Context, tenantID, normalizedPayee string) (*PayeePattern, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM payee_patterns
		 WHERE tenant_id = ?
		   AND char(10) || aliases || char(10) LIKE '%' || char(10) || ? || char(10) || '%'
		 ORDER BY match_count DESC LIMIT 1`,
		tenantID, normalizedPayee)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PayeePatternRepo) Create(ctx context.Context, p PayeePattern) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO payee_patterns(
	 id, tenant_id, payee_name, aliases, account_code, account_name, confidence_boost,
	 match_count, expected_amount_cents, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		p.ID, p.TenantID, p.PayeeName, joinAliases(p.Aliases), p.AccountCode, p.AccountName,
		p.ConfidenceBoost, p.MatchCount, p.ExpectedAmountCents)
	return err
}

func (r *PayeePatternRepo) Update(ctx context.Context, p PayeePattern) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE payee_patterns SET
	 payee_name = ?, aliases = ?, account_code = ?, account_name = ?, confidence_boost = ?,
	 match_count = ?, expected_amount_cents = ?, updated_at = CURRENT_TIMESTAMP
	WHERE tenant_id = ? AND id = ?`,
		p.PayeeName, joinAliases(p.Aliases), p.AccountCode, p.AccountName, p.ConfidenceBoost,
		p.MatchCount, p.ExpectedAmountCents,
		p.TenantID, p.ID)
	return err
}

func scanPattern(row interface{ Scan(...any) error }) (*PayeePattern, error) {
	var p PayeePattern
	var aliases string
	err := row.Scan(
		&p.ID, &p.TenantID, &p.PayeeName, &aliases, &p.AccountCode, &p.AccountName,
		&p.ConfidenceBoost, &p.MatchCount, &p.ExpectedAmountCents, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Aliases = splitAliases(aliases)
	return &p, nil
}

// Aliases are stored as a single newline-joined column; payee names can
// contain commas.
func joinAliases(aliases []string) string { return strings.Join(aliases, "\n") }

func splitAliases(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
