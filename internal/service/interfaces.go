package service

import (
	"context"
	"strings"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// The services depend on these store interfaces, not on the sqlite
// implementations. Every method is tenant-scoped: a row belonging to a
// different tenant is indistinguishable from an absent row.

// TransactionStore provides tenant-scoped access to transactions.
type TransactionStore interface {
	FindByID(ctx context.Context, tenantID, id string) (*repository.Transaction, error)
	FindByIDs(ctx context.Context, tenantID string, ids []string) ([]repository.Transaction, error)
	FindByTenant(ctx context.Context, tenantID string, f repository.TransactionFilters) ([]repository.Transaction, error)
	Update(ctx context.Context, t repository.Transaction) error
	CreateMany(ctx context.Context, ts []repository.Transaction) error
}

// CategorizationStore provides tenant-scoped access to categorizations.
type CategorizationStore interface {
	FindByTransaction(ctx context.Context, tenantID, transactionID string) ([]repository.Categorization, error)
	FindWithFilters(ctx context.Context, tenantID string, f repository.CategorizationFilters) ([]repository.Categorization, error)
	Create(ctx context.Context, c repository.Categorization) error
	Update(ctx context.Context, c repository.Categorization) error
	DeleteByTransaction(ctx context.Context, tenantID, transactionID string) error
	// ReplaceForTransaction swaps a transaction's categorizations for the
	// given set atomically; on failure the prior set survives untouched.
	ReplaceForTransaction(ctx context.Context, tenantID, transactionID string, cats []repository.Categorization) error
}

// PayeePatternStore persists learned payee -> account mappings.
type PayeePatternStore interface {
	FindByPayeeName(ctx context.Context, tenantID, normalizedPayee string) (*repository.PayeePattern, error)
	FindByAlias(ctx context.Context, tenantID, normalizedPayee string) (*repository.PayeePattern, error)
	Create(ctx context.Context, p repository.PayeePattern) error
	Update(ctx context.Context, p repository.PayeePattern) error
}

// ThresholdStore persists amount-variation threshold configuration.
type ThresholdStore interface {
	FindByTenantPayee(ctx context.Context, tenantID, normalizedPayee string) (*repository.VariationThreshold, error)
	Upsert(ctx context.Context, t repository.VariationThreshold) error
}

// AuditLog is an append-only audit sink. Every categorization write, conflict
// resolution, reversal link and blocked attempt goes through it.
type AuditLog interface {
	LogAction(ctx context.Context, tenantID, entityType, entityID, action string, beforeValue *string, changeSummary string, userID *string) error
}

// NormalizePayee is the canonical payee key: trimmed and case-folded.
// Matching is exact on the normalized string; no fuzzy grouping.
func NormalizePayee(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
