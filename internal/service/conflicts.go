package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// Resolution selects a conflict-resolution strategy.
type Resolution string

const (
	ResolutionUpdateAll          Resolution = "update_all"
	ResolutionJustThisOne        Resolution = "just_this_one"
	ResolutionSplitByAmount      Resolution = "split_by_amount"
	ResolutionSplitByDescription Resolution = "split_by_description"
)

// Conflict describes a disagreement between a user's new categorization and
// the stored payee pattern.
type Conflict struct {
	PatternID              string
	PayeeName              string // normalized
	ExistingAccountCode    string
	ExistingAccountName    string
	NewAccountCode         string
	NewAccountName         string
	AffectedTransactionIDs []string
	AffectedCount          int
}

// Page size used when collecting categorizations by account code.
const affectedPageSize = 1000

// ConflictResolver detects and resolves pattern/override disagreements.
type ConflictResolver struct {
	Transactions    TransactionStore
	Categorizations CategorizationStore
	Patterns        PayeePatternStore
	Audit           AuditLog
	Log             *slog.Logger
}

// DetectConflict returns nil when no pattern exists for the payee, or when
// the stored pattern already agrees with the new category.
func (r *ConflictResolver) DetectConflict(ctx context.Context, tenantID, payee, newCode, newName string) (*Conflict, error) {
	normalized := NormalizePayee(payee)
	pattern, err := r.Patterns.FindByPayeeName(ctx, tenantID, normalized)
	if err != nil {
		return nil, fmt.Errorf("find payee pattern: %w", err)
	}
	if pattern == nil || pattern.AccountCode == newCode {
		return nil, nil
	}

	affected, err := r.GetAffectedTransactions(ctx, tenantID, payee, pattern.AccountCode)
	if err != nil {
		return nil, err
	}
	return &Conflict{
		PatternID:              pattern.ID,
		PayeeName:              normalized,
		ExistingAccountCode:    pattern.AccountCode,
		ExistingAccountName:    pattern.AccountName,
		NewAccountCode:         newCode,
		NewAccountName:         newName,
		AffectedTransactionIDs: affected,
		AffectedCount:          len(affected),
	}, nil
}

// GetAffectedTransactions finds transactions whose latest categorization
// carries the given account code and whose payee (or description when the
// payee is absent) normalizes to the same string.
func (r *ConflictResolver) GetAffectedTransactions(ctx context.Context, tenantID, payee, accountCode string) ([]string, error) {
	normalized := NormalizePayee(payee)

	cats, err := r.Categorizations.FindWithFilters(ctx, tenantID, repository.CategorizationFilters{
		AccountCode: accountCode,
		Limit:       affectedPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("find categorizations by account: %w", err)
	}

	seen := make(map[string]bool, len(cats))
	ids := make([]string, 0, len(cats))
	for _, c := range cats {
		if !seen[c.TransactionID] {
			seen[c.TransactionID] = true
			ids = append(ids, c.TransactionID)
		}
	}

	txns, err := r.Transactions.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load owning transactions: %w", err)
	}

	var affected []string
	for _, t := range txns {
		key := t.PayeeName
		if key == "" {
			key = t.Description
		}
		if NormalizePayee(key) == normalized {
			affected = append(affected, t.ID)
		}
	}
	return affected, nil
}

// ResolveConflict applies the chosen strategy. update_all rewrites the
// pattern and every affected transaction; just_this_one leaves the pattern
// untouched. The split strategies are not implemented and surface an
// explicit unsupported error rather than degrading into a no-op.
func (r *ConflictResolver) ResolveConflict(ctx context.Context, tenantID, transactionID string, resolution Resolution, c Conflict, userID string) error {
	switch resolution {
	case ResolutionUpdateAll:
		return r.resolveUpdateAll(ctx, tenantID, c, userID)
	case ResolutionJustThisOne:
		return r.rewriteLatest(ctx, tenantID, transactionID, c.NewAccountCode, c.NewAccountName, userID)
	case ResolutionSplitByAmount, ResolutionSplitByDescription:
		logOrDefault(r.Log).Warn("unsupported conflict resolution requested", "resolution", resolution)
		return NewError(CodeUnsupported, "resolution %q is not implemented", resolution).
			With("resolution", string(resolution))
	default:
		return NewError(CodeBusinessRule, "unknown resolution %q", resolution)
	}
}

func (r *ConflictResolver) resolveUpdateAll(ctx context.Context, tenantID string, c Conflict, userID string) error {
	pattern, err := r.Patterns.FindByPayeeName(ctx, tenantID, c.PayeeName)
	if err != nil {
		return fmt.Errorf("find payee pattern: %w", err)
	}
	if pattern == nil {
		return ErrNotFound("Payee pattern")
	}

	before, _ := json.Marshal(pattern)
	beforeStr := string(before)
	pattern.AccountCode = c.NewAccountCode
	pattern.AccountName = c.NewAccountName
	if err := r.Patterns.Update(ctx, *pattern); err != nil {
		return fmt.Errorf("update payee pattern: %w", err)
	}
	if err := r.Audit.LogAction(ctx, tenantID, "payee_pattern", pattern.ID, "update_all",
		&beforeStr, fmt.Sprintf("pattern moved to %s (%s)", c.NewAccountCode, c.NewAccountName), &userID); err != nil {
		return fmt.Errorf("audit pattern update: %w", err)
	}

	// Per-transaction failures are logged and skipped, not fatal to the batch.
	for _, id := range c.AffectedTransactionIDs {
		if err := r.rewriteLatest(ctx, tenantID, id, c.NewAccountCode, c.NewAccountName, userID); err != nil {
			logOrDefault(r.Log).Warn("skipping affected transaction",
				"transaction_id", id, "error", err)
		}
	}
	return nil
}

// rewriteLatest moves a transaction's most-recent categorization to the new
// account, marking it as a user override. Creates one if none exists yet.
func (r *ConflictResolver) rewriteLatest(ctx context.Context, tenantID, transactionID, code, name, userID string) error {
	txn, err := r.Transactions.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return fmt.Errorf("find transaction: %w", err)
	}
	if txn == nil {
		return ErrNotFound("Transaction")
	}

	cats, err := r.Categorizations.FindByTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return fmt.Errorf("find categorizations: %w", err)
	}
	before := categorizationSnapshot(cats)

	if len(cats) > 0 {
		latest := cats[0]
		latest.AccountCode = code
		latest.AccountName = name
		latest.Source = repository.SourceUserOverride
		latest.ConfidenceScore = 100
		if err := r.Categorizations.Update(ctx, latest); err != nil {
			return fmt.Errorf("update categorization: %w", err)
		}
	} else {
		cat := repository.Categorization{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			TransactionID:   transactionID,
			AccountCode:     code,
			AccountName:     name,
			ConfidenceScore: 100,
			Source:          repository.SourceUserOverride,
			AmountCents:     txn.AmountCents,
			VATType:         repository.VATNone,
		}
		if err := r.Categorizations.Create(ctx, cat); err != nil {
			return fmt.Errorf("create categorization: %w", err)
		}
	}

	return r.Audit.LogAction(ctx, tenantID, "transaction", transactionID, "resolve_conflict",
		before, fmt.Sprintf("recategorized to %s (%s)", code, name), &userID)
}
