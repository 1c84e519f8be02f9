package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// Pattern matches start from this base score; the pattern's confidence boost
// is added on top, capped at 100.
const patternBaseScore = 75

// Learned patterns start small and grow with every agreeing categorization.
const (
	initialPatternBoost = 5
	maxPatternBoost     = 25
)

// Result statuses for a single categorization.
const (
	ResultAutoApplied    = "auto_applied"
	ResultReviewRequired = "review_required"
)

// CategorizerService assigns ledger accounts to transactions using learned
// payee patterns with a heuristic keyword classifier as fallback.
type CategorizerService struct {
	Transactions    TransactionStore
	Categorizations CategorizationStore
	Patterns        PayeePatternStore
	Audit           AuditLog
	VAT             *VATCalculator
	Log             *slog.Logger

	// AcceptThreshold separates auto-applied from review-required.
	AcceptThreshold int
}

// CategorizationResult is the outcome for one transaction.
type CategorizationResult struct {
	Status          string
	AccountCode     string
	AccountName     string
	ConfidenceScore int
	Source          string
}

// BatchItem is the per-item outcome of a batch run: either a result or an
// error string, never both.
type BatchItem struct {
	TransactionID string
	Result        *CategorizationResult
	Error         string
}

// BatchResult aggregates a batch categorization run.
type BatchResult struct {
	TotalProcessed  int
	AutoCategorized int
	ReviewRequired  int
	Failed          int
	MeanConfidence  float64
	Items           []BatchItem
}

func (s *CategorizerService) threshold() int {
	if s.AcceptThreshold > 0 {
		return s.AcceptThreshold
	}
	return 80
}

// CategorizeTransaction categorizes one transaction. A learned payee pattern
// wins over the heuristic classifier; the result status reflects whether the
// confidence cleared the acceptance threshold.
func (s *CategorizerService) CategorizeTransaction(ctx context.Context, tenantID, transactionID string) (*CategorizationResult, error) {
	txn, err := s.Transactions.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if txn == nil {
		return nil, ErrNotFound("Transaction")
	}
	if txn.IsReconciled {
		if err := s.Audit.LogAction(ctx, tenantID, "transaction", txn.ID, "blocked",
			nil, "attempted categorization of reconciled transaction", nil); err != nil {
			return nil, fmt.Errorf("audit blocked attempt: %w", err)
		}
		return nil, NewError(CodeForbidden, "transaction is reconciled and cannot be categorized").
			With("transaction_id", txn.ID)
	}

	sugg := Classify(txn.Description, txn.IsCredit)

	pattern, err := s.findPattern(ctx, tenantID, txn.PayeeName)
	if err != nil {
		return nil, fmt.Errorf("find payee pattern: %w", err)
	}
	if pattern != nil {
		sugg.AccountCode = pattern.AccountCode
		sugg.AccountName = pattern.AccountName
		sugg.Source = repository.SourceRuleBased
		sugg.ConfidenceScore = patternBaseScore + pattern.ConfidenceBoost
		if sugg.ConfidenceScore > 100 {
			sugg.ConfidenceScore = 100
		}
		pattern.MatchCount++
		if err := s.Patterns.Update(ctx, *pattern); err != nil {
			return nil, fmt.Errorf("update pattern match count: %w", err)
		}
	}

	result := &CategorizationResult{
		Status:          ResultAutoApplied,
		AccountCode:     sugg.AccountCode,
		AccountName:     sugg.AccountName,
		ConfidenceScore: sugg.ConfidenceScore,
		Source:          sugg.Source,
	}
	txn.Status = repository.StatusCategorized
	if sugg.ConfidenceScore < s.threshold() {
		result.Status = ResultReviewRequired
		txn.Status = repository.StatusReviewRequired
	}

	cat := repository.Categorization{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		TransactionID:   txn.ID,
		AccountCode:     sugg.AccountCode,
		AccountName:     sugg.AccountName,
		ConfidenceScore: sugg.ConfidenceScore,
		Source:          sugg.Source,
		AmountCents:     txn.AmountCents,
		VATType:         sugg.VATType,
		VATAmountCents:  s.VAT.AmountForType(sugg.VATType, txn.AmountCents),
	}
	if err := s.Categorizations.Create(ctx, cat); err != nil {
		return nil, fmt.Errorf("create categorization: %w", err)
	}
	if err := s.Transactions.Update(ctx, *txn); err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}

	summary := fmt.Sprintf("categorized as %s (%s), confidence %d, %s",
		sugg.AccountCode, sugg.AccountName, sugg.ConfidenceScore, result.Status)
	if err := s.Audit.LogAction(ctx, tenantID, "transaction", txn.ID, "categorize", nil, summary, nil); err != nil {
		return nil, fmt.Errorf("audit categorize: %w", err)
	}
	if pattern == nil && result.Status == ResultAutoApplied {
		if err := s.learnPattern(ctx, tenantID, txn.PayeeName, sugg.AccountCode, sugg.AccountName, txn.AmountCents); err != nil {
			return nil, fmt.Errorf("learn payee pattern: %w", err)
		}
	}
	return result, nil
}

// findPattern resolves the payee's pattern by its primary name first, then by
// alias.
func (s *CategorizerService) findPattern(ctx context.Context, tenantID, payee string) (*repository.PayeePattern, error) {
	normalized := NormalizePayee(payee)
	p, err := s.Patterns.FindByPayeeName(ctx, tenantID, normalized)
	if err != nil || p != nil {
		return p, err
	}
	return s.Patterns.FindByAlias(ctx, tenantID, normalized)
}

// learnPattern records or reinforces the payee -> account mapping after a
// confident categorization. A disagreeing existing pattern is left alone;
// moving it is the conflict resolver's job.
func (s *CategorizerService) learnPattern(ctx context.Context, tenantID, payee, code, name string, amountCents int64) error {
	normalized := NormalizePayee(payee)
	if normalized == "" {
		return nil
	}
	existing, err := s.Patterns.FindByPayeeName(ctx, tenantID, normalized)
	if err != nil {
		return err
	}
	if existing == nil {
		expected := amountCents
		return s.Patterns.Create(ctx, repository.PayeePattern{
			ID:                  uuid.NewString(),
			TenantID:            tenantID,
			PayeeName:           normalized,
			AccountCode:         code,
			AccountName:         name,
			ConfidenceBoost:     initialPatternBoost,
			MatchCount:          1,
			ExpectedAmountCents: &expected,
		})
	}
	if existing.AccountCode != code {
		return nil
	}
	if existing.ConfidenceBoost < maxPatternBoost {
		existing.ConfidenceBoost++
	}
	existing.MatchCount++
	return s.Patterns.Update(ctx, *existing)
}

// CategorizeTransactions runs a sequential batch with per-item isolation:
// one failing id is recorded and the rest still run. Cancellation is checked
// between items, never mid-item.
func (s *CategorizerService) CategorizeTransactions(ctx context.Context, tenantID string, ids []string) (*BatchResult, error) {
	batch := &BatchResult{Items: make([]BatchItem, 0, len(ids))}
	confidenceSum := 0

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		batch.TotalProcessed++

		res, err := s.CategorizeTransaction(ctx, tenantID, id)
		if err != nil {
			batch.Failed++
			msg := err.Error()
			var se *Error
			if errors.As(err, &se) {
				msg = se.Message
			}
			batch.Items = append(batch.Items, BatchItem{TransactionID: id, Error: msg})
			logOrDefault(s.Log).Warn("batch categorization item failed", "transaction_id", id, "error", err)
			continue
		}
		if res.Status == ResultAutoApplied {
			batch.AutoCategorized++
		} else {
			batch.ReviewRequired++
		}
		confidenceSum += res.ConfidenceScore
		batch.Items = append(batch.Items, BatchItem{TransactionID: id, Result: res})
	}

	if succeeded := batch.TotalProcessed - batch.Failed; succeeded > 0 {
		batch.MeanConfidence = float64(confidenceSum) / float64(succeeded)
	}
	return batch, nil
}

// SplitInput is one slice of a split categorization.
type SplitInput struct {
	AccountCode string
	AccountName string
	AmountCents int64
	VATType     string
}

// UpdateCategorizationInput is the user-override payload.
type UpdateCategorizationInput struct {
	AccountCode string
	AccountName string
	VATType     string
	IsSplit     bool
	Splits      []SplitInput
}

// UpdateCategorization applies a user override. Split amounts must sum to the
// transaction's exact amount; mismatches are rejected, never silently fixed.
func (s *CategorizerService) UpdateCategorization(ctx context.Context, tenantID, transactionID string, in UpdateCategorizationInput, userID string) error {
	txn, err := s.Transactions.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return fmt.Errorf("find transaction: %w", err)
	}
	if txn == nil {
		return ErrNotFound("Transaction")
	}
	if txn.IsReconciled {
		if err := s.Audit.LogAction(ctx, tenantID, "transaction", txn.ID, "blocked",
			nil, "attempted categorization change on reconciled transaction", &userID); err != nil {
			return fmt.Errorf("audit blocked attempt: %w", err)
		}
		return NewError(CodeForbidden, "transaction is reconciled and cannot be recategorized").
			With("transaction_id", txn.ID)
	}

	existing, err := s.Categorizations.FindByTransaction(ctx, tenantID, transactionID)
	if err != nil {
		return fmt.Errorf("find categorizations: %w", err)
	}
	before := categorizationSnapshot(existing)

	if in.IsSplit {
		var sum int64
		for _, sp := range in.Splits {
			sum += sp.AmountCents
		}
		if sum != txn.AmountCents {
			return NewError(CodeBusinessRule, "split amounts must equal the transaction amount").
				With("expected_cents", txn.AmountCents).
				With("actual_cents", sum)
		}
		cats := make([]repository.Categorization, 0, len(in.Splits))
		for _, sp := range in.Splits {
			cats = append(cats, repository.Categorization{
				ID:              uuid.NewString(),
				TenantID:        tenantID,
				TransactionID:   transactionID,
				AccountCode:     sp.AccountCode,
				AccountName:     sp.AccountName,
				ConfidenceScore: 100,
				Source:          repository.SourceUserOverride,
				IsSplit:         true,
				AmountCents:     sp.AmountCents,
				VATType:         sp.VATType,
				VATAmountCents:  s.VAT.AmountForType(sp.VATType, sp.AmountCents),
			})
		}
		if err := s.Categorizations.ReplaceForTransaction(ctx, tenantID, transactionID, cats); err != nil {
			return fmt.Errorf("replace split categorizations: %w", err)
		}
	} else {
		cat := repository.Categorization{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			TransactionID:   transactionID,
			AccountCode:     in.AccountCode,
			AccountName:     in.AccountName,
			ConfidenceScore: 100,
			Source:          repository.SourceUserOverride,
			AmountCents:     txn.AmountCents,
			VATType:         in.VATType,
			VATAmountCents:  s.VAT.AmountForType(in.VATType, txn.AmountCents),
		}
		if len(existing) > 0 {
			cat.ID = existing[0].ID
			if err := s.Categorizations.Update(ctx, cat); err != nil {
				return fmt.Errorf("update categorization: %w", err)
			}
		} else if err := s.Categorizations.Create(ctx, cat); err != nil {
			return fmt.Errorf("create categorization: %w", err)
		}
	}

	txn.Status = repository.StatusCategorized
	if err := s.Transactions.Update(ctx, *txn); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	summary := fmt.Sprintf("user override to %s (%s)", in.AccountCode, in.AccountName)
	if in.IsSplit {
		summary = fmt.Sprintf("user override, split into %d categorizations", len(in.Splits))
	}
	if err := s.Audit.LogAction(ctx, tenantID, "transaction", transactionID, "update_categorization",
		before, summary, &userID); err != nil {
		return fmt.Errorf("audit update: %w", err)
	}
	if !in.IsSplit {
		if err := s.learnPattern(ctx, tenantID, txn.PayeeName, in.AccountCode, in.AccountName, txn.AmountCents); err != nil {
			return fmt.Errorf("learn payee pattern: %w", err)
		}
	}
	return nil
}

// GetSuggestions returns pattern and heuristic candidates together, sorted
// descending by confidence.
func (s *CategorizerService) GetSuggestions(ctx context.Context, tenantID, transactionID string) ([]Suggestion, error) {
	txn, err := s.Transactions.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if txn == nil {
		return nil, ErrNotFound("Transaction")
	}

	suggestions := []Suggestion{Classify(txn.Description, txn.IsCredit)}

	pattern, err := s.findPattern(ctx, tenantID, txn.PayeeName)
	if err != nil {
		return nil, fmt.Errorf("find payee pattern: %w", err)
	}
	if pattern != nil {
		score := patternBaseScore + pattern.ConfidenceBoost
		if score > 100 {
			score = 100
		}
		suggestions = append(suggestions, Suggestion{
			AccountCode:     pattern.AccountCode,
			AccountName:     pattern.AccountName,
			ConfidenceScore: score,
			Source:          repository.SourceRuleBased,
			VATType:         Classify(txn.Description, txn.IsCredit).VATType,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].ConfidenceScore > suggestions[j].ConfidenceScore
	})
	return suggestions, nil
}

// categorizationSnapshot serializes the current categorizations for the
// audit before-value. Returns nil when there is nothing to snapshot.
func categorizationSnapshot(cats []repository.Categorization) *string {
	if len(cats) == 0 {
		return nil
	}
	b, err := json.Marshal(cats)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
