package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// Reversal link reasons.
const (
	ReasonManual       = "manual"
	ReasonAutoDetected = "auto_detected"
)

// Suggestions are bounded and auto-linking requires a high-confidence score.
const (
	maxSuggestions     = 100
	suggestionFloor    = 50
	autoLinkCutoff     = 90
	candidateWindowDay = 90
)

// ReversalService detects and links transactions that cancel each other.
type ReversalService struct {
	Transactions TransactionStore
	Audit        AuditLog
	Tolerances   Tolerances
	Log          *slog.Logger
}

// LinkOptions carries optional link metadata.
type LinkOptions struct {
	Reason string
	Note   string
	UserID *string
	Auto   bool
}

// ReversalSuggestion is one scored reversal/original candidate pair.
type ReversalSuggestion struct {
	ReversalID       string
	OriginalID       string
	Confidence       int
	AmountDeltaCents int64
	DaysApart        int
	DescriptionScore float64
}

// AutoLinkReport summarizes an auto-linking run.
type AutoLinkReport struct {
	Considered int
	Linked     int
	Skipped    int
	Failed     int
}

// ReversalSummary aggregates reversal activity, optionally date-bounded.
type ReversalSummary struct {
	TotalReversals           int
	AutoLinked               int
	ManualLinked             int
	PendingSuggestions       int
	TotalAmountReversedCents int64
}

// LinkReversal marks one transaction as reversing another. Amount mismatches
// and already-reconciled originals are logged, not blocked; re-linking an
// already-linked reversal is a conflict.
func (s *ReversalService) LinkReversal(ctx context.Context, tenantID, reversalID, originalID string, opts LinkOptions) error {
	if reversalID == originalID {
		return NewError(CodeBusinessRule, "a transaction cannot reverse itself")
	}

	reversal, err := s.Transactions.FindByID(ctx, tenantID, reversalID)
	if err != nil {
		return fmt.Errorf("find reversal transaction: %w", err)
	}
	if reversal == nil {
		return ErrNotFound("Transaction")
	}
	original, err := s.Transactions.FindByID(ctx, tenantID, originalID)
	if err != nil {
		return fmt.Errorf("find original transaction: %w", err)
	}
	if original == nil {
		return ErrNotFound("Transaction")
	}

	if reversal.IsReversal || reversal.ReversesTransactionID != nil {
		return NewError(CodeConflict, "transaction is already linked as a reversal").
			With("transaction_id", reversalID)
	}
	if reversal.IsReconciled {
		if err := s.Audit.LogAction(ctx, tenantID, "transaction", reversalID, "blocked",
			nil, "attempted reversal link on reconciled transaction", opts.UserID); err != nil {
			return fmt.Errorf("audit blocked attempt: %w", err)
		}
		return NewError(CodeForbidden, "transaction is reconciled and cannot be linked").
			With("transaction_id", reversalID)
	}

	log := logOrDefault(s.Log)
	if reversal.AmountCents != original.AmountCents {
		log.Warn("linking reversal with differing amount magnitudes",
			"reversal_id", reversalID, "original_id", originalID,
			"reversal_cents", reversal.AmountCents, "original_cents", original.AmountCents)
	}
	if original.IsReconciled {
		log.Warn("linking reversal to reconciled original",
			"reversal_id", reversalID, "original_id", originalID)
	}

	reason := opts.Reason
	if reason == "" {
		reason = ReasonManual
	}
	reversal.IsReversal = true
	reversal.ReversesTransactionID = &originalID
	reversal.ReversalReason = &reason
	reversal.ReversalAutoLinked = opts.Auto
	reversal.ReversalLinkedBy = opts.UserID
	if err := s.Transactions.Update(ctx, *reversal); err != nil {
		return fmt.Errorf("update reversal transaction: %w", err)
	}

	summary := fmt.Sprintf("linked as reversal of %s (%s)", originalID, reason)
	if opts.Note != "" {
		summary += ": " + opts.Note
	}
	return s.Audit.LogAction(ctx, tenantID, "transaction", reversalID, "link_reversal", nil, summary, opts.UserID)
}

// UnlinkReversal clears a reversal link. This is the explicit audited path
// that is allowed even on reconciled transactions.
func (s *ReversalService) UnlinkReversal(ctx context.Context, tenantID, reversalID string, userID *string, note string) error {
	reversal, err := s.Transactions.FindByID(ctx, tenantID, reversalID)
	if err != nil {
		return fmt.Errorf("find reversal transaction: %w", err)
	}
	if reversal == nil {
		return ErrNotFound("Transaction")
	}
	if !reversal.IsReversal && reversal.ReversesTransactionID == nil {
		return NewError(CodeBusinessRule, "transaction is not linked as a reversal").
			With("transaction_id", reversalID)
	}

	var linkedTo string
	if reversal.ReversesTransactionID != nil {
		linkedTo = *reversal.ReversesTransactionID
	}
	reversal.IsReversal = false
	reversal.ReversesTransactionID = nil
	reversal.ReversalReason = nil
	reversal.ReversalAutoLinked = false
	reversal.ReversalLinkedBy = nil
	if err := s.Transactions.Update(ctx, *reversal); err != nil {
		return fmt.Errorf("update reversal transaction: %w", err)
	}

	summary := fmt.Sprintf("unlinked reversal of %s", linkedTo)
	if note != "" {
		summary += ": " + note
	}
	return s.Audit.LogAction(ctx, tenantID, "transaction", reversalID, "unlink_reversal", nil, summary, userID)
}

// GetReversalsForTransaction returns the reversals pointing at one original.
func (s *ReversalService) GetReversalsForTransaction(ctx context.Context, tenantID, transactionID string) ([]repository.Transaction, error) {
	txn, err := s.Transactions.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if txn == nil {
		return nil, ErrNotFound("Transaction")
	}
	return s.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{ReversesID: transactionID})
}

// GetPendingReversalSuggestions scans unlinked debits and scores candidate
// originals by amount, date proximity and description similarity. Results
// are bounded and sorted descending by confidence.
func (s *ReversalService) GetPendingReversalSuggestions(ctx context.Context, tenantID string) ([]ReversalSuggestion, error) {
	debits, err := s.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{UnlinkedDebits: true})
	if err != nil {
		return nil, fmt.Errorf("load unlinked debits: %w", err)
	}

	var suggestions []ReversalSuggestion
	for _, d := range debits {
		candidates, err := s.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{
			DateFrom: d.Date.AddDate(0, 0, -candidateWindowDay),
			DateTo:   d.Date,
		})
		if err != nil {
			return nil, fmt.Errorf("load candidate originals: %w", err)
		}
		for _, c := range candidates {
			if !c.IsCredit || c.ID == d.ID || c.IsReversal {
				continue
			}
			sg, ok := s.scoreCandidate(d, c)
			if ok {
				suggestions = append(suggestions, sg)
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

// scoreCandidate scores one reversal/original pair out of 100: up to 50 for
// amount, 30 for date proximity, 20 for description similarity.
func (s *ReversalService) scoreCandidate(reversal, original repository.Transaction) (ReversalSuggestion, bool) {
	delta := reversal.AmountCents - original.AmountCents
	if delta < 0 {
		delta = -delta
	}

	score := 0
	switch {
	case delta == 0:
		score += 50
	case s.Tolerances.WithinTolerance(delta, original.AmountCents):
		score += 35
	default:
		return ReversalSuggestion{}, false
	}

	days := DaysApart(reversal.Date, original.Date)
	if days < 30 {
		score += 30 - days
	}

	descScore := DescriptionSimilarity(reversal.Description, original.Description)
	score += int(descScore * 20)

	if score < suggestionFloor {
		return ReversalSuggestion{}, false
	}
	return ReversalSuggestion{
		ReversalID:       reversal.ID,
		OriginalID:       original.ID,
		Confidence:       score,
		AmountDeltaCents: delta,
		DaysApart:        days,
		DescriptionScore: descScore,
	}, true
}

// AutoLinkReversals links every suggestion at or above the high-confidence
// cutoff, skipping reversals that were linked earlier in the same run.
func (s *ReversalService) AutoLinkReversals(ctx context.Context, tenantID string) (*AutoLinkReport, error) {
	suggestions, err := s.GetPendingReversalSuggestions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	report := &AutoLinkReport{}
	linked := make(map[string]bool)
	for _, sg := range suggestions {
		report.Considered++
		if sg.Confidence < autoLinkCutoff {
			report.Skipped++
			continue
		}
		if linked[sg.ReversalID] {
			report.Skipped++
			continue
		}
		err := s.LinkReversal(ctx, tenantID, sg.ReversalID, sg.OriginalID, LinkOptions{
			Reason: ReasonAutoDetected,
			Auto:   true,
		})
		if err != nil {
			report.Failed++
			logOrDefault(s.Log).Warn("auto-link failed",
				"reversal_id", sg.ReversalID, "original_id", sg.OriginalID, "error", err)
			continue
		}
		linked[sg.ReversalID] = true
		report.Linked++
	}
	return report, nil
}

// GetReversalSummary aggregates reversal counts, optionally date-bounded.
// Zero times mean "unbounded".
func (s *ReversalService) GetReversalSummary(ctx context.Context, tenantID string, from, to time.Time) (*ReversalSummary, error) {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, NewError(CodeBusinessRule, "summary period start is after its end")
	}

	reversals, err := s.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{
		OnlyReversals: true,
		DateFrom:      from,
		DateTo:        to,
	})
	if err != nil {
		return nil, fmt.Errorf("load reversals: %w", err)
	}

	summary := &ReversalSummary{}
	for _, r := range reversals {
		summary.TotalReversals++
		if r.ReversalAutoLinked {
			summary.AutoLinked++
		} else {
			summary.ManualLinked++
		}
		summary.TotalAmountReversedCents += r.AmountCents
	}

	pending, err := s.GetPendingReversalSuggestions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	summary.PendingSuggestions = len(pending)
	return summary, nil
}
