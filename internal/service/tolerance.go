package service

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/crechebooks/crechebooks/internal/config"
)

// Tolerances answers "close enough" questions for reconciliation matching.
// All methods are pure; the configuration is immutable once constructed.
type Tolerances struct {
	cfg config.ToleranceConfig
}

// NewTolerances builds a calculator from loaded configuration.
func NewTolerances(cfg config.ToleranceConfig) Tolerances {
	return Tolerances{cfg: cfg}
}

// EffectiveTolerance returns the acceptable variance in cents for the given
// amount. Large amounts scale by the percentage tolerance, rounded up, but
// never below the fixed tolerance.
func (t Tolerances) EffectiveTolerance(amountCents int64) int64 {
	abs := amountCents
	if abs < 0 {
		abs = -abs
	}
	if abs >= t.cfg.LargeAmountCents {
		scaled := decimal.NewFromInt(abs).
			Mul(decimal.NewFromFloat(t.cfg.Percentage)).
			Ceil().
			IntPart()
		if scaled > t.cfg.FixedAmountCents {
			return scaled
		}
	}
	return t.cfg.FixedAmountCents
}

// WithinTolerance reports whether a variance is acceptable for the amount.
func (t Tolerances) WithinTolerance(varianceCents, amountCents int64) bool {
	if varianceCents < 0 {
		varianceCents = -varianceCents
	}
	return varianceCents <= t.EffectiveTolerance(amountCents)
}

// BalanceWithinTolerance reports whether a balance variance is acceptable.
func (t Tolerances) BalanceWithinTolerance(varianceCents int64) bool {
	if varianceCents < 0 {
		varianceCents = -varianceCents
	}
	return varianceCents <= t.cfg.BalanceCents
}

// DateWithinTolerance reports whether two dates are close enough to match.
func (t Tolerances) DateWithinTolerance(a, b time.Time) bool {
	return DaysApart(a, b) <= t.cfg.DateDays
}

// DescriptionMatch reports whether two descriptions are similar enough,
// using normalized levenshtein similarity against the configured threshold.
func (t Tolerances) DescriptionMatch(a, b string) bool {
	return DescriptionSimilarity(a, b) >= t.cfg.DescriptionSimilarity
}

// PotentialBankFee reports whether an amount is small enough to be a bank fee.
func (t Tolerances) PotentialBankFee(amountCents int64) bool {
	if amountCents < 0 {
		amountCents = -amountCents
	}
	return amountCents > 0 && amountCents <= t.cfg.BankFeeCents
}

// DescriptionSimilarity returns a similarity score in [0,1]: 1 for identical
// strings (after trimming and case-folding), 0 for entirely dissimilar.
func DescriptionSimilarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// DaysApart returns the whole-day distance between two instants.
func DaysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
