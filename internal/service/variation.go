package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/crechebooks/crechebooks/internal/config"
	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// Recommended actions for a candidate amount.
const (
	ActionAutoCategorize = "auto_categorize"
	ActionFlagReview     = "flag_review"
	ActionBlock          = "block"
)

// Threshold types.
const (
	ThresholdPercentage = "percentage"
	ThresholdZScore     = "z_score"
	ThresholdAbsolute   = "absolute"
)

// At least this many historical samples are needed before any statistics are
// produced; fewer means "insufficient data", which is a nil result, not an
// error.
const minSamples = 3

// VariationResult is a derived, non-persisted anomaly assessment.
type VariationResult struct {
	SampleCount         int
	Mean                float64
	StdDev              float64
	ZScore              float64
	PercentageVariation float64
	ExceedsThreshold    bool
	RecommendedAction   string
}

// PayeeStatistics summarizes a payee's historical signed amounts, in cents.
type PayeeStatistics struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    int64
	Max    int64
}

// ThresholdCache is the injectable cache capability for resolved threshold
// configuration. It is process-local and never the source of truth.
type ThresholdCache interface {
	Get(key string) (repository.VariationThreshold, bool)
	Set(key string, t repository.VariationThreshold)
	Clear()
}

// MemoryThresholdCache is a mutex-guarded map implementation.
type MemoryThresholdCache struct {
	mu sync.RWMutex
	m  map[string]repository.VariationThreshold
}

func NewMemoryThresholdCache() *MemoryThresholdCache {
	return &MemoryThresholdCache{m: make(map[string]repository.VariationThreshold)}
}

func (c *MemoryThresholdCache) Get(key string) (repository.VariationThreshold, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.m[key]
	return t, ok
}

func (c *MemoryThresholdCache) Set(key string, t repository.VariationThreshold) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = t
}

func (c *MemoryThresholdCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]repository.VariationThreshold)
}

// VariationAnalyzer flags anomalous transaction amounts against a payee's
// history.
type VariationAnalyzer struct {
	Transactions TransactionStore
	Thresholds   ThresholdStore
	Patterns     PayeePatternStore
	Audit        AuditLog
	Cache        ThresholdCache
	Defaults     config.VariationConfig
	Log          *slog.Logger
}

// AnalyzeVariation compares a candidate amount against the payee's history.
// Under three historical samples the payee pattern's recurring-amount
// expectation stands in for the mean when one exists; with neither history
// nor expectation the result is nil, nil.
func (a *VariationAnalyzer) AnalyzeVariation(ctx context.Context, tenantID, payeeName string, candidateCents int64) (*VariationResult, error) {
	amounts, err := a.historicalAmounts(ctx, tenantID, payeeName)
	if err != nil {
		return nil, err
	}
	if len(amounts) < minSamples {
		expected, ok, err := a.expectedAmount(ctx, tenantID, payeeName)
		if err != nil || !ok {
			return nil, err
		}
		return a.assess(ctx, tenantID, payeeName, float64(candidateCents), expected, 0, len(amounts))
	}

	mean, stdDev := meanAndStdDev(amounts)
	return a.assess(ctx, tenantID, payeeName, float64(candidateCents), mean, stdDev, len(amounts))
}

func (a *VariationAnalyzer) assess(ctx context.Context, tenantID, payeeName string, candidate, mean, stdDev float64, samples int) (*VariationResult, error) {
	res := &VariationResult{
		SampleCount: samples,
		Mean:        mean,
		StdDev:      stdDev,
	}

	switch {
	case mean == 0 && candidate == 0:
		res.PercentageVariation = 0
	case mean == 0:
		res.PercentageVariation = math.Inf(1)
	default:
		res.PercentageVariation = math.Abs(candidate-mean) / math.Abs(mean) * 100
	}

	// All historical amounts identical: any deviation is maximal variance.
	if stdDev == 0 {
		if candidate == mean {
			res.ZScore = 0
		} else {
			res.ZScore = math.Inf(sign(candidate - mean))
		}
	} else {
		res.ZScore = (candidate - mean) / stdDev
	}

	threshold, err := a.resolveThreshold(ctx, tenantID, payeeName)
	if err != nil {
		return nil, err
	}
	res.RecommendedAction = decide(threshold, res, candidate, mean)
	res.ExceedsThreshold = res.RecommendedAction != ActionAutoCategorize
	return res, nil
}

// decide applies the decision table for the configured threshold type,
// top-down.
func decide(t repository.VariationThreshold, res *VariationResult, candidate, mean float64) string {
	absZ := math.Abs(res.ZScore)
	switch t.ThresholdType {
	case ThresholdZScore:
		limit := derefFloat(t.ZScore, 2.5)
		switch {
		case absZ <= limit:
			return ActionAutoCategorize
		case absZ < 3:
			return ActionFlagReview
		default:
			return ActionBlock
		}
	case ThresholdAbsolute:
		limit := float64(derefInt(t.AbsoluteCents, 0))
		delta := math.Abs(candidate - mean)
		switch {
		case delta <= limit:
			return ActionAutoCategorize
		case delta <= 2*limit:
			return ActionFlagReview
		default:
			return ActionBlock
		}
	default: // percentage
		limit := derefFloat(t.Percentage, 30)
		v := res.PercentageVariation
		switch {
		case v <= limit:
			return ActionAutoCategorize
		case v <= 100 && absZ < 3:
			return ActionFlagReview
		default:
			return ActionBlock
		}
	}
}

// GetPayeeStatistics returns historical statistics for a payee, or nil under
// the three-sample floor.
func (a *VariationAnalyzer) GetPayeeStatistics(ctx context.Context, tenantID, payeeName string) (*PayeeStatistics, error) {
	amounts, err := a.historicalAmounts(ctx, tenantID, payeeName)
	if err != nil {
		return nil, err
	}
	if len(amounts) < minSamples {
		return nil, nil
	}

	mean, stdDev := meanAndStdDev(amounts)
	stats := &PayeeStatistics{
		Count:  len(amounts),
		Mean:   mean,
		StdDev: stdDev,
		Min:    amounts[0],
		Max:    amounts[0],
	}
	for _, v := range amounts {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	return stats, nil
}

// GetThresholdConfig returns the resolved configuration for tenant+payee:
// payee-specific row, else tenant-wide row, else hard defaults.
func (a *VariationAnalyzer) GetThresholdConfig(ctx context.Context, tenantID, payeeName string) (repository.VariationThreshold, error) {
	return a.resolveThreshold(ctx, tenantID, payeeName)
}

// ThresholdInput is the write payload for SetThresholdConfig. The companion
// numeric field for the chosen type must be present.
type ThresholdInput struct {
	ThresholdType string
	Percentage    *float64
	ZScore        *float64
	AbsoluteCents *int64
}

// SetThresholdConfig validates and persists threshold configuration, then
// invalidates the cache wholesale.
func (a *VariationAnalyzer) SetThresholdConfig(ctx context.Context, tenantID, payeeName string, in ThresholdInput, userID string) error {
	switch in.ThresholdType {
	case ThresholdPercentage:
		if in.Percentage == nil {
			return NewError(CodeBusinessRule, "percentage required for percentage threshold")
		}
	case ThresholdZScore:
		if in.ZScore == nil {
			return NewError(CodeBusinessRule, "z-score required for z-score threshold")
		}
	case ThresholdAbsolute:
		if in.AbsoluteCents == nil {
			return NewError(CodeBusinessRule, "absolute cents required for absolute threshold")
		}
	default:
		return NewError(CodeBusinessRule, "unknown threshold type %q", in.ThresholdType)
	}

	row := repository.VariationThreshold{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		PayeeName:     NormalizePayee(payeeName),
		ThresholdType: in.ThresholdType,
		Percentage:    in.Percentage,
		ZScore:        in.ZScore,
		AbsoluteCents: in.AbsoluteCents,
	}
	if err := a.Thresholds.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert threshold: %w", err)
	}
	a.Cache.Clear()

	entityID := tenantID
	if row.PayeeName != "" {
		entityID = tenantID + ":" + row.PayeeName
	}
	return a.Audit.LogAction(ctx, tenantID, "variation_threshold", entityID, "set_threshold",
		nil, fmt.Sprintf("threshold type %s configured", in.ThresholdType), &userID)
}

// ClearCache resets the in-memory configuration cache to defaults.
func (a *VariationAnalyzer) ClearCache() {
	a.Cache.Clear()
}

// expectedAmount returns the payee pattern's recurring-amount expectation,
// when the pattern exists and carries one.
func (a *VariationAnalyzer) expectedAmount(ctx context.Context, tenantID, payeeName string) (float64, bool, error) {
	if a.Patterns == nil {
		return 0, false, nil
	}
	p, err := a.Patterns.FindByPayeeName(ctx, tenantID, NormalizePayee(payeeName))
	if err != nil {
		return 0, false, fmt.Errorf("load payee pattern: %w", err)
	}
	if p == nil || p.ExpectedAmountCents == nil {
		return 0, false, nil
	}
	return float64(*p.ExpectedAmountCents), true, nil
}

func (a *VariationAnalyzer) historicalAmounts(ctx context.Context, tenantID, payeeName string) ([]int64, error) {
	txns, err := a.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{
		PayeeNormalized: NormalizePayee(payeeName),
	})
	if err != nil {
		return nil, fmt.Errorf("load payee history: %w", err)
	}
	amounts := make([]int64, 0, len(txns))
	for _, t := range txns {
		amounts = append(amounts, t.SignedCents())
	}
	return amounts, nil
}

func (a *VariationAnalyzer) resolveThreshold(ctx context.Context, tenantID, payeeName string) (repository.VariationThreshold, error) {
	normalized := NormalizePayee(payeeName)
	key := tenantID + "|" + normalized
	if cached, ok := a.Cache.Get(key); ok {
		return cached, nil
	}

	// payee-specific row first, then the tenant-wide row
	for _, payee := range []string{normalized, ""} {
		row, err := a.Thresholds.FindByTenantPayee(ctx, tenantID, payee)
		if err != nil {
			return repository.VariationThreshold{}, fmt.Errorf("load threshold config: %w", err)
		}
		if row != nil {
			a.Cache.Set(key, *row)
			return *row, nil
		}
		if payee == "" {
			break
		}
	}

	pct := a.Defaults.DefaultPercentage
	if pct <= 0 {
		pct = 30
	}
	def := repository.VariationThreshold{
		TenantID:      tenantID,
		PayeeName:     normalized,
		ThresholdType: ThresholdPercentage,
		Percentage:    &pct,
	}
	a.Cache.Set(key, def)
	return def, nil
}

// meanAndStdDev returns the population mean and standard deviation.
func meanAndStdDev(amounts []int64) (float64, float64) {
	var sum float64
	for _, v := range amounts {
		sum += float64(v)
	}
	mean := sum / float64(len(amounts))

	var sq float64
	for _, v := range amounts {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(amounts)))
}

func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}

func derefFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func derefInt(p *int64, def int64) int64 {
	if p != nil {
		return *p
	}
	return def
}
