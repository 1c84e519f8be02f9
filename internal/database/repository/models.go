package repository

import "time"

// Transaction lifecycle statuses.
const (
	StatusPending        = "pending"
	StatusCategorized    = "categorized"
	StatusReviewRequired = "review_required"
	StatusSynced         = "synced"
)

// Categorization sources.
const (
	SourceRuleBased    = "rule_based"
	SourceHeuristic    = "heuristic"
	SourceUserOverride = "user_override"
)

// VAT types.
const (
	VATStandard  = "standard"
	VATZeroRated = "zero_rated"
	VATExempt    = "exempt"
	VATNone      = "no_vat"
)

// Transaction represents a bank transaction row. AmountCents is an unsigned
// magnitude; direction is carried by IsCredit.
type Transaction struct {
	ID                    string
	TenantID              string
	PayeeName             string
	Description           string
	AmountCents           int64
	IsCredit              bool
	Date                  time.Time
	Status                string
	IsReconciled          bool
	ReconciledAt          *time.Time
	IsReversal            bool
	ReversesTransactionID *string
	ReversalReason        *string
	ReversalAutoLinked    bool
	ReversalLinkedBy      *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SignedCents returns the amount with its direction applied: positive for
// credits, negative for debits.
func (t Transaction) SignedCents() int64 {
	if t.IsCredit {
		return t.AmountCents
	}
	return -t.AmountCents
}

// Categorization assigns a ledger account to a transaction (or to one slice
// of a split transaction).
type Categorization struct {
	ID              string
	TenantID        string
	TransactionID   string
	AccountCode     string
	AccountName     string
	ConfidenceScore int
	Source          string
	IsSplit         bool
	AmountCents     int64
	VATType         string
	VATAmountCents  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PayeePattern is a learned payee -> account mapping. PayeeName is stored
// normalized (trimmed, lower-cased).
type PayeePattern struct {
	ID                  string
	TenantID            string
	PayeeName           string
	Aliases             []string
	AccountCode         string
	AccountName         string
	ConfidenceBoost     int
	MatchCount          int64
	ExpectedAmountCents *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VariationThreshold is the per-tenant (optionally per-payee) amount-variation
// configuration. Exactly one of Percentage, ZScore, AbsoluteCents is expected
// to be set, matching ThresholdType.
type VariationThreshold struct {
	ID            string
	TenantID      string
	PayeeName     string // empty = tenant-wide
	ThresholdType string // percentage | z_score | absolute
	Percentage    *float64
	ZScore        *float64
	AbsoluteCents *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditEntry is an immutable audit-log row.
type AuditEntry struct {
	ID            string
	TenantID      string
	EntityType    string
	EntityID      string
	Action        string
	BeforeValue   *string
	ChangeSummary string
	UserID        *string
	CreatedAt     time.Time
}
