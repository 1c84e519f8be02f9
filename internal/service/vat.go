package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crechebooks/crechebooks/internal/config"
	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// VATCalculator does exact decimal VAT arithmetic. All rounding is
// round-half-to-even at the cent level; binary floating point is never used
// for monetary values.
type VATCalculator struct {
	rate                 decimal.Decimal
	invoiceRequiredCents int64
}

// NewVATCalculator builds a calculator for the configured standard rate.
func NewVATCalculator(cfg config.VATConfig) *VATCalculator {
	return &VATCalculator{
		rate:                 decimal.NewFromFloat(cfg.StandardRate),
		invoiceRequiredCents: cfg.InvoiceRequiredCents,
	}
}

// ExtractExclusiveFromInclusive returns the VAT-exclusive portion of a
// VAT-inclusive amount: round(inclusive / (1 + rate)).
func (v *VATCalculator) ExtractExclusiveFromInclusive(inclusiveCents int64) int64 {
	return decimal.NewFromInt(inclusiveCents).
		Div(decimal.NewFromInt(1).Add(v.rate)).
		RoundBank(0).
		IntPart()
}

// ExtractVatFromInclusive returns the VAT portion of a VAT-inclusive amount.
// Invariant: exclusive + vat == inclusive for every input.
func (v *VATCalculator) ExtractVatFromInclusive(inclusiveCents int64) int64 {
	return inclusiveCents - v.ExtractExclusiveFromInclusive(inclusiveCents)
}

// CalculateVatFromExclusive returns round(exclusive * rate).
func (v *VATCalculator) CalculateVatFromExclusive(exclusiveCents int64) int64 {
	return decimal.NewFromInt(exclusiveCents).
		Mul(v.rate).
		RoundBank(0).
		IntPart()
}

// AmountForType returns the VAT portion of a VAT-inclusive amount for the
// given VAT type. Only standard-rated amounts carry VAT.
func (v *VATCalculator) AmountForType(vatType string, inclusiveCents int64) int64 {
	if vatType == repository.VATStandard {
		return v.ExtractVatFromInclusive(inclusiveCents)
	}
	return 0
}

// CalculateOutputVat returns the VAT owed on a sale (VAT-inclusive income).
func (v *VATCalculator) CalculateOutputVat(inclusiveCents int64, vatType string) int64 {
	return v.AmountForType(vatType, inclusiveCents)
}

// CalculateInputVat returns the VAT claimable on a purchase (VAT-inclusive
// expense). Input VAT is only claimable with a supplier VAT number.
func (v *VATCalculator) CalculateInputVat(inclusiveCents int64, vatType, supplierVATNumber string) int64 {
	if strings.TrimSpace(supplierVATNumber) == "" {
		return 0
	}
	return v.AmountForType(vatType, inclusiveCents)
}

// vatRule is one step of the ordered VAT-type classifier.
type vatRule struct {
	match  func(accountCode, description string) bool
	result string
}

var vatRules = []vatRule{
	// Financial services and interest are exempt.
	{keywordRule("interest", "bank interest", "dividend"), repository.VATExempt},
	// Educational and childcare services are exempt supplies.
	{keywordRule("tuition", "school fees", "creche", "childcare", "aftercare", "education"), repository.VATExempt},
	// Fuel levies are zero-rated.
	{keywordRule("petrol", "diesel", "fuel"), repository.VATZeroRated},
	// Basic foodstuffs are zero-rated.
	{keywordRule("brown bread", "maize", "milk", "eggs", "vegetables", "fruit"), repository.VATZeroRated},
	// Payroll accounts carry no VAT.
	{accountRangeRule(8000, 8199), repository.VATNone},
	{keywordRule("salary", "salaries", "wages", "paye", "uif", "sdl"), repository.VATNone},
}

func keywordRule(keywords ...string) func(string, string) bool {
	return func(_, description string) bool {
		d := strings.ToLower(description)
		for _, k := range keywords {
			if strings.Contains(d, k) {
				return true
			}
		}
		return false
	}
}

func accountRangeRule(low, high int) func(string, string) bool {
	return func(accountCode, _ string) bool {
		n, err := strconv.Atoi(strings.TrimSpace(accountCode))
		if err != nil {
			return false
		}
		return n >= low && n <= high
	}
}

// ClassifyVatType classifies a line into standard, zero_rated, exempt or
// no_vat. Without a supplier VAT number no input VAT can be claimed, so the
// classification is no_vat regardless of other signals.
func (v *VATCalculator) ClassifyVatType(accountCode, description, supplierVATNumber string) string {
	if strings.TrimSpace(supplierVATNumber) == "" {
		return repository.VATNone
	}
	for _, r := range vatRules {
		if r.match(accountCode, description) {
			return r.result
		}
	}
	return repository.VATStandard
}

// VATDetails is the input to compliance validation.
type VATDetails struct {
	AmountCents       int64 // VAT-inclusive
	VATAmountCents    int64
	VATType           string
	SupplierVATNumber string
	IsExpense         bool
}

// VATValidation separates blocking errors from advisory warnings.
type VATValidation struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

var vatNumberShape = regexp.MustCompile(`^4\d{9}$`)

// ValidateVatDetails enforces VAT compliance rules. A supplier VAT number is
// required once an expense exceeds the full-tax-invoice threshold; standard
// rated items must carry nonzero VAT. Shape problems with the VAT number are
// advisory only.
func (v *VATCalculator) ValidateVatDetails(in VATDetails) VATValidation {
	var out VATValidation

	vatNo := strings.TrimSpace(in.SupplierVATNumber)
	if in.IsExpense && in.AmountCents > v.invoiceRequiredCents && vatNo == "" {
		out.Errors = append(out.Errors, "supplier VAT number required for expenses above the tax-invoice threshold")
	}
	switch in.VATType {
	case repository.VATStandard:
		if in.VATAmountCents == 0 {
			out.Errors = append(out.Errors, "VAT amount must be nonzero on standard-rated items")
		} else if expected := v.ExtractVatFromInclusive(in.AmountCents); in.VATAmountCents != expected {
			out.Warnings = append(out.Warnings, "VAT amount does not match the standard rate for this amount")
		}
	case repository.VATZeroRated, repository.VATExempt, repository.VATNone:
		if in.VATAmountCents != 0 {
			out.Errors = append(out.Errors, "VAT amount must be zero on "+in.VATType+" items")
		}
	default:
		out.Errors = append(out.Errors, "unknown VAT type: "+in.VATType)
	}
	if vatNo != "" && !vatNumberShape.MatchString(vatNo) {
		out.Warnings = append(out.Warnings, "supplier VAT number does not look like a valid registration number")
	}

	out.Valid = len(out.Errors) == 0
	return out
}
