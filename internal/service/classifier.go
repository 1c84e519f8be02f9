package service

import (
	"strings"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// Suggestion is one categorization candidate.
type Suggestion struct {
	AccountCode     string
	AccountName     string
	ConfidenceScore int
	Source          string
	VATType         string
}

// direction constraint for a category rule.
type direction int

const (
	anyDirection direction = iota
	creditOnly
	debitOnly
)

// categoryRule is one step of the ordered heuristic classifier: the first
// rule whose keywords and direction match wins.
type categoryRule struct {
	keywords   []string
	dir        direction
	code       string
	name       string
	confidence int
	vatType    string
}

var categoryRules = []categoryRule{
	{[]string{"fees", "tuition", "school fees", "enrolment", "registration"}, creditOnly, "1000", "Childcare Fees", 75, repository.VATExempt},
	{[]string{"subsidy", "grant", "dsd"}, creditOnly, "1100", "Government Subsidies", 70, repository.VATNone},
	{[]string{"interest"}, creditOnly, "1800", "Interest Received", 85, repository.VATExempt},
	{[]string{"salary", "salaries", "wages", "payroll", "paye", "uif"}, debitOnly, "8100", "Salaries and Wages", 85, repository.VATNone},
	{[]string{"rent", "lease"}, debitOnly, "8200", "Rent Paid", 85, repository.VATStandard},
	{[]string{"electricity", "water", "municipal", "rates"}, debitOnly, "8300", "Utilities", 80, repository.VATStandard},
	{[]string{"woolworths", "checkers", "spar", "pick n pay", "food", "groceries", "catering"}, debitOnly, "8400", "Groceries and Catering", 75, repository.VATStandard},
	{[]string{"stationery", "toys", "craft", "books", "educational"}, debitOnly, "8500", "Educational Materials", 75, repository.VATStandard},
	{[]string{"bank fee", "service fee", "account fee", "card fee", "charge"}, debitOnly, "8600", "Bank Charges", 90, repository.VATStandard},
	{[]string{"insurance", "assurance"}, debitOnly, "8700", "Insurance", 80, repository.VATStandard},
	{[]string{"petrol", "diesel", "fuel", "uber", "bolt", "transport"}, debitOnly, "8800", "Transport", 75, repository.VATZeroRated},
	{[]string{"cleaning", "sanitise", "detergent"}, debitOnly, "8850", "Cleaning Supplies", 70, repository.VATStandard},
}

// Classifier fallbacks for unrecognized payees.
const (
	fallbackConfidence = 30

	fallbackIncomeCode  = "1900"
	fallbackIncomeName  = "Other Income"
	fallbackExpenseCode = "8900"
	fallbackExpenseName = "General Expenses"
)

// Classify runs the heuristic keyword classifier over a description and
// transaction direction. It always returns a suggestion; unrecognized
// descriptions get a low-confidence fallback.
func Classify(description string, isCredit bool) Suggestion {
	d := strings.ToLower(description)
	for _, r := range categoryRules {
		if r.dir == creditOnly && !isCredit {
			continue
		}
		if r.dir == debitOnly && isCredit {
			continue
		}
		for _, k := range r.keywords {
			if strings.Contains(d, k) {
				return Suggestion{
					AccountCode:     r.code,
					AccountName:     r.name,
					ConfidenceScore: r.confidence,
					Source:          repository.SourceHeuristic,
					VATType:         r.vatType,
				}
			}
		}
	}
	if isCredit {
		return Suggestion{
			AccountCode:     fallbackIncomeCode,
			AccountName:     fallbackIncomeName,
			ConfidenceScore: fallbackConfidence,
			Source:          repository.SourceHeuristic,
			VATType:         repository.VATNone,
		}
	}
	return Suggestion{
		AccountCode:     fallbackExpenseCode,
		AccountName:     fallbackExpenseName,
		ConfidenceScore: fallbackConfidence,
		Source:          repository.SourceHeuristic,
		VATType:         repository.VATNone,
	}
}
