package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		description string
		isCredit    bool
		wantCode    string
		wantConf    int
	}{
		{"fee income", "SCHOOL FEES MARCH - N DLAMINI", true, "1000", 75},
		{"subsidy income", "DSD SUBSIDY Q1", true, "1100", 70},
		{"salaries", "SALARIES EFT BATCH", false, "8100", 85},
		{"rent", "OFFICE PARK RENT APRIL", false, "8200", 85},
		{"groceries", "PICK N PAY CLAREMONT", false, "8400", 75},
		{"bank charge", "MONTHLY ACCOUNT FEE", false, "8600", 90},
		{"unknown debit falls back", "XZQR HOLDINGS 4417", false, "8900", fallbackConfidence},
		{"unknown credit falls back", "TRANSFER IN 98217", true, "1900", fallbackConfidence},
		{"credit keywords do not fire on debits", "REGISTRATION BOARD PAYMENT", false, "8900", fallbackConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.description, tt.isCredit)
			require.Equal(t, tt.wantCode, got.AccountCode)
			require.Equal(t, tt.wantConf, got.ConfidenceScore)
			require.Equal(t, repository.SourceHeuristic, got.Source)
		})
	}
}

func TestClassifyRuleOrderIsStable(t *testing.T) {
	t.Parallel()

	// "uber" and "fuel" both live in the transport rule; a description
	// matching an earlier rule must win over a later one.
	got := Classify("SALARY PLUS FUEL ALLOWANCE", false)
	require.Equal(t, "8100", got.AccountCode)
}
