package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crechebooks/crechebooks/internal/config"
	"github.com/crechebooks/crechebooks/internal/database/repository"
)

func newVAT() *VATCalculator {
	return NewVATCalculator(config.Default().VAT)
}

func TestVatWorkedExample(t *testing.T) {
	t.Parallel()
	v := newVAT()

	// R1150.00 inclusive at 15% is R1000.00 exclusive plus R150.00 VAT.
	require.Equal(t, int64(100000), v.ExtractExclusiveFromInclusive(115000))
	require.Equal(t, int64(15000), v.ExtractVatFromInclusive(115000))
	require.Equal(t, int64(15000), v.CalculateVatFromExclusive(100000))
}

func TestVatRoundTripInvariant(t *testing.T) {
	t.Parallel()
	v := newVAT()

	// exclusive + vat must reassemble the inclusive amount exactly, cent
	// by cent, including awkward remainders.
	for _, inclusive := range []int64{0, 1, 2, 3, 7, 99, 100, 101, 113, 115,
		12345, 99999, 115000, 115001, 1_000_003, 987_654_321} {
		exclusive := v.ExtractExclusiveFromInclusive(inclusive)
		vat := v.ExtractVatFromInclusive(inclusive)
		require.Equal(t, inclusive, exclusive+vat, "inclusive=%d", inclusive)
	}
}

func TestVatBankersRounding(t *testing.T) {
	t.Parallel()
	v := newVAT()

	// 10 * 0.15 = 1.5 -> 2 (2 is even).
	require.Equal(t, int64(2), v.CalculateVatFromExclusive(10))
	// 30 * 0.15 = 4.5 -> 4 (4 is even).
	require.Equal(t, int64(4), v.CalculateVatFromExclusive(30))
	// 50 * 0.15 = 7.5 -> 8 (8 is even).
	require.Equal(t, int64(8), v.CalculateVatFromExclusive(50))
}

func TestVatAmountForType(t *testing.T) {
	t.Parallel()
	v := newVAT()

	require.Equal(t, int64(15000), v.AmountForType(repository.VATStandard, 115000))
	require.Equal(t, int64(0), v.AmountForType(repository.VATZeroRated, 115000))
	require.Equal(t, int64(0), v.AmountForType(repository.VATExempt, 115000))
	require.Equal(t, int64(0), v.AmountForType(repository.VATNone, 115000))
}

func TestVatInputOutput(t *testing.T) {
	t.Parallel()
	v := newVAT()

	require.Equal(t, int64(15000), v.CalculateOutputVat(115000, repository.VATStandard))
	require.Equal(t, int64(15000), v.CalculateInputVat(115000, repository.VATStandard, "4123456789"))
	// no supplier VAT number, no input VAT claim
	require.Equal(t, int64(0), v.CalculateInputVat(115000, repository.VATStandard, ""))
}

func TestClassifyVatType(t *testing.T) {
	t.Parallel()
	v := newVAT()

	tests := []struct {
		name        string
		accountCode string
		description string
		vatNumber   string
		want        string
	}{
		{"no supplier number defaults to no VAT", "8400", "WOOLWORTHS GROCERIES", "", repository.VATNone},
		{"childcare services are exempt", "1000", "MONTHLY CRECHE FEES", "4123456789", repository.VATExempt},
		{"interest is exempt", "1800", "BANK INTEREST RECEIVED", "4123456789", repository.VATExempt},
		{"fuel is zero rated", "8800", "ENGEN PETROL", "4123456789", repository.VATZeroRated},
		{"payroll range carries no VAT", "8100", "MARCH PAYROLL RUN", "4123456789", repository.VATNone},
		{"everything else is standard", "8200", "OFFICE PARK RENTAL", "4123456789", repository.VATStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, v.ClassifyVatType(tt.accountCode, tt.description, tt.vatNumber))
		})
	}
}

func TestValidateVatDetails(t *testing.T) {
	t.Parallel()
	v := newVAT()

	t.Run("large expense without supplier number is blocking", func(t *testing.T) {
		t.Parallel()
		out := v.ValidateVatDetails(VATDetails{
			AmountCents: 600_000, VATAmountCents: 0, VATType: repository.VATNone, IsExpense: true,
		})
		require.False(t, out.Valid)
		require.Len(t, out.Errors, 1)
	})

	t.Run("standard rated needs nonzero VAT", func(t *testing.T) {
		t.Parallel()
		out := v.ValidateVatDetails(VATDetails{
			AmountCents: 115000, VATAmountCents: 0, VATType: repository.VATStandard,
			SupplierVATNumber: "4123456789", IsExpense: true,
		})
		require.False(t, out.Valid)
		require.Contains(t, out.Errors[0], "nonzero")
	})

	t.Run("mismatched standard VAT is advisory", func(t *testing.T) {
		t.Parallel()
		out := v.ValidateVatDetails(VATDetails{
			AmountCents: 115000, VATAmountCents: 14000, VATType: repository.VATStandard,
			SupplierVATNumber: "4123456789", IsExpense: true,
		})
		require.True(t, out.Valid)
		require.NotEmpty(t, out.Warnings)
	})

	t.Run("nonzero VAT on exempt items is blocking", func(t *testing.T) {
		t.Parallel()
		out := v.ValidateVatDetails(VATDetails{
			AmountCents: 115000, VATAmountCents: 100, VATType: repository.VATExempt,
			SupplierVATNumber: "4123456789",
		})
		require.False(t, out.Valid)
	})

	t.Run("odd VAT number shape is advisory only", func(t *testing.T) {
		t.Parallel()
		out := v.ValidateVatDetails(VATDetails{
			AmountCents: 115000, VATAmountCents: 15000, VATType: repository.VATStandard,
			SupplierVATNumber: "12345", IsExpense: true,
		})
		require.True(t, out.Valid)
		require.NotEmpty(t, out.Warnings)
	})
}
