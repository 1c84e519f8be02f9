package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crechebooks/crechebooks/internal/config"
)

func defaultTolerances() Tolerances {
	return NewTolerances(config.Default().Tolerance)
}

func TestEffectiveTolerance(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	tests := []struct {
		name        string
		amountCents int64
		want        int64
	}{
		{"small amount uses fixed tolerance", 5000, 1},
		{"just below large threshold", 999_999, 1},
		{"at large threshold scales by percentage", 1_000_000, 5000},
		{"two million scales to ten thousand", 2_000_000, 10000},
		{"negative amounts use magnitude", -2_000_000, 10000},
		{"percentage rounds up", 1_000_100, 5001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tol.EffectiveTolerance(tt.amountCents))
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	require.True(t, tol.WithinTolerance(1, 5000))
	require.False(t, tol.WithinTolerance(2, 5000))
	require.True(t, tol.WithinTolerance(-1, 5000))
	require.True(t, tol.WithinTolerance(10000, 2_000_000))
	require.False(t, tol.WithinTolerance(10001, 2_000_000))
}

func TestBalanceWithinTolerance(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	require.True(t, tol.BalanceWithinTolerance(100))
	require.False(t, tol.BalanceWithinTolerance(101))
	require.True(t, tol.BalanceWithinTolerance(-100))
}

func TestDateWithinTolerance(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.True(t, tol.DateWithinTolerance(base, base))
	require.True(t, tol.DateWithinTolerance(base, base.AddDate(0, 0, 1)))
	require.False(t, tol.DateWithinTolerance(base, base.AddDate(0, 0, 2)))
}

func TestPotentialBankFee(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	require.False(t, tol.PotentialBankFee(0))
	require.True(t, tol.PotentialBankFee(500))
	require.True(t, tol.PotentialBankFee(-350))
	require.False(t, tol.PotentialBankFee(501))
}

func TestDescriptionMatch(t *testing.T) {
	t.Parallel()
	tol := defaultTolerances()

	require.True(t, tol.DescriptionMatch("WOOLWORTHS SANDTON", "woolworths sandton"))
	require.True(t, tol.DescriptionMatch("FNB APP PAYMENT", "FNB APP PAYMENTS"))
	require.False(t, tol.DescriptionMatch("SALARY MARCH", "MUNICIPAL RATES"))
}

func TestDescriptionSimilarityBounds(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, DescriptionSimilarity("", ""))
	require.Equal(t, 1.0, DescriptionSimilarity("abc", " ABC "))
	require.InDelta(t, 0.0, DescriptionSimilarity("aaaa", "zzzz"), 0.001)
}
