package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

func TestCategorizeTransactionPatternMatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedPattern(t, "t1", "Woolworths Sandton", "8400", "Groceries and Catering", 15)
	txn := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "WOOLWORTHS SANDTON", Description: "WOOLWORTHS SANDTON POS",
		AmountCents: 45000,
	})

	res, err := env.Categorizer.CategorizeTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, ResultAutoApplied, res.Status)
	require.Equal(t, "8400", res.AccountCode)
	require.Equal(t, repository.SourceRuleBased, res.Source)
	require.Equal(t, 90, res.ConfidenceScore)

	// pattern match counter is monotonically increasing
	p, err := env.Patterns.FindByPayeeName(ctx, "t1", "woolworths sandton")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.MatchCount)

	// transaction moved to categorized and the write was audited
	got, err := env.Tx.FindByID(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusCategorized, got.Status)

	entries, err := env.Audit.ListByEntity(ctx, "t1", "transaction", txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "categorize", entries[0].Action)
}

func TestCategorizeTransactionHeuristicReviewRequired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "PICK N PAY", Description: "PICK N PAY CLAREMONT",
		AmountCents: 45000,
	})

	// heuristic confidence 75 is below the default threshold of 80
	res, err := env.Categorizer.CategorizeTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, ResultReviewRequired, res.Status)
	require.Equal(t, repository.SourceHeuristic, res.Source)

	got, err := env.Tx.FindByID(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusReviewRequired, got.Status)

	// VAT was derived from the heuristic VAT type
	cats, err := env.Cats.FindByTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, repository.VATStandard, cats[0].VATType)
	require.Equal(t, env.VAT.ExtractVatFromInclusive(45000), cats[0].VATAmountCents)
}

func TestCategorizeTransactionReconciledIsForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "FNB", Description: "MONTHLY ACCOUNT FEE",
		AmountCents: 5000, Status: repository.StatusSynced, Reconciled: true,
	})

	_, err := env.Categorizer.CategorizeTransaction(ctx, "t1", txn.ID)
	require.Error(t, err)
	require.True(t, IsCode(err, CodeForbidden))

	// exactly one blocked audit entry, no other writes
	entries, err := env.Audit.ListByEntity(ctx, "t1", "transaction", txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "blocked", entries[0].Action)

	got, err := env.Tx.FindByID(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusSynced, got.Status)

	cats, err := env.Cats.FindByTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Empty(t, cats)
}

func TestCategorizeTransactionLearnsPattern(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "FNB", Description: "MONTHLY ACCOUNT FEE", AmountCents: 5000,
	})

	res, err := env.Categorizer.CategorizeTransaction(ctx, "t1", first.ID)
	require.NoError(t, err)
	require.Equal(t, ResultAutoApplied, res.Status)
	require.Equal(t, repository.SourceHeuristic, res.Source)

	// a confident categorization created the pattern
	p, err := env.Patterns.FindByPayeeName(ctx, "t1", "fnb")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "8600", p.AccountCode)
	require.Equal(t, initialPatternBoost, p.ConfidenceBoost)
	require.Equal(t, int64(1), p.MatchCount)
	require.NotNil(t, p.ExpectedAmountCents)
	require.Equal(t, int64(5000), *p.ExpectedAmountCents)

	// a second transaction from the same payee hits the pattern path even
	// with an unrecognizable description
	second := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "FNB", Description: "REF 77120043", AmountCents: 5000,
	})
	res, err = env.Categorizer.CategorizeTransaction(ctx, "t1", second.ID)
	require.NoError(t, err)
	require.Equal(t, repository.SourceRuleBased, res.Source)
	require.Equal(t, patternBaseScore+initialPatternBoost, res.ConfidenceScore)
	require.Equal(t, ResultAutoApplied, res.Status)

	p, err = env.Patterns.FindByPayeeName(ctx, "t1", "fnb")
	require.NoError(t, err)
	require.Equal(t, int64(2), p.MatchCount)
}

func TestCategorizeTransactionMatchesPatternAlias(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Patterns.Create(ctx, repository.PayeePattern{
		ID:              uuid.NewString(),
		TenantID:        "t1",
		PayeeName:       "woolworths",
		Aliases:         []string{"woolworths sandton", "woolworths w247"},
		AccountCode:     "8400",
		AccountName:     "Groceries and Catering",
		ConfidenceBoost: 10,
	}))

	txn := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "WOOLWORTHS SANDTON", Description: "POS 4471", AmountCents: 30000,
	})

	res, err := env.Categorizer.CategorizeTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Equal(t, repository.SourceRuleBased, res.Source)
	require.Equal(t, "8400", res.AccountCode)
	require.Equal(t, 85, res.ConfidenceScore)
}

func TestCategorizeTransactionTenantScoped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "X", AmountCents: 100})

	_, err := env.Categorizer.CategorizeTransaction(ctx, "t2", txn.ID)
	require.Error(t, err)
	require.True(t, IsCode(err, CodeNotFound))
}

func TestCategorizeTransactionsBatchIsolation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "A", Description: "SALARIES EFT", AmountCents: 100000})
	b := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "B", Description: "MONTHLY ACCOUNT FEE", AmountCents: 5000})
	c := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "C", Description: "UNKNOWN 123", AmountCents: 7000})

	report, err := env.Categorizer.CategorizeTransactions(ctx, "t1", []string{a.ID, "no-such-id", b.ID, c.ID})
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalProcessed)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 2, report.AutoCategorized) // salaries 85, bank fee 90
	require.Equal(t, 1, report.ReviewRequired)  // unknown fallback 30
	require.InDelta(t, float64(85+90+30)/3, report.MeanConfidence, 0.01)

	require.Len(t, report.Items, 4)
	require.Equal(t, "no-such-id", report.Items[1].TransactionID)
	// per-item error carries the plain message, not the code prefix
	require.Equal(t, "Transaction not found", report.Items[1].Error)
	require.Nil(t, report.Items[1].Result)
}

func TestUpdateCategorizationSplitMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "MAKRO", AmountCents: 100000})

	err := env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		IsSplit: true,
		Splits: []SplitInput{
			{AccountCode: "8400", AmountCents: 60000, VATType: repository.VATStandard},
			{AccountCode: "8500", AmountCents: 30000, VATType: repository.VATStandard},
		},
	}, "u1")
	require.Error(t, err)
	require.True(t, IsCode(err, CodeBusinessRule))

	// nothing was written
	cats, err := env.Cats.FindByTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Empty(t, cats)
}

func TestUpdateCategorizationSplitExact(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "MAKRO", AmountCents: 100000})

	err := env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		IsSplit: true,
		Splits: []SplitInput{
			{AccountCode: "8400", AccountName: "Groceries and Catering", AmountCents: 60000, VATType: repository.VATStandard},
			{AccountCode: "8500", AccountName: "Educational Materials", AmountCents: 40000, VATType: repository.VATStandard},
		},
	}, "u1")
	require.NoError(t, err)

	cats, err := env.Cats.FindByTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	var sum int64
	for _, c := range cats {
		require.True(t, c.IsSplit)
		require.Equal(t, repository.SourceUserOverride, c.Source)
		sum += c.AmountCents
	}
	require.Equal(t, txn.AmountCents, sum)
}

func TestUpdateCategorizationLearnsPattern(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "CITY OF CAPE TOWN", AmountCents: 40000})

	err := env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		AccountCode: "8300", AccountName: "Utilities", VATType: repository.VATStandard,
	}, "u1")
	require.NoError(t, err)

	// the override seeded a pattern for the payee
	p, err := env.Patterns.FindByPayeeName(ctx, "t1", "city of cape town")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "8300", p.AccountCode)
	require.Equal(t, initialPatternBoost, p.ConfidenceBoost)

	// an agreeing override reinforces it; a disagreeing one leaves it alone
	err = env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		AccountCode: "8300", AccountName: "Utilities", VATType: repository.VATStandard,
	}, "u1")
	require.NoError(t, err)
	err = env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		AccountCode: "8900", AccountName: "General Expenses", VATType: repository.VATNone,
	}, "u1")
	require.NoError(t, err)

	p, err = env.Patterns.FindByPayeeName(ctx, "t1", "city of cape town")
	require.NoError(t, err)
	require.Equal(t, "8300", p.AccountCode)
	require.Equal(t, initialPatternBoost+1, p.ConfidenceBoost)
	require.Equal(t, int64(2), p.MatchCount)
}

func TestReplaceForTransactionRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "MAKRO", AmountCents: 100000})
	orig := env.seedCategorization(t, "t1", txn.ID, "8400", "Groceries and Catering")

	// duplicate primary key makes the second insert fail mid-replace
	dup := uuid.NewString()
	bad := []repository.Categorization{
		{ID: dup, TenantID: "t1", TransactionID: txn.ID, AccountCode: "8400",
			Source: repository.SourceUserOverride, IsSplit: true, AmountCents: 60000, VATType: repository.VATStandard},
		{ID: dup, TenantID: "t1", TransactionID: txn.ID, AccountCode: "8500",
			Source: repository.SourceUserOverride, IsSplit: true, AmountCents: 40000, VATType: repository.VATStandard},
	}
	require.Error(t, env.Cats.ReplaceForTransaction(ctx, "t1", txn.ID, bad))

	// the prior categorization survived the failed replace
	cats, err := env.Cats.FindByTransaction(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, orig.ID, cats[0].ID)
	require.Equal(t, "8400", cats[0].AccountCode)
}

func TestUpdateCategorizationReconciledIsForbidden(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	txn := env.seedTxn(t, txnSpec{Tenant: "t1", Payee: "X", AmountCents: 5000, Reconciled: true})

	err := env.Categorizer.UpdateCategorization(ctx, "t1", txn.ID, UpdateCategorizationInput{
		AccountCode: "8900", AccountName: "General Expenses", VATType: repository.VATNone,
	}, "u1")
	require.Error(t, err)
	require.True(t, IsCode(err, CodeForbidden))

	// exactly one blocked audit entry
	entries, err := env.Audit.ListByEntity(ctx, "t1", "transaction", txn.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "blocked", entries[0].Action)
}

func TestUpdateCategorizationNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	err := env.Categorizer.UpdateCategorization(context.Background(), "t1", "missing", UpdateCategorizationInput{
		AccountCode: "8900",
	}, "u1")
	require.Error(t, err)
	require.True(t, IsCode(err, CodeNotFound))
}

func TestGetSuggestionsSorted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedPattern(t, "t1", "Pick n Pay", "8400", "Groceries and Catering", 20)
	txn := env.seedTxn(t, txnSpec{
		Tenant: "t1", Payee: "PICK N PAY", Description: "PICK N PAY CLAREMONT", AmountCents: 30000,
	})

	suggestions, err := env.Categorizer.GetSuggestions(ctx, "t1", txn.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	// pattern (75+20=95) outranks the heuristic (75)
	require.Equal(t, repository.SourceRuleBased, suggestions[0].Source)
	require.Equal(t, 95, suggestions[0].ConfidenceScore)
	require.Equal(t, repository.SourceHeuristic, suggestions[1].Source)

	_, err = env.Categorizer.GetSuggestions(ctx, "t1", "missing")
	require.True(t, IsCode(err, CodeNotFound))
}
