package service

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/crechebooks/crechebooks/internal/config"
	"github.com/crechebooks/crechebooks/internal/database"
	"github.com/crechebooks/crechebooks/internal/database/repository"
)

// testEnv wires the service layer against a real sqlite database in a
// temporary directory, the same way production wiring does.
type testEnv struct {
	DB         *sql.DB
	Tx         *repository.TransactionRepo
	Cats       *repository.CategorizationRepo
	Patterns   *repository.PayeePatternRepo
	Thresholds *repository.ThresholdRepo
	Audit      *repository.AuditRepo

	Categorizer *CategorizerService
	Conflicts   *ConflictResolver
	Variation   *VariationAnalyzer
	Reversals   *ReversalService
	VAT         *VATCalculator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrationsWithDB(db, migrations))

	cfg := config.Default()
	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategorizationRepo(db)
	patternRepo := repository.NewPayeePatternRepo(db)
	thresholdRepo := repository.NewThresholdRepo(db)
	auditRepo := repository.NewAuditRepo(db)
	vat := NewVATCalculator(cfg.VAT)
	log := slog.Default()

	return &testEnv{
		DB:         db,
		Tx:         txRepo,
		Cats:       catRepo,
		Patterns:   patternRepo,
		Thresholds: thresholdRepo,
		Audit:      auditRepo,
		Categorizer: &CategorizerService{
			Transactions:    txRepo,
			Categorizations: catRepo,
			Patterns:        patternRepo,
			Audit:           auditRepo,
			VAT:             vat,
			Log:             log,
		},
		Conflicts: &ConflictResolver{
			Transactions:    txRepo,
			Categorizations: catRepo,
			Patterns:        patternRepo,
			Audit:           auditRepo,
			Log:             log,
		},
		Variation: &VariationAnalyzer{
			Transactions: txRepo,
			Thresholds:   thresholdRepo,
			Patterns:     patternRepo,
			Audit:        auditRepo,
			Cache:        NewMemoryThresholdCache(),
			Defaults:     cfg.Variation,
			Log:          log,
		},
		Reversals: &ReversalService{
			Transactions: txRepo,
			Audit:        auditRepo,
			Tolerances:   NewTolerances(cfg.Tolerance),
			Log:          log,
		},
		VAT: vat,
	}
}

// txnSpec is shorthand for seeding a transaction.
type txnSpec struct {
	Tenant      string
	Payee       string
	Description string
	AmountCents int64
	IsCredit    bool
	Date        time.Time
	Status      string
	Reconciled  bool
}

func (e *testEnv) seedTxn(t *testing.T, spec txnSpec) repository.Transaction {
	t.Helper()

	if spec.Status == "" {
		spec.Status = repository.StatusPending
	}
	if spec.Date.IsZero() {
		spec.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	}
	txn := repository.Transaction{
		ID:           uuid.NewString(),
		TenantID:     spec.Tenant,
		PayeeName:    spec.Payee,
		Description:  spec.Description,
		AmountCents:  spec.AmountCents,
		IsCredit:     spec.IsCredit,
		Date:         spec.Date,
		Status:       spec.Status,
		IsReconciled: spec.Reconciled,
	}
	if spec.Reconciled {
		at := spec.Date.Add(24 * time.Hour)
		txn.ReconciledAt = &at
	}
	require.NoError(t, e.Tx.CreateMany(context.Background(), []repository.Transaction{txn}))
	return txn
}

func (e *testEnv) seedPattern(t *testing.T, tenant, payee, code, name string, boost int) repository.PayeePattern {
	t.Helper()

	p := repository.PayeePattern{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		PayeeName:   NormalizePayee(payee),
		AccountCode: code,
		AccountName: name,
		ConfidenceBoost: boost,
	}
	require.NoError(t, e.Patterns.Create(context.Background(), p))
	return p
}
