// Package cmd provides CLI commands for crechebooks.
package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crechebooks/crechebooks/internal/config"
	"github.com/crechebooks/crechebooks/internal/database"
	"github.com/crechebooks/crechebooks/internal/database/repository"
	"github.com/crechebooks/crechebooks/internal/service"
)

var (
	dbPath   string
	tenantID string
	debug    bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "crechebooks",
	Short: "Bookkeeping engine for childcare businesses",
	Long: `crechebooks runs the financial-data-processing core over a tenant's
transaction database: categorization, conflict resolution, amount-anomaly
analysis, reversal linking and VAT checks.

Example:
  crechebooks categorize --tenant t1 --db books.db
  crechebooks reversals auto-link --tenant t1 --db books.db`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(categorizeCmd)
	rootCmd.AddCommand(reversalsCmd)
	rootCmd.AddCommand(vatCmd)
}

// services bundles the wired service layer for one invocation.
type services struct {
	db          *sql.DB
	cfg         config.Config
	categorizer *service.CategorizerService
	conflicts   *service.ConflictResolver
	variation   *service.VariationAnalyzer
	reversals   *service.ReversalService
	vat         *service.VATCalculator
}

// wire loads config, opens the database with migrations applied and builds
// the service layer.
func wire() (*services, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	migrations, err := migrationsDir()
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(cfg.Database.Path, migrations); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategorizationRepo(db)
	patternRepo := repository.NewPayeePatternRepo(db)
	thresholdRepo := repository.NewThresholdRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	vat := service.NewVATCalculator(cfg.VAT)
	tolerances := service.NewTolerances(cfg.Tolerance)
	log := slog.Default()

	return &services{
		db:  db,
		cfg: cfg,
		categorizer: &service.CategorizerService{
			Transactions:    txRepo,
			Categorizations: catRepo,
			Patterns:        patternRepo,
			Audit:           auditRepo,
			VAT:             vat,
			Log:             log,
			AcceptThreshold: cfg.Variation.AutoApplyScore,
		},
		conflicts: &service.ConflictResolver{
			Transactions:    txRepo,
			Categorizations: catRepo,
			Patterns:        patternRepo,
			Audit:           auditRepo,
			Log:             log,
		},
		variation: &service.VariationAnalyzer{
			Transactions: txRepo,
			Thresholds:   thresholdRepo,
			Patterns:     patternRepo,
			Audit:        auditRepo,
			Cache:        service.NewMemoryThresholdCache(),
			Defaults:     cfg.Variation,
			Log:          log,
		},
		reversals: &service.ReversalService{
			Transactions: txRepo,
			Audit:        auditRepo,
			Tolerances:   tolerances,
			Log:          log,
		},
		vat: vat,
	}, nil
}

func (s *services) close() {
	_ = s.db.Close()
}

// migrationsDir resolves the bundled migrations relative to the executable,
// falling back to the working directory for `go run`.
func migrationsDir() (string, error) {
	candidates := []string{"internal/database/migrations"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "migrations"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return filepath.Abs(c)
		}
	}
	return "", fmt.Errorf("migrations directory not found")
}

// exitOnError logs and exits on a fatal CLI error.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
