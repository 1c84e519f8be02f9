package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/crechebooks/crechebooks/internal/database/repository"
)

var categorizeStatus string

// categorizeCmd runs batch categorization over pending transactions.
var categorizeCmd = &cobra.Command{
	Use:   "categorize [transaction-id...]",
	Short: "Categorize pending transactions",
	Long: `Categorize the given transactions, or every pending transaction for the
tenant when no ids are given. Prints a JSON batch report.

Example:
  crechebooks categorize --tenant t1
  crechebooks categorize --tenant t1 3f2a... 9bc1...`,
	Run: runCategorize,
}

func init() {
	categorizeCmd.Flags().StringVar(&categorizeStatus, "status", repository.StatusPending, "status of transactions to pick up when no ids are given")
}

func runCategorize(cmd *cobra.Command, args []string) {
	svcs, err := wire()
	exitOnError(err, "failed to wire services")
	defer svcs.close()

	ctx := context.Background()
	ids := args
	if len(ids) == 0 {
		txns, err := svcs.categorizer.Transactions.FindByTenant(ctx, tenantID, repository.TransactionFilters{
			Status: categorizeStatus,
		})
		exitOnError(err, "failed to list transactions")
		for _, t := range txns {
			ids = append(ids, t.ID)
		}
	}

	report, err := svcs.categorizer.CategorizeTransactions(ctx, tenantID, ids)
	exitOnError(err, "batch categorization failed")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exitOnError(enc.Encode(report), "failed to encode report")
}
