package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	summaryFrom string
	summaryTo   string
)

var reversalsCmd = &cobra.Command{
	Use:   "reversals",
	Short: "Inspect and link reversal transactions",
}

var reversalsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "List scored reversal link suggestions",
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := wire()
		exitOnError(err, "failed to wire services")
		defer svcs.close()

		suggestions, err := svcs.reversals.GetPendingReversalSuggestions(context.Background(), tenantID)
		exitOnError(err, "failed to compute suggestions")
		printJSON(suggestions)
	},
}

var reversalsAutoLinkCmd = &cobra.Command{
	Use:   "auto-link",
	Short: "Link high-confidence reversal suggestions",
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := wire()
		exitOnError(err, "failed to wire services")
		defer svcs.close()

		report, err := svcs.reversals.AutoLinkReversals(context.Background(), tenantID)
		exitOnError(err, "auto-link failed")
		printJSON(report)
	},
}

var reversalsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate reversal counts, optionally date-bounded",
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := wire()
		exitOnError(err, "failed to wire services")
		defer svcs.close()

		from, err := parseDateFlag(summaryFrom)
		exitOnError(err, "invalid --from")
		to, err := parseDateFlag(summaryTo)
		exitOnError(err, "invalid --to")

		summary, err := svcs.reversals.GetReversalSummary(context.Background(), tenantID, from, to)
		exitOnError(err, "summary failed")
		printJSON(summary)
	},
}

func init() {
	reversalsSummaryCmd.Flags().StringVar(&summaryFrom, "from", "", "period start (YYYY-MM-DD)")
	reversalsSummaryCmd.Flags().StringVar(&summaryTo, "to", "", "period end (YYYY-MM-DD)")

	reversalsCmd.AddCommand(reversalsSuggestCmd)
	reversalsCmd.AddCommand(reversalsAutoLinkCmd)
	reversalsCmd.AddCommand(reversalsSummaryCmd)
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exitOnError(enc.Encode(v), "failed to encode output")
}
