package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var vatCmd = &cobra.Command{
	Use:   "vat",
	Short: "VAT arithmetic and compliance checks",
}

var vatExtractCmd = &cobra.Command{
	Use:   "extract <inclusive-cents>",
	Short: "Split a VAT-inclusive amount into exclusive and VAT portions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svcs, err := wire()
		exitOnError(err, "failed to wire services")
		defer svcs.close()

		inclusive, err := strconv.ParseInt(args[0], 10, 64)
		exitOnError(err, "invalid amount")

		exclusive := svcs.vat.ExtractExclusiveFromInclusive(inclusive)
		vat := svcs.vat.ExtractVatFromInclusive(inclusive)
		printJSON(map[string]int64{
			"inclusive_cents": inclusive,
			"exclusive_cents": exclusive,
			"vat_cents":       vat,
		})
	},
}

func init() {
	vatCmd.AddCommand(vatExtractCmd)
}
