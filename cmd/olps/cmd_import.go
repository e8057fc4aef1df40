package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	var pricesFile string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a dated price file in the selection database",
		Long: `Store every close of a CSV price file in the selection database so the
server and the rebalance command can use it. The file needs a leading "date"
column. Existing closes for the same asset and date are replaced.

Example:
  olps import --prices prices.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readPriceFile(pricesFile)
			if err != nil {
				return err
			}
			if len(table.Dates) == 0 {
				return fmt.Errorf("%s has no date column", pricesFile)
			}

			service, closeDB, err := a.storedService()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := service.ImportTable(cmd.Context(), table); err != nil {
				return err
			}

			a.log.Info().Str("file", pricesFile).Int("assets", len(table.Assets)).Msg("Prices imported")
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"assets": table.Assets,
				"rows":   table.Periods(),
			})
		},
	}

	cmd.Flags().StringVar(&pricesFile, "prices", "", "CSV price file with a date column")
	_ = cmd.MarkFlagRequired("prices")
	return cmd
}
