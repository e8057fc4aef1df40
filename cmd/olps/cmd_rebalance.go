package main

import (
	"github.com/spf13/cobra"
)

func newRebalanceCmd(a *app) *cobra.Command {
	var assets []string

	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Compute the next allocation from stored prices",
		Long: `Run Follow-the-Regularized-Leader over the stored price history and
record the run. Without --assets every stored asset is used.

Example:
  olps rebalance --assets AAA,BBB,CCC`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, closeDB, err := a.storedService()
			if err != nil {
				return err
			}
			defer closeDB()

			run, err := service.Rebalance(cmd.Context(), assets)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"run_id":       run.ID,
				"assets":       run.Assets,
				"next_weights": run.Result.Next,
				"summary":      run.Result.Summary,
			})
		},
	}

	cmd.Flags().StringSliceVar(&assets, "assets", nil, "Assets to rebalance (default: all stored)")
	return cmd
}
