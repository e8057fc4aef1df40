package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/olps/internal/modules/selection"
)

func newAllocateCmd(a *app) *cobra.Command {
	var (
		returns []string
		beta    float64
		solver  string
	)

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Compute one Follow-the-Regularized-Leader allocation",
		Long: `Compute the allocation that maximizes the regularized log-growth of the
given relative returns. Pass --returns once per period.

Examples:
  olps allocate --returns 1.05,0.98,1.02
  olps allocate --returns 1.3,0.9 --returns 0.8,1.1 --beta 0 --solver lbfgs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(returns) == 0 {
				return fmt.Errorf("at least one --returns is required")
			}
			window := make([][]float64, 0, len(returns))
			for _, r := range returns {
				row, err := parseFloats(r)
				if err != nil {
					return err
				}
				window = append(window, row)
			}

			service, err := a.statelessService()
			if err != nil {
				return err
			}

			req := selection.AllocateRequest{Window: window, Solver: solver}
			if cmd.Flags().Changed("beta") {
				req.Beta = &beta
			}

			a.log.Info().Int("periods", len(window)).Str("command", "allocate").Msg("Computing allocation")

			allocation, err := service.Allocate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), allocation)
		},
	}

	cmd.Flags().StringArrayVar(&returns, "returns", nil, "Comma separated relative returns of one period (repeatable)")
	cmd.Flags().Float64Var(&beta, "beta", selection.DefaultBeta, "Regularization coefficient (default: $FTRL_BETA)")
	cmd.Flags().StringVar(&solver, "solver", "", "Solver backend (projected_gradient|lbfgs|bfgs|nelder_mead)")
	return cmd
}
