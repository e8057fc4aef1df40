package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/olps/internal/modules/selection"
)

func newBacktestCmd(a *app) *cobra.Command {
	var (
		pricesFile  string
		strategy    string
		beta        float64
		solver      string
		fallback    string
		lookback    int
		resample    int
		weights     string
		save        bool
		summaryOnly bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a strategy over a price file",
		Long: `Run a strategy period by period over a CSV price file and report the
weights held, the realized returns and the performance summary.

The file header names the assets, optionally preceded by a "date" column.

Examples:
  olps backtest --prices prices.csv
  olps backtest --prices prices.csv --strategy crp --weights 0.6,0.4
  olps backtest --prices prices.csv --beta 0.5 --lookback 60 --fallback previous --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readPriceFile(pricesFile)
			if err != nil {
				return err
			}

			req := selection.BacktestRequest{
				Assets:   table.Assets,
				Prices:   table.Prices,
				Strategy: strategy,
				Solver:   solver,
				Fallback: fallback,
				Resample: resample,
				Save:     save,
			}
			if cmd.Flags().Changed("beta") {
				req.Beta = &beta
			}
			if cmd.Flags().Changed("lookback") {
				req.Lookback = &lookback
			}
			if weights != "" {
				if req.Weights, err = parseFloats(weights); err != nil {
					return fmt.Errorf("--weights: %w", err)
				}
			}

			var service *selection.Service
			if save {
				var closeDB func()
				service, closeDB, err = a.storedService()
				if err != nil {
					return err
				}
				defer closeDB()
			} else if service, err = a.statelessService(); err != nil {
				return err
			}

			a.log.Info().
				Str("command", "backtest").
				Str("file", pricesFile).
				Int("assets", len(table.Assets)).
				Int("periods", table.Periods()).
				Msg("Running backtest")

			run, err := service.Backtest(cmd.Context(), req)
			if err != nil {
				return err
			}
			if summaryOnly {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":           run.ID,
					"strategy":     run.Strategy,
					"assets":       run.Assets,
					"failures":     run.Result.Failures,
					"next_weights": run.Result.Next,
					"summary":      run.Result.Summary,
				})
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}

	cmd.Flags().StringVar(&pricesFile, "prices", "", "CSV price file")
	cmd.Flags().StringVar(&strategy, "strategy", "ftrl", "Strategy (ftrl|ftl|crp)")
	cmd.Flags().Float64Var(&beta, "beta", selection.DefaultBeta, "Regularization coefficient for ftrl (default: $FTRL_BETA)")
	cmd.Flags().StringVar(&solver, "solver", "", "Solver backend (default: $OLPS_SOLVER)")
	cmd.Flags().StringVar(&fallback, "fallback", "", "Fallback on solver failure: abort|uniform|previous (default: $OLPS_FALLBACK)")
	cmd.Flags().IntVar(&lookback, "lookback", 0, "Periods of history per allocation, 0 = all (default: $OLPS_LOOKBACK)")
	cmd.Flags().IntVar(&resample, "resample", 0, "Keep every k-th price row to simulate coarser rebalancing")
	cmd.Flags().StringVar(&weights, "weights", "", "Comma separated target weights for crp")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the run in the selection database")
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print only the summary and next weights")
	_ = cmd.MarkFlagRequired("prices")
	return cmd
}
