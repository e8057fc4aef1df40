// Package main is the olps command line: one-off allocations, backtests over
// price files, and maintenance of the local price store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/olps/internal/config"
	"github.com/aristath/olps/internal/di"
	"github.com/aristath/olps/internal/modules/selection"
	"github.com/aristath/olps/pkg/logger"
)

// app carries state shared by every command
type app struct {
	logLevel string
	dataDir  string
	log      zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "olps",
		Short: "Online portfolio selection with Follow-the-Regularized-Leader",
		Long: `olps computes portfolio allocations with the Follow-the-Regularized-Leader
strategy, backtests strategies over price histories and maintains a local
price store used by the allocation server.

Results are printed to stdout as JSON; logs go to stderr.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logger.New(logger.Config{
				Level:  a.logLevel,
				Pretty: true,
				Output: cmd.ErrOrStderr(),
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Data directory (default: $OLPS_DATA_DIR or ./data)")

	rootCmd.AddCommand(
		newAllocateCmd(a),
		newBacktestCmd(a),
		newImportCmd(a),
		newRebalanceCmd(a),
	)
	return rootCmd
}

// loadConfig reads the environment configuration, honouring --data-dir
func (a *app) loadConfig() (*config.Config, error) {
	if a.dataDir != "" {
		if err := os.Setenv("OLPS_DATA_DIR", a.dataDir); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

// statelessService builds a service without a price or run store
func (a *app) statelessService() (*selection.Service, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return selection.NewService(nil, nil, cfg.ServiceConfig(), nil, a.log), nil
}

// storedService wires the service over the selection database.
// The returned func closes the database.
func (a *app) storedService() (*selection.Service, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	container, err := di.Wire(cfg, a.log)
	if err != nil {
		return nil, nil, err
	}
	return container.SelectionService, func() { _ = container.Close() }, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFloats parses a comma separated list such as "1.05,0.98,1.02"
func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no numbers in %q", s)
	}
	return out, nil
}

func readPriceFile(path string) (*selection.PriceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	table, err := selection.ReadPricesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return table, nil
}
