package selection

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// DateLayout is the date format used in price files and the price store.
const DateLayout = "2006-01-02"

// PriceTable is a date-aligned price history: Prices[t][i] is the close of
// Assets[i] at Dates[t]. Missing prices are NaN. Dates may be empty when the
// source carried none.
type PriceTable struct {
	Assets []string
	Dates  []time.Time
	Prices [][]float64
}

// Periods is the number of price rows.
func (p *PriceTable) Periods() int {
	return len(p.Prices)
}

// Validate checks that the table is rectangular and prices are positive or NaN.
func (p *PriceTable) Validate() error {
	if len(p.Assets) == 0 {
		return fmt.Errorf("price table has no assets")
	}
	if len(p.Prices) == 0 {
		return fmt.Errorf("price table has no rows")
	}
	if len(p.Dates) != 0 && len(p.Dates) != len(p.Prices) {
		return fmt.Errorf("price table has %d dates for %d rows", len(p.Dates), len(p.Prices))
	}
	seen := make(map[string]bool, len(p.Assets))
	for _, a := range p.Assets {
		if a == "" {
			return fmt.Errorf("price table has an empty asset name")
		}
		if seen[a] {
			return fmt.Errorf("duplicate asset %q", a)
		}
		seen[a] = true
	}
	for t, row := range p.Prices {
		if len(row) != len(p.Assets) {
			return fmt.Errorf("row %d has %d prices, expected %d", t, len(row), len(p.Assets))
		}
		for i, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if v <= 0 || math.IsInf(v, 0) {
				return fmt.Errorf("price of %s at row %d must be positive, got %v", p.Assets[i], t, v)
			}
		}
	}
	return nil
}

// RelativeReturns converts prices to price_t / price_{t-1}. The first row is
// all ones and ratios involving a missing price are 1.
func RelativeReturns(prices [][]float64) (*mat.Dense, error) {
	if len(prices) == 0 || len(prices[0]) == 0 {
		return nil, fmt.Errorf("no prices supplied")
	}
	n := len(prices[0])
	out := mat.NewDense(len(prices), n, nil)
	for t, row := range prices {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d prices, expected %d", t, len(row), n)
		}
		for i, v := range row {
			if !math.IsNaN(v) && v <= 0 {
				return nil, fmt.Errorf("price [%d][%d] = %g is not positive", t, i, v)
			}
			ratio := 1.0
			if t > 0 {
				prev := prices[t-1][i]
				if !math.IsNaN(v) && !math.IsNaN(prev) {
					ratio = v / prev
				}
			}
			out.Set(t, i, ratio)
		}
	}
	return out, nil
}

// Resample keeps every k-th row starting from the first, plus the final row,
// so coarser rebalancing periods can be simulated from finer data.
func Resample(table *PriceTable, every int) *PriceTable {
	if every <= 1 || table.Periods() == 0 {
		return table
	}
	out := &PriceTable{Assets: table.Assets}
	last := table.Periods() - 1
	for t := 0; t <= last; t++ {
		if t%every != 0 && t != last {
			continue
		}
		out.Prices = append(out.Prices, table.Prices[t])
		if len(table.Dates) > 0 {
			out.Dates = append(out.Dates, table.Dates[t])
		}
	}
	return out
}

// ReadPricesCSV parses a price file. The header names the assets, optionally
// preceded by a "date" column (layout 2006-01-02). Empty cells are missing prices.
func ReadPricesCSV(r io.Reader) (*PriceTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("price file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price header: %w", err)
	}
	hasDate := len(header) > 0 && strings.EqualFold(strings.TrimSpace(header[0]), "date")
	assetCols := header
	if hasDate {
		assetCols = header[1:]
	}
	table := &PriceTable{}
	for _, a := range assetCols {
		table.Assets = append(table.Assets, strings.TrimSpace(a))
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read price row %d: %w", line, err)
		}
		cells := record
		if hasDate {
			date, err := time.Parse(DateLayout, strings.TrimSpace(record[0]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[0], err)
			}
			table.Dates = append(table.Dates, date)
			cells = record[1:]
		}
		row := make([]float64, len(cells))
		for i, cell := range cells {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid price %q: %w", line, cell, err)
			}
			row[i] = v
		}
		table.Prices = append(table.Prices, row)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
