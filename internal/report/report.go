// Package report writes the CLI's output files (spec.md §6.4): a
// human-readable Summary.txt, and CSV files for daily metrics, trades,
// positions, returns, equities, and optimization sweeps. This is an
// explicitly out-of-scope external collaborator per spec.md §1 ("report
// writers ... treated as black-box"); writers use stdlib encoding/csv,
// justified in DESIGN.md (no pack repo writes structured reports with a
// third-party templating/formatting library).
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"xbacktest/internal/analyzer"
	"xbacktest/internal/executor"
	"xbacktest/internal/optimizer"
	"xbacktest/internal/position"
)

// Mask selects which report files a run produces, one bit per file,
// matching spec.md §6.4's "each gated by a bitmask".
type Mask uint

const (
	Summary Mask = 1 << iota
	DailyMetricsFile
	TradesFile
	PositionsFile
	ReturnsFile
	EquitiesFile
	OptimizationFile

	All = Summary | DailyMetricsFile | TradesFile | PositionsFile | ReturnsFile | EquitiesFile | OptimizationFile
)

// WriteResult writes every report file selected by mask for one
// Executor.Run outcome into dir.
func WriteResult(dir string, mask Mask, res executor.Result, positions []*position.Position, perBarReturns []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %q: %w", dir, err)
	}
	if mask&Summary != 0 {
		if err := writeSummary(dir, res); err != nil {
			return err
		}
	}
	if mask&DailyMetricsFile != 0 {
		if err := writeDailyMetrics(dir, res.DailyMetrics); err != nil {
			return err
		}
	}
	if mask&TradesFile != 0 {
		if err := writeTrades(dir, positions); err != nil {
			return err
		}
	}
	if mask&PositionsFile != 0 {
		if err := writePositions(dir, positions); err != nil {
			return err
		}
	}
	if mask&ReturnsFile != 0 {
		if err := writeReturns(dir, perBarReturns); err != nil {
			return err
		}
	}
	if mask&EquitiesFile != 0 {
		if err := writeEquities(dir, res.DailyMetrics); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(dir string, res executor.Result) error {
	f, err := os.Create(dir + "/Summary.txt")
	if err != nil {
		return fmt.Errorf("report: create Summary.txt: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Run ID:            %s\n", res.RunID)
	fmt.Fprintf(f, "Run at:            %s\n", res.RunAt.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:          %dms\n", res.DurationMs)
	fmt.Fprintf(f, "Final equity:      %.2f\n", res.FinalEquity)
	fmt.Fprintf(f, "Final cash:        %.2f\n", res.FinalCash)
	fmt.Fprintf(f, "Cumulative return: %.4f\n", res.CumulativeReturn)
	fmt.Fprintf(f, "Sharpe ratio:      %.4f\n", res.SharpeRatio)
	fmt.Fprintf(f, "Max drawdown:      %.4f\n", res.MaxDrawdown)
	fmt.Fprintf(f, "Trade count:       %d\n", res.TradeCount)
	fmt.Fprintf(f, "Win rate:          %.4f\n", res.WinRate)
	fmt.Fprintf(f, "Profit factor:     %.4f\n", res.ProfitFactor)
	return nil
}

func writeDailyMetrics(dir string, rows []analyzer.DailyMetrics) error {
	w, f, err := newCSV(dir, "DailyMetrics.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{"date", "equity", "cash", "margin", "position_profit", "realized_profit", "trades", "traded_volume", "cumulative_trades"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Date.Format("2006-01-02"),
			ftoa(r.Equity), ftoa(r.Cash), ftoa(r.Margin),
			ftoa(r.PositionProfit), ftoa(r.RealizedProfit),
			strconv.Itoa(r.TradesCount), strconv.FormatInt(r.TradedVolume, 10),
			strconv.Itoa(r.CumulativeTrades),
		}); err != nil {
			return err
		}
	}
	return w.Error()
}

// writeTrades emits one row per closed transaction across every
// position (spec.md §6.4 Trades.csv), the coarser sibling of
// Positions.csv.
func writeTrades(dir string, positions []*position.Position) error {
	w, f, err := newCSV(dir, "Trades.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{"instrument", "entry_time", "exit_time", "entry_price", "exit_price", "shares", "realized_pnl", "commission", "slippage"}); err != nil {
		return err
	}
	for _, p := range positions {
		for _, tx := range p.Transactions {
			if err := w.Write([]string{
				p.Instrument,
				tx.OpenedAt.Format(time.RFC3339), tx.ClosedAt.Format(time.RFC3339),
				ftoa(tx.EntryPrice), ftoa(tx.ExitPrice), strconv.Itoa(tx.Shares),
				ftoa(tx.RealizedPnL), ftoa(tx.Commission), ftoa(tx.Slippage),
			}); err != nil {
				return err
			}
		}
	}
	return w.Error()
}

// writePositions emits one row per transaction with the fuller field
// set spec.md §6.4 names for Positions.csv: entry/exit datetime,
// prices, realized PnL, a running cumulative PnL across the file, and
// lifetime duration. Run-up is reported as the favorable excursion
// implied by entry vs exit price — per-bar high/low watermarks are not
// retained once a lot closes, so this is the best reconstructable
// approximation from the archived Transaction record.
func writePositions(dir string, positions []*position.Position) error {
	w, f, err := newCSV(dir, "Positions.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{
		"instrument", "direction", "entry_time", "exit_time", "entry_price", "exit_price",
		"shares", "realized_pnl", "cumulative_pnl", "run_up", "drawdown", "duration_seconds",
	}); err != nil {
		return err
	}

	var cumulative float64
	for _, p := range positions {
		side := "long"
		if p.Direction == position.Short {
			side = "short"
		}
		for _, tx := range p.Transactions {
			cumulative += tx.RealizedPnL
			favorable := tx.ExitPrice - tx.EntryPrice
			if p.Direction == position.Short {
				favorable = -favorable
			}
			runUp, drawdown := 0.0, 0.0
			if favorable >= 0 {
				runUp = favorable
			} else {
				drawdown = -favorable
			}
			if err := w.Write([]string{
				p.Instrument, side,
				tx.OpenedAt.Format(time.RFC3339), tx.ClosedAt.Format(time.RFC3339),
				ftoa(tx.EntryPrice), ftoa(tx.ExitPrice), strconv.Itoa(tx.Shares),
				ftoa(tx.RealizedPnL), ftoa(cumulative), ftoa(runUp), ftoa(drawdown),
				strconv.FormatInt(int64(tx.ClosedAt.Sub(tx.OpenedAt).Seconds()), 10),
			}); err != nil {
				return err
			}
		}
	}
	return w.Error()
}

func writeReturns(dir string, perBarReturns []float64) error {
	w, f, err := newCSV(dir, "Returns.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{"bar_index", "return"}); err != nil {
		return err
	}
	for i, r := range perBarReturns {
		if err := w.Write([]string{strconv.Itoa(i), ftoa(r)}); err != nil {
			return err
		}
	}
	return w.Error()
}

func writeEquities(dir string, rows []analyzer.DailyMetrics) error {
	w, f, err := newCSV(dir, "Equities.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{"date", "equity"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Date.Format("2006-01-02"), ftoa(r.Equity)}); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteOptimization writes one row per evaluated parameter-space
// position with its scalar metrics (spec.md §6.4 Optimization.csv).
func WriteOptimization(dir string, results []optimizer.ExhaustiveResult) error {
	w, f, err := newCSV(dir, "Optimization.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	defer w.Flush()

	if err := w.Write([]string{"position", "cumulative_return", "max_drawdown", "sharpe_ratio"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{
			strconv.Itoa(r.Position),
			ftoa(r.Metrics.CumulativeReturn), ftoa(r.Metrics.MaxDrawdown), ftoa(r.Metrics.SharpeRatio),
		}); err != nil {
			return err
		}
	}
	return w.Error()
}

func newCSV(dir, name string) (*csv.Writer, *os.File, error) {
	f, err := os.Create(dir + "/" + name)
	if err != nil {
		return nil, nil, fmt.Errorf("report: create %s: %w", name, err)
	}
	return csv.NewWriter(f), f, nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
