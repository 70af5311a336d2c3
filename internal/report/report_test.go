package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xbacktest/internal/analyzer"
	"xbacktest/internal/bar"
	"xbacktest/internal/executor"
	"xbacktest/internal/optimizer"
	"xbacktest/internal/order"
	"xbacktest/internal/position"
)

func samplePosition() *position.Position {
	p := position.New("TEST", position.Long, bar.Contract{Instrument: "TEST", Multiplier: 1}, func(*order.Order) {})
	p.Transactions = []position.Transaction{
		{
			SubPosID: 1, EntryPrice: 100, ExitPrice: 105, Shares: 10,
			OpenedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			ClosedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			RealizedPnL: 50, Commission: 1, Slippage: 0.5,
		},
	}
	return p
}

func TestWriteResult_AllFiles(t *testing.T) {
	dir := t.TempDir()
	res := executor.Result{
		RunID: "test-run", RunAt: time.Now(), DurationMs: 10,
		FinalEquity: 10_500, FinalCash: 10_000, CumulativeReturn: 0.05,
		SharpeRatio: 1.2, MaxDrawdown: 0.03, TradeCount: 1, WinRate: 1, ProfitFactor: 0,
		DailyMetrics: []analyzer.DailyMetrics{
			{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Equity: 10_500, Cash: 10_000, Margin: 500,
				PositionProfit: 500, RealizedProfit: 50, TradesCount: 1, TradedVolume: 10, CumulativeTrades: 1},
		},
	}
	positions := []*position.Position{samplePosition()}
	returns := []float64{0.01, -0.005, 0.02}

	if err := WriteResult(dir, All, res, positions, returns); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	for _, name := range []string{"Summary.txt", "DailyMetrics.csv", "Trades.csv", "Positions.csv", "Returns.csv", "Equities.csv"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	summary, err := os.ReadFile(filepath.Join(dir, "Summary.txt"))
	if err != nil {
		t.Fatalf("read Summary.txt: %v", err)
	}
	if !strings.Contains(string(summary), "test-run") {
		t.Errorf("Summary.txt missing run id: %s", summary)
	}

	positionsCSV, err := os.ReadFile(filepath.Join(dir, "Positions.csv"))
	if err != nil {
		t.Fatalf("read Positions.csv: %v", err)
	}
	if !strings.Contains(string(positionsCSV), "TEST") {
		t.Errorf("Positions.csv missing instrument: %s", positionsCSV)
	}
}

func TestWriteResult_MaskSubset(t *testing.T) {
	dir := t.TempDir()
	res := executor.Result{RunID: "subset"}
	if err := WriteResult(dir, Summary, res, nil, nil); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Summary.txt")); err != nil {
		t.Errorf("expected Summary.txt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Trades.csv")); !os.IsNotExist(err) {
		t.Errorf("expected Trades.csv to be absent, got err=%v", err)
	}
}

func TestWriteOptimization(t *testing.T) {
	dir := t.TempDir()
	results := []optimizer.ExhaustiveResult{
		{Position: 0, Metrics: optimizer.Metrics{CumulativeReturn: 0.1, MaxDrawdown: 0.02, SharpeRatio: 1.1}},
		{Position: 1, Metrics: optimizer.Metrics{CumulativeReturn: 0.2, MaxDrawdown: 0.05, SharpeRatio: 1.5}},
	}
	if err := WriteOptimization(dir, results); err != nil {
		t.Fatalf("WriteOptimization: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Optimization.csv"))
	if err != nil {
		t.Fatalf("read Optimization.csv: %v", err)
	}
	if !strings.Contains(string(data), "0.100000") {
		t.Errorf("Optimization.csv missing expected value: %s", data)
	}
}
