package executor_test

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/executor"
	"xbacktest/internal/feed"
	"xbacktest/internal/order"
	"xbacktest/internal/strategy"

	_ "xbacktest/strategies"
)

func risingBars(instrument string, n int, start time.Time) []bar.Bar {
	bars := make([]bar.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		bars[i] = bar.Bar{
			Instrument: instrument,
			DateTime:   start.Add(time.Duration(i) * 24 * time.Hour),
			Open:       price,
			High:       price + 1,
			Low:        price - 1,
			Close:      price + 0.5,
			Volume:     1000,
			Resolution: bar.Day,
			Interval:   1,
		}
		price += 0.75
	}
	return bars
}

func TestExecutorRunProducesResult(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := risingBars("ES", 120, start)
	f, err := feed.NewMemoryFeed("ES", bar.Day, 1, bars, nil)
	if err != nil {
		t.Fatalf("NewMemoryFeed: %v", err)
	}

	contracts := map[string]bar.Contract{"ES": {Instrument: "ES", Multiplier: 1, TickSize: 0.25}}
	strategyCfg := strategy.Config{
		Name:        "ma-crossover",
		Instruments: []string{"ES"},
		Parameters: []strategy.Parameter{
			{Name: "fast_period", Type: strategy.ParamInt, Value: 3},
			{Name: "slow_period", Type: strategy.ParamInt, Value: 10},
			{Name: "qty", Type: strategy.ParamInt, Value: 1},
		},
	}

	traceDir := t.TempDir()
	ex, err := executor.New(executor.Config{
		Broker: broker.Config{
			InitialCash: 100_000,
			FillStrategy: order.BarFillStrategy{},
		},
		Contracts:  contracts,
		Feeds:      []feed.BarFeed{f},
		Strategies: []strategy.Config{strategyCfg},
		Registry:   strategy.Default,
		RunID:      "test-run",
		TraceDir:   traceDir,
	})
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}

	res := ex.Run()
	if res.RunID != "test-run" {
		t.Errorf("Result.RunID = %q, want test-run", res.RunID)
	}
	if res.FinalEquity <= 0 {
		t.Errorf("Result.FinalEquity = %v, want > 0", res.FinalEquity)
	}
	if len(res.DailyMetrics) == 0 {
		t.Error("Result.DailyMetrics is empty, want at least one trading day")
	}

	if ex.Trace() == nil {
		t.Fatal("Trace() = nil, want an open store since TraceDir was set")
	}
	entries, err := ex.Trace().ReadAll()
	if err != nil {
		t.Fatalf("Trace().ReadAll: %v", err)
	}
	if len(entries) == 0 {
		t.Error("trace recorded zero order lifecycle entries on a rising market that should have triggered a crossover")
	}
}

func TestExecutorRunIsDeterministic(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := risingBars("ES", 80, start)

	build := func() executor.Result {
		f, err := feed.NewMemoryFeed("ES", bar.Day, 1, bars, nil)
		if err != nil {
			t.Fatalf("NewMemoryFeed: %v", err)
		}
		contracts := map[string]bar.Contract{"ES": {Instrument: "ES", Multiplier: 1, TickSize: 0.25}}
		strategyCfg := strategy.Config{
			Name:        "ma-crossover",
			Instruments: []string{"ES"},
			Parameters: []strategy.Parameter{
				{Name: "fast_period", Type: strategy.ParamInt, Value: 3},
				{Name: "slow_period", Type: strategy.ParamInt, Value: 10},
				{Name: "qty", Type: strategy.ParamInt, Value: 1},
			},
		}
		ex, err := executor.New(executor.Config{
			Broker:     broker.Config{InitialCash: 100_000, FillStrategy: order.BarFillStrategy{}},
			Contracts:  contracts,
			Feeds:      []feed.BarFeed{f},
			Strategies: []strategy.Config{strategyCfg},
			Registry:   strategy.Default,
			RunID:      "determinism-run",
		})
		if err != nil {
			t.Fatalf("executor.New: %v", err)
		}
		return ex.Run()
	}

	a := build()
	b := build()
	if a.FinalEquity != b.FinalEquity || a.TradeCount != b.TradeCount || a.CumulativeReturn != b.CumulativeReturn {
		t.Errorf("two runs over the same feed diverged: %+v vs %+v", a, b)
	}
}
