package walkforward

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/feed"
	"xbacktest/internal/strategy"
)

// buyOnceStrategy buys 1 share at market on the first bar it sees and
// never trades again, just enough to exercise the executor's fill path
// inside each walk-forward window.
type buyOnceStrategy struct {
	strategy.BaseStrategy
	bought bool
}

func (s *buyOnceStrategy) OnBar(h strategy.Handle, b bar.Bar) {
	if s.bought {
		return
	}
	s.bought = true
	h.Buy(1, 0, 0, false)
}

func dailyBars(instrument string, start time.Time, n int, startPrice float64) []bar.Bar {
	bars := make([]bar.Bar, n)
	price := startPrice
	for i := 0; i < n; i++ {
		price += 0.1
		dt := start.AddDate(0, 0, i)
		bars[i] = bar.Bar{
			Instrument: instrument,
			DateTime:   dt,
			Open:       price,
			High:       price + 1,
			Low:        price - 1,
			Close:      price,
			Volume:     100,
			Resolution: bar.Day,
			Interval:   1,
		}
	}
	return bars
}

func TestRun_WindowsAndAggregation(t *testing.T) {
	reg := strategy.NewRegistry()
	if err := reg.Register("buy-once", func() strategy.Strategy { return &buyOnceStrategy{} }); err != nil {
		t.Fatalf("Register: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := dailyBars("TEST", start, 200, 100)
	f, err := feed.NewMemoryFeed("TEST", bar.Day, 1, bars, nil)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}

	cfg := Config{
		Strategies: []strategy.Config{{Name: "buy-once", SubscribeAll: true}},
		Registry:   reg,
		Feed:       f,
		Contracts: map[string]bar.Contract{
			"TEST": {Instrument: "TEST", Multiplier: 1, TickSize: 0.01, MarginRatio: 1},
		},
		FullStart:    start,
		FullEnd:      start.AddDate(0, 0, 199),
		ISPeriod:     30 * 24 * time.Hour,
		OOSPeriod:    10 * 24 * time.Hour,
		InitialCash:  10_000,
		BrokerConfig: broker.Config{InitialCash: 10_000},
	}

	result, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Windows) == 0 {
		t.Fatal("expected at least one window")
	}
	if result.PassRate < 0 || result.PassRate > 1 {
		t.Errorf("PassRate out of [0,1]: %v", result.PassRate)
	}
	if result.StabilityScore < 0 || result.StabilityScore > 1 {
		t.Errorf("StabilityScore out of [0,1]: %v", result.StabilityScore)
	}
}

func TestRun_RangeTooShort(t *testing.T) {
	reg := strategy.NewRegistry()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := dailyBars("TEST", start, 5, 100)
	f, err := feed.NewMemoryFeed("TEST", bar.Day, 1, bars, nil)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	cfg := Config{
		Registry:  reg,
		Feed:      f,
		Contracts: map[string]bar.Contract{"TEST": {Instrument: "TEST", Multiplier: 1, MarginRatio: 1}},
		FullStart: start,
		FullEnd:   start.AddDate(0, 0, 4),
		ISPeriod:  30 * 24 * time.Hour,
		OOSPeriod: 10 * 24 * time.Hour,
	}
	if _, err := Run(cfg); err == nil {
		t.Fatal("expected error for too-short range")
	}
}

func TestWFERVerdict(t *testing.T) {
	cases := []struct {
		wfer float64
		want string
	}{
		{0.8, "EXCELLENT - strategy transfers to OOS data well"},
		{0.55, "GOOD - strategy is deployable"},
		{0.1, "MARGINAL - live performance likely to underperform IS"},
		{-0.2, "FAIL - strategy loses money out-of-sample; do not deploy"},
	}
	for _, c := range cases {
		got := WFERVerdict(&Result{WFER: c.wfer})
		if got != c.want {
			t.Errorf("WFERVerdict(%v) = %q, want %q", c.wfer, got, c.want)
		}
	}
}
