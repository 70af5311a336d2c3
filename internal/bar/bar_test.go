package bar_test

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
)

func validBar() bar.Bar {
	return bar.Bar{
		Instrument: "ES",
		DateTime:   time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
		Open:       100, High: 101, Low: 99, Close: 100.5,
		Volume:     10,
		Resolution: bar.Minute,
		Interval:   1,
	}
}

func TestBarValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*bar.Bar)
		wantErr bool
	}{
		{"valid", func(b *bar.Bar) {}, false},
		{"non-positive open", func(b *bar.Bar) { b.Open = 0 }, true},
		{"non-positive close", func(b *bar.Bar) { b.Close = -1 }, true},
		{"high less than low", func(b *bar.Bar) { b.High = 98; b.Low = 99 }, true},
		{"open above high", func(b *bar.Bar) { b.Open = 200 }, true},
		{"close below low", func(b *bar.Bar) { b.Close = 1 }, true},
		{"negative volume", func(b *bar.Bar) { b.Volume = -1 }, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := validBar()
			c.mutate(&b)
			err := b.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
			if err != nil {
				if _, ok := err.(*bar.InvalidPriceError); !ok {
					t.Errorf("Validate() error type = %T, want *bar.InvalidPriceError", err)
				}
			}
		})
	}
}

func TestBarDegenerate(t *testing.T) {
	b := validBar()
	if b.Degenerate() {
		t.Error("Degenerate() = true for a normal bar")
	}
	b.High = 100
	b.Low = 100
	b.Open = 100
	b.Close = 100
	if !b.Degenerate() {
		t.Error("Degenerate() = false for a High==Low bar")
	}
}

func TestContractRoundToTick(t *testing.T) {
	c := bar.Contract{TickSize: 0.25}
	cases := []struct {
		price float64
		up    bool
		want  float64
	}{
		{99.0, false, 99.0},
		{99.1, false, 99.0},
		{99.1, true, 99.25},
		{99.26, false, 99.25},
		{-0.1, false, -0.25},
		{-0.1, true, 0},
	}
	for _, c2 := range cases {
		got := c.RoundToTick(c2.price, c2.up)
		if got != c2.want {
			t.Errorf("RoundToTick(%v, %v) = %v, want %v", c2.price, c2.up, got, c2.want)
		}
	}
}

func TestContractRoundToTickZeroTickSizeIsNoop(t *testing.T) {
	c := bar.Contract{TickSize: 0}
	if got := c.RoundToTick(99.123, false); got != 99.123 {
		t.Errorf("RoundToTick with zero tick size = %v, want 99.123 unchanged", got)
	}
}

func TestContractCommission(t *testing.T) {
	fixed := bar.Contract{CommissionKind: bar.CommissionFixedPerTrade, CommissionArg: 5}
	if got := fixed.Commission(100, 10, 1); got != 5 {
		t.Errorf("fixed commission = %v, want 5", got)
	}
	pct := bar.Contract{CommissionKind: bar.CommissionPercentOfNotional, CommissionArg: 0.001}
	if got := pct.Commission(100, 10, 1); got != 1 {
		t.Errorf("percent commission = %v, want 1 (100*10*1*0.001)", got)
	}
	none := bar.Contract{}
	if got := none.Commission(100, 10, 1); got != 0 {
		t.Errorf("none commission = %v, want 0", got)
	}
}

func TestContractSlippage(t *testing.T) {
	pct := bar.Contract{SlippageKind: bar.SlippagePercentOfNotional, SlippageArg: 0.0005}
	if got := pct.Slippage(200, 5, 2); got != 200*5*2*0.0005 {
		t.Errorf("percent slippage = %v, want %v", got, 200*5*2*0.0005)
	}
}
