package strategies

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
)

func TestRSIMomentum_BuysOnOversold(t *testing.T) {
	s := NewRSIMomentum()
	s.Period = 3
	s.Oversold = 30
	s.Overbought = 70
	s.Qty = 25
	h := newFakeHandle()

	// A steady decline drives RSI toward zero (all losses, no gains),
	// crossing below the oversold threshold once primed.
	prices := []float64{100, 99, 98, 97, 96, 95, 94}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		b := bar.Bar{Instrument: "TEST", DateTime: base.AddDate(0, 0, i), Close: p}
		s.OnBar(h, b)
	}

	if len(h.buys) == 0 {
		t.Fatalf("expected a buy once RSI drops below oversold, got none")
	}
	if h.buys[0] != 25 {
		t.Errorf("expected buy qty 25, got %d", h.buys[0])
	}
}

func TestRSIMomentum_SellsOnOverbought(t *testing.T) {
	s := NewRSIMomentum()
	s.Period = 3
	s.Oversold = 30
	s.Overbought = 70
	h := newFakeHandle()

	// Seed an open long so the overbought crossing has something to exit.
	h.longs["TEST"] = samplePositionForTest(10)

	prices := []float64{100, 101, 102, 103, 104, 105, 106}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		b := bar.Bar{Instrument: "TEST", DateTime: base.AddDate(0, 0, i), Close: p}
		s.OnBar(h, b)
	}

	if len(h.sells) == 0 {
		t.Fatalf("expected a sell once RSI rises above overbought, got none")
	}
}
