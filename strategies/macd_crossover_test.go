package strategies

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
)

func TestMACDCrossover_BuysOnBullishCrossover(t *testing.T) {
	s := NewMACDCrossover()
	s.FastPeriod = 2
	s.SlowPeriod = 4
	s.SignalPeriod = 2
	s.Qty = 15
	h := newFakeHandle()

	// Flat prices prime the MACD at zero histogram, then a rally pushes
	// the fast EMA above the slow EMA, turning the histogram positive.
	prices := []float64{10, 10, 10, 10, 10, 10, 20, 30, 40}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		b := bar.Bar{Instrument: "TEST", DateTime: base.AddDate(0, 0, i), Close: p}
		s.OnBar(h, b)
	}

	if len(h.buys) == 0 {
		t.Fatalf("expected a buy once the MACD histogram turns positive, got none")
	}
	if h.buys[0] != 15 {
		t.Errorf("expected buy qty 15, got %d", h.buys[0])
	}
}

func TestMACDCrossover_SetParameter(t *testing.T) {
	s := NewMACDCrossover()
	s.OnSetParameter("fast_period", 0, 8, false)
	s.OnSetParameter("slow_period", 0, 21, false)
	s.OnSetParameter("signal_period", 0, 5, false)
	s.OnSetParameter("qty", 0, 200, true)
	if s.FastPeriod != 8 || s.SlowPeriod != 21 || s.SignalPeriod != 5 || s.Qty != 200 {
		t.Errorf("unexpected parameter state: %#v", s)
	}
}
