package series_test

import (
	"math"
	"testing"
	"time"

	"xbacktest/internal/series"
)

func TestDataSeriesNewestFirstAndRingBuffer(t *testing.T) {
	s := series.New[float64](3)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range []float64{1, 2, 3, 4} {
		s.Append(base.Add(time.Duration(i)*time.Minute), v)
	}
	if s.Length() != 3 {
		t.Fatalf("Length() = %d, want 3 (maxLen discards oldest)", s.Length())
	}
	// Oldest value (1) was evicted; newest (4) is at index 0.
	if got := s.At(0).Value; got != 4 {
		t.Errorf("At(0) = %v, want 4 (newest)", got)
	}
	if got := s.At(2).Value; got != 2 {
		t.Errorf("At(2) = %v, want 2 (oldest remaining)", got)
	}
}

func TestDataSeriesAtNegativeIndexPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("At(-1) did not panic")
		}
	}()
	s := series.New[float64](10)
	s.Append(time.Now(), 1)
	s.At(-1)
}

func TestDataSeriesNotifiesListenersOnAppend(t *testing.T) {
	s := series.New[float64](10)
	var seen []float64
	s.Subscribe(func(dt time.Time, v float64) { seen = append(seen, v) })
	s.Append(time.Now(), 1)
	s.Append(time.Now(), 2)
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("listener saw %v, want [1 2]", seen)
	}
}

func feedValues(w series.EventWindow[float64, float64], values []float64) {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		w.OnNewValue(base.Add(time.Duration(i)*time.Minute), v)
	}
}

func TestSMA(t *testing.T) {
	w := series.NewSMA(3)
	feedValues(w, []float64{1, 2})
	if w.Ready() {
		t.Fatal("SMA ready before N values seen")
	}
	feedValues(w, []float64{3})
	if !w.Ready() {
		t.Fatal("SMA not ready after N values")
	}
	if got := w.Value(); got != 2 {
		t.Errorf("SMA(1,2,3) = %v, want 2", got)
	}
	feedValues(w, []float64{6}) // window becomes (2,3,6)
	if got := w.Value(); got != (2.0+3.0+6.0)/3.0 {
		t.Errorf("SMA after slide = %v, want %v", got, (2.0+3.0+6.0)/3.0)
	}
}

func TestEMASeedsWithSMAThenRecurses(t *testing.T) {
	w := series.NewEMA(3) // multiplier 2/(3+1) = 0.5
	feedValues(w, []float64{1, 2, 3})
	if got := w.Value(); got != 2 {
		t.Errorf("EMA seed = %v, want SMA(1,2,3) = 2", got)
	}
	feedValues(w, []float64{10})
	want := (10-2)*0.5 + 2
	if got := w.Value(); math.Abs(got-want) > 1e-9 {
		t.Errorf("EMA after one step = %v, want %v", got, want)
	}
}

func TestHighestLowestInWindow(t *testing.T) {
	hi := series.NewHighestInWindow(3)
	lo := series.NewLowestInWindow(3)
	vals := []float64{5, 9, 2, 7, 1}
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		hi.OnNewValue(base.Add(time.Duration(i)*time.Minute), v)
		lo.OnNewValue(base.Add(time.Duration(i)*time.Minute), v)
	}
	// Last 3 values: 2, 7, 1
	if got := hi.Value(); got != 7 {
		t.Errorf("HighestInWindow(3) over last 3 of %v = %v, want 7", vals, got)
	}
	if got := lo.Value(); got != 1 {
		t.Errorf("LowestInWindow(3) over last 3 of %v = %v, want 1", vals, got)
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	w := series.NewRSI(3)
	vals := []float64{1, 2, 3, 4, 5}
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		w.OnNewValue(base.Add(time.Duration(i)*time.Minute), v)
	}
	if !w.Ready() {
		t.Fatal("RSI not ready")
	}
	if got := w.Value(); got != 100 {
		t.Errorf("RSI on a monotonically rising series = %v, want 100", got)
	}
}

func TestMACDFastEMADelayedForTALibParity(t *testing.T) {
	// fastN=3, slowN=5: the fast EMA must not start accumulating until
	// bar (slowN-fastN)+1 = 3, so fast and slow become Ready() on the
	// same bar (spec.md §4.1).
	w := series.NewMACD(3, 5, 2)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	vals := []float64{10, 11, 12, 13, 14, 15, 16, 17}
	for i, v := range vals {
		w.OnNewValue(base.Add(time.Duration(i)*time.Minute), v)
		if i < 5 && w.Ready() {
			t.Fatalf("MACD ready too early at bar %d", i)
		}
	}
	if !w.Ready() {
		t.Fatal("MACD never became ready")
	}
}

func TestATRWilderSmoothing(t *testing.T) {
	w := series.NewATR(2)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []series.OHLC{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
	}
	for i, b := range bars {
		w.OnNewValue(base.Add(time.Duration(i)*time.Minute), b)
	}
	if !w.Ready() {
		t.Fatal("ATR not ready after N true ranges")
	}
	// TR1 = 10-8=2, TR2 = max(11-9, |11-9|, |9-9|) = 2 -> seed ATR = (2+2)/2 = 2
	// TR3 = max(12-10, |12-10|, |10-10|) = 2 -> Wilder: (2*(2-1)+2)/2 = 2
	if got := w.Value(); math.Abs(got-2) > 1e-9 {
		t.Errorf("ATR(2) = %v, want 2", got)
	}
}
