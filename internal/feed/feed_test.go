package feed_test

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/feed"
)

func TestMemoryFeedRejectsTimelineInversion(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := []bar.Bar{
		{Instrument: "ES", DateTime: base.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base, Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
	}
	_, err := feed.NewMemoryFeed("ES", bar.Minute, 1, bars, nil)
	if err == nil {
		t.Fatal("NewMemoryFeed did not reject an out-of-order bar sequence")
	}
	if _, ok := err.(*feed.TimelineInvertedError); !ok {
		t.Errorf("error type = %T, want *feed.TimelineInvertedError", err)
	}
}

func TestMemoryFeedNextBarAndPeek(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := []bar.Bar{
		{Instrument: "ES", DateTime: base, Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
	}
	f, err := feed.NewMemoryFeed("ES", bar.Minute, 1, bars, nil)
	if err != nil {
		t.Fatalf("NewMemoryFeed: %v", err)
	}
	dt, ok := f.PeekDateTime()
	if !ok || !dt.Equal(base) {
		t.Errorf("PeekDateTime() = %v, %v; want %v, true", dt, ok, base)
	}
	b, ok := f.NextBar()
	if !ok || !b.DateTime.Equal(base) {
		t.Errorf("NextBar() = %+v, %v; want first bar", b, ok)
	}
	_, ok = f.NextBar()
	if !ok {
		t.Fatal("NextBar() second call: want ok=true")
	}
	if _, ok := f.NextBar(); ok {
		t.Error("NextBar() after exhaustion: want ok=false")
	}
}

func TestMemoryFeedCloneIsIndependentCursor(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := []bar.Bar{
		{Instrument: "ES", DateTime: base, Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
	}
	f, err := feed.NewMemoryFeed("ES", bar.Minute, 1, bars, nil)
	if err != nil {
		t.Fatalf("NewMemoryFeed: %v", err)
	}
	f.NextBar() // advance original's cursor
	clone := f.Clone()
	dt, ok := clone.PeekDateTime()
	if !ok || !dt.Equal(base) {
		t.Errorf("clone's PeekDateTime() = %v, %v; want the original first bar's time (zero cursor)", dt, ok)
	}
}

func TestMemoryFeedTradablePeriodsSplitOnHotFlag(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := []bar.Bar{
		{Instrument: "ES", DateTime: base, Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(2 * time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(3 * time.Minute), Open: 100, High: 101, Low: 99, Close: 100, Resolution: bar.Minute, Interval: 1},
	}
	hot := []bool{true, true, false, true}
	f, err := feed.NewMemoryFeed("ES", bar.Minute, 1, bars, hot)
	if err != nil {
		t.Fatalf("NewMemoryFeed: %v", err)
	}
	periods := f.TradablePeriods()
	if len(periods) != 2 {
		t.Fatalf("TradablePeriods() = %+v, want 2 contiguous ranges", periods)
	}
	if !periods[0].Start.Equal(base) || !periods[0].End.Equal(base.Add(2*time.Minute)) {
		t.Errorf("first period = %+v, want [%v, %v)", periods[0], base, base.Add(2*time.Minute))
	}
}

func TestMemoryFeedHistory(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	var bars []bar.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, bar.Bar{
			Instrument: "ES", DateTime: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 105, Low: 99, Close: 100 + float64(i),
			Resolution: bar.Minute, Interval: 1,
		})
	}
	f, err := feed.NewMemoryFeed("ES", bar.Minute, 1, bars, nil)
	if err != nil {
		t.Fatalf("NewMemoryFeed: %v", err)
	}
	hist := f.History(base.Add(3*time.Minute), 2)
	if len(hist) != 2 {
		t.Fatalf("History(to=+3m, n=2) returned %d bars, want 2", len(hist))
	}
	if hist[0].Close != 102 || hist[1].Close != 103 {
		t.Errorf("History closes = [%v %v], want [102 103]", hist[0].Close, hist[1].Close)
	}
	// History must not disturb the feed's own read cursor.
	dt, _ := f.PeekDateTime()
	if !dt.Equal(base) {
		t.Errorf("feed cursor moved after History(): PeekDateTime() = %v, want %v", dt, base)
	}
}

// TestComposerIntradaySliceSum verifies spec.md §8 testable property 7:
// sum(input volumes within one output slice) = output volume; output
// high/low are the max/min over inputs; output close is the last input's
// close.
func TestComposerIntradaySliceSum(t *testing.T) {
	session := feed.Session{Ranges: []feed.SecondRange{{Open: 9 * 3600, Close: 10 * 3600}}}
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	var emitted []bar.Bar
	c := feed.NewIntradaySlicer(bar.Minute, 5, session, 300, func(b bar.Bar) { emitted = append(emitted, b) })

	// Five 1-minute bars inside the first 5-minute slice [9:00,9:05).
	inputs := []bar.Bar{
		{Instrument: "ES", DateTime: base, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10, OpenInterest: 5, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(time.Minute), Open: 100, High: 103, Low: 98, Close: 101, Volume: 20, OpenInterest: 6, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(2 * time.Minute), Open: 101, High: 102, Low: 97, Close: 99, Volume: 15, OpenInterest: 7, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(3 * time.Minute), Open: 99, High: 104, Low: 96, Close: 103, Volume: 5, OpenInterest: 8, Resolution: bar.Minute, Interval: 1},
		{Instrument: "ES", DateTime: base.Add(4 * time.Minute), Open: 103, High: 105, Low: 100, Close: 102, Volume: 25, OpenInterest: 9, Resolution: bar.Minute, Interval: 1},
	}
	for _, in := range inputs {
		c.OnBar(in)
	}
	// The 6th bar lands in the next slice, sealing the first.
	c.OnBar(bar.Bar{Instrument: "ES", DateTime: base.Add(5 * time.Minute), Open: 102, High: 102, Low: 101, Close: 101, Volume: 1, Resolution: bar.Minute, Interval: 1})

	if len(emitted) != 1 {
		t.Fatalf("emitted %d bars, want 1 sealed slice", len(emitted))
	}
	out := emitted[0]
	wantVolume := int64(10 + 20 + 15 + 5 + 25)
	if out.Volume != wantVolume {
		t.Errorf("slice volume = %d, want sum %d", out.Volume, wantVolume)
	}
	if out.High != 105 {
		t.Errorf("slice high = %v, want max 105", out.High)
	}
	if out.Low != 96 {
		t.Errorf("slice low = %v, want min 96", out.Low)
	}
	if out.Open != 100 {
		t.Errorf("slice open = %v, want first input's open 100", out.Open)
	}
	if out.Close != 102 {
		t.Errorf("slice close = %v, want last input's close 102", out.Close)
	}
	if out.OpenInterest != 9 {
		t.Errorf("slice open-interest = %v, want last observed 9", out.OpenInterest)
	}
	if !out.DateTime.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("slice timestamp = %v, want the closed slice's last input timestamp %v", out.DateTime, base.Add(4*time.Minute))
	}
}

func TestComposerAcrossDayAggregation(t *testing.T) {
	var emitted []bar.Bar
	c := feed.NewAcrossDayAggregator(bar.Day, 1, func(b bar.Bar) { emitted = append(emitted, b) })

	day1 := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 3, 9, 30, 0, 0, time.UTC)

	c.OnBar(bar.Bar{Instrument: "ES", DateTime: day1, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10, Resolution: bar.Minute, Interval: 1})
	c.OnBar(bar.Bar{Instrument: "ES", DateTime: day1.Add(time.Hour), Open: 100, High: 105, Low: 95, Close: 102, Volume: 20, Resolution: bar.Minute, Interval: 1})
	c.OnBar(bar.Bar{Instrument: "ES", DateTime: day2, Open: 102, High: 103, Low: 101, Close: 102, Volume: 5, Resolution: bar.Minute, Interval: 1})

	if len(emitted) != 1 {
		t.Fatalf("emitted %d bars before Flush, want 1 (day1 sealed when day2's bar arrives)", len(emitted))
	}
	if emitted[0].High != 105 || emitted[0].Low != 95 || emitted[0].Volume != 30 {
		t.Errorf("day1 bar = %+v, want High=105 Low=95 Volume=30", emitted[0])
	}

	c.Flush()
	if len(emitted) != 2 {
		t.Fatalf("emitted %d bars after Flush, want 2", len(emitted))
	}
	if emitted[1].Volume != 5 {
		t.Errorf("day2 bar = %+v, want Volume=5", emitted[1])
	}
}
