package feed

import (
	"time"

	"xbacktest/internal/bar"
)

// Session is a trading session table: a list of [open,close] second-of-day
// ranges within which the intraday composer slices its output.
type Session struct {
	Ranges []SecondRange
}

// SecondRange is a [Open,Close) range expressed in seconds-since-midnight.
type SecondRange struct {
	Open  int
	Close int
}

// secondOfDay returns t's time-of-day in seconds.
func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// Composer assembles higher-resolution output bars from a stream of
// lower-resolution input bars (spec.md §4.2). Two modes:
//
//   - Intraday slicing: session-bounded, fixed-length slices of the
//     trading day (e.g. 1m -> 5m).
//   - Across-day aggregation: a new output bar begins at the first input
//     bar whose date differs from the previous output bar's date (e.g.
//     1m -> 1d or 1w).
//
// Emit is called exactly once per closed slice/day, synchronously, in the
// same call that observes the boundary-crossing input bar.
type Composer struct {
	outRes      bar.Resolution
	outInterval int
	session     Session
	slicePeriod int // seconds, 0 disables intraday slicing (use across-day mode)

	building     bool
	current      bar.Bar
	curSliceIdx  int
	lastDate     time.Time
	haveLastDate bool

	Emit func(bar.Bar)
}

// NewIntradaySlicer builds a Composer that slices the trading session
// into equal-length slices of slicePeriod seconds, emitting one output
// bar per closed slice.
func NewIntradaySlicer(outRes bar.Resolution, outInterval int, session Session, slicePeriod int, emit func(bar.Bar)) *Composer {
	return &Composer{
		outRes:      outRes,
		outInterval: outInterval,
		session:     session,
		slicePeriod: slicePeriod,
		curSliceIdx: -1,
		Emit:        emit,
	}
}

// NewAcrossDayAggregator builds a Composer that seals an output bar at
// every date boundary in the input stream, for DAY/WEEK output from
// MINUTE input.
func NewAcrossDayAggregator(outRes bar.Resolution, outInterval int, emit func(bar.Bar)) *Composer {
	return &Composer{
		outRes:      outRes,
		outInterval: outInterval,
		curSliceIdx: -1,
		Emit:        emit,
	}
}

// sliceIndexFor returns the slice index that contains second s within the
// session, or -1 if s falls outside every session range.
func (c *Composer) sliceIndexFor(s int) int {
	base := 0
	for _, r := range c.session.Ranges {
		if s >= r.Open && s < r.Close {
			return base + (s-r.Open)/c.slicePeriod
		}
		base += (r.Close - r.Open + c.slicePeriod - 1) / c.slicePeriod
	}
	return -1
}

// OnBar ingests one lower-resolution input bar, updating the bar under
// construction and emitting a sealed output bar whenever a slice/day
// boundary is crossed.
func (c *Composer) OnBar(in bar.Bar) {
	if c.slicePeriod > 0 {
		c.onBarIntraday(in)
		return
	}
	c.onBarAcrossDay(in)
}

func (c *Composer) onBarIntraday(in bar.Bar) {
	idx := c.sliceIndexFor(secondOfDay(in.DateTime))
	if idx < 0 {
		return // outside every session range; drop
	}
	if c.building && idx != c.curSliceIdx {
		c.seal()
	}
	if !c.building {
		c.start(in)
		c.curSliceIdx = idx
	} else {
		c.accumulate(in)
	}
}

func (c *Composer) onBarAcrossDay(in bar.Bar) {
	date := dateOnly(in.DateTime)
	if c.building && c.haveLastDate && !date.Equal(c.lastDate) {
		c.seal()
	}
	if !c.building {
		c.start(in)
	} else {
		c.accumulate(in)
	}
	c.lastDate = date
	c.haveLastDate = true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (c *Composer) start(in bar.Bar) {
	c.building = true
	open := in.Open
	if in.Resolution == bar.Tick {
		// Tick inputs initialize OHLC from the first price (spec.md §4.2).
		open = firstTickPrice(in)
	}
	c.current = bar.Bar{
		Instrument:   in.Instrument,
		DateTime:     in.DateTime,
		Open:         open,
		High:         maxPrice(in),
		Low:          minPrice(in),
		Close:        in.Close,
		Volume:       in.Volume,
		OpenInterest: in.OpenInterest,
		Resolution:   c.outRes,
		Interval:     c.outInterval,
	}
}

func (c *Composer) accumulate(in bar.Bar) {
	if h := maxPrice(in); h > c.current.High {
		c.current.High = h
	}
	if l := minPrice(in); l < c.current.Low {
		c.current.Low = l
	}
	c.current.Close = in.Close
	c.current.Volume += in.Volume
	c.current.OpenInterest = in.OpenInterest
	c.current.DateTime = in.DateTime
}

func (c *Composer) seal() {
	if c.Emit != nil {
		c.Emit(c.current)
	}
	c.building = false
}

// Flush seals any in-progress bar at end of stream.
func (c *Composer) Flush() {
	if c.building {
		c.seal()
	}
}

func firstTickPrice(b bar.Bar) float64 {
	if b.Quote != nil && b.Quote.Last != 0 {
		return b.Quote.Last
	}
	return b.Close
}

func maxPrice(b bar.Bar) float64 {
	if b.Resolution == bar.Tick {
		return firstTickPrice(b)
	}
	return b.High
}

func minPrice(b bar.Bar) float64 {
	if b.Resolution == bar.Tick {
		return firstTickPrice(b)
	}
	return b.Low
}
