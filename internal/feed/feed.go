// Package feed implements the lazy bar sequence abstraction of spec.md
// §4.2: a per-instrument, per-resolution stream of bars with tradable
// sub-periods and synchronous historical look-backs, clonable so many
// executors can replay one dataset in parallel without copying the
// underlying data.
package feed

import (
	"fmt"
	"time"

	"xbacktest/internal/bar"
)

// TimelineInvertedError is the DataTimelineInverted fatal error kind
// (spec.md §7): a bar with an earlier timestamp than the previous bar in
// the same feed.
type TimelineInvertedError struct {
	Instrument string
	Index      int
	Prev       time.Time
	Curr       time.Time
}

func (e *TimelineInvertedError) Error() string {
	return fmt.Sprintf("feed: timeline inverted for %s at index %d: %s then %s",
		e.Instrument, e.Index, e.Prev.Format(time.RFC3339), e.Curr.Format(time.RFC3339))
}

// Period is a contiguous tradable sub-range [Start,End) within a feed's
// data, as opposed to a non-hot gap.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within [Start,End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// BarFeed is a lazy sequence of bars for one instrument at one resolution.
// A feed is not safe for concurrent use; Clone produces an independent
// reader over shared, immutable backing data (spec.md §4.2, §5).
type BarFeed interface {
	Instrument() string
	Resolution() bar.Resolution
	Interval() int
	// PeekDateTime returns the timestamp of the next unconsumed bar
	// without consuming it, and false if the feed is exhausted (EOF).
	PeekDateTime() (time.Time, bool)
	// NextBar consumes and returns the next bar, or false at EOF.
	NextBar() (bar.Bar, bool)
	// TradablePeriods returns the contiguous sub-ranges within which the
	// instrument is marked tradable in the source data.
	TradablePeriods() []Period
	// History returns the N bars ending at or before `to`, oldest first,
	// without disturbing the feed's own read cursor.
	History(to time.Time, n int) []bar.Bar
	// Clone returns a new feed sharing this feed's backing data with a
	// zero read cursor.
	Clone() BarFeed
}

// MemoryFeed is a BarFeed backed by an in-memory, already-validated,
// timestamp-sorted slice of bars. It stands in for the production
// memory-mapped file loader (spec.md §9): cloning is O(1) because the
// backing slice is shared and read-only; each clone carries its own
// cursor.
type MemoryFeed struct {
	instrument string
	res        bar.Resolution
	interval   int
	data       []bar.Bar // shared, immutable once built
	periods    []Period  // shared, immutable once built
	cursor     int
}

// NewMemoryFeed validates bars are non-decreasing in time and builds
// tradable periods by splitting wherever hotFlags[i] is false (hotFlags
// may be nil, meaning the whole feed is one tradable period).
func NewMemoryFeed(instrument string, res bar.Resolution, interval int, bars []bar.Bar, hotFlags []bool) (*MemoryFeed, error) {
	for i := 1; i < len(bars); i++ {
		if bars[i].DateTime.Before(bars[i-1].DateTime) {
			return nil, &TimelineInvertedError{Instrument: instrument, Index: i, Prev: bars[i-1].DateTime, Curr: bars[i].DateTime}
		}
	}
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &MemoryFeed{
		instrument: instrument,
		res:        res,
		interval:   interval,
		data:       bars,
		periods:    buildPeriods(bars, hotFlags, res, interval),
	}, nil
}

func buildPeriods(bars []bar.Bar, hotFlags []bool, res bar.Resolution, interval int) []Period {
	if len(bars) == 0 {
		return nil
	}
	if hotFlags == nil {
		return []Period{{Start: bars[0].DateTime, End: bars[len(bars)-1].DateTime.Add(res.Duration(interval) + time.Nanosecond)}}
	}
	var periods []Period
	var start time.Time
	open := false
	for i, b := range bars {
		hot := i < len(hotFlags) && hotFlags[i]
		if hot && !open {
			start = b.DateTime
			open = true
		}
		if !hot && open {
			periods = append(periods, Period{Start: start, End: b.DateTime})
			open = false
		}
	}
	if open {
		last := bars[len(bars)-1]
		periods = append(periods, Period{Start: start, End: last.DateTime.Add(res.Duration(interval) + time.Nanosecond)})
	}
	return periods
}

func (f *MemoryFeed) Instrument() string          { return f.instrument }
func (f *MemoryFeed) Resolution() bar.Resolution  { return f.res }
func (f *MemoryFeed) Interval() int               { return f.interval }
func (f *MemoryFeed) TradablePeriods() []Period   { return f.periods }

func (f *MemoryFeed) PeekDateTime() (time.Time, bool) {
	if f.cursor >= len(f.data) {
		return time.Time{}, false
	}
	return f.data[f.cursor].DateTime, true
}

func (f *MemoryFeed) NextBar() (bar.Bar, bool) {
	if f.cursor >= len(f.data) {
		return bar.Bar{}, false
	}
	b := f.data[f.cursor]
	f.cursor++
	return b, true
}

func (f *MemoryFeed) History(to time.Time, n int) []bar.Bar {
	// Binary search for the last index with DateTime <= to.
	lo, hi := 0, len(f.data)
	for lo < hi {
		mid := (lo + hi) / 2
		if f.data[mid].DateTime.After(to) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	end := lo // exclusive
	start := end - n
	if start < 0 {
		start = 0
	}
	out := make([]bar.Bar, end-start)
	copy(out, f.data[start:end])
	return out
}

// Clone returns a new reader over the same shared, immutable slice with a
// zero cursor.
func (f *MemoryFeed) Clone() BarFeed {
	return &MemoryFeed{
		instrument: f.instrument,
		res:        f.res,
		interval:   f.interval,
		data:       f.data, // shared backing array, never mutated
		periods:    f.periods,
	}
}
