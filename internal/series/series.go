// Package series implements the bounded, append-only, newest-index-0
// sequence data series and the rolling-window filter pipeline that sits on
// top of it (spec.md §4.1). Indicators are deliberately treated as
// black-box filters over sequence data — this package supplies only the
// generic windowing machinery; SMA/EMA/RSI/etc. are thin EventWindow
// implementations layered on it.
package series

import (
	"math"
	"time"
)

const defaultMaxLen = 1024

// ValueAt is one timestamped sample.
type ValueAt[T any] struct {
	DateTime time.Time
	Value    T
}

// NewValueHandler is invoked synchronously whenever a DataSeries receives
// an appended value.
type NewValueHandler[T any] func(dt time.Time, v T)

// DataSeries is a bounded, append-only, newest-index-0 time-stamped
// sequence. Index 0 is the newest value; index k is k samples back.
// Appends beyond MaxLen discard the oldest sample. Not safe for concurrent
// use — a DataSeries is owned by exactly one Runtime/Position per
// instrument within one executor (spec.md §5).
type DataSeries[T any] struct {
	maxLen    int
	values    []ValueAt[T] // values[0] is oldest; newest is appended at the end
	listeners []NewValueHandler[T]
}

// New creates a DataSeries with the given maximum length. maxLen <= 0 uses
// the default of 1024.
func New[T any](maxLen int) *DataSeries[T] {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &DataSeries[T]{maxLen: maxLen}
}

// Append adds a new newest value, discarding the oldest if the series is
// already at MaxLen, then synchronously notifies listeners.
func (s *DataSeries[T]) Append(dt time.Time, v T) {
	s.values = append(s.values, ValueAt[T]{DateTime: dt, Value: v})
	if len(s.values) > s.maxLen {
		s.values = s.values[len(s.values)-s.maxLen:]
	}
	for _, l := range s.listeners {
		l(dt, v)
	}
}

// Subscribe registers a handler invoked on every future Append.
func (s *DataSeries[T]) Subscribe(h NewValueHandler[T]) {
	s.listeners = append(s.listeners, h)
}

// Length returns the number of stored values (<= MaxLen).
func (s *DataSeries[T]) Length() int {
	return len(s.values)
}

// At returns the value k samples back from the newest (At(0) is newest).
// Panics on a negative index per spec.md §4.1 ("negative indices are
// disallowed").
func (s *DataSeries[T]) At(k int) ValueAt[T] {
	if k < 0 {
		panic("series: negative index")
	}
	n := len(s.values)
	return s.values[n-1-k]
}

// Values returns the last n values, oldest first. If n > Length, returns
// everything stored.
func (s *DataSeries[T]) Values(n int) []ValueAt[T] {
	ln := len(s.values)
	if n > ln {
		n = ln
	}
	return s.values[ln-n:]
}

// ─── EventWindow ───────────────────────────────────────────────────────────

// EventWindow is a rolling fixed-size window filter: it accepts input
// values of type I via OnNewValue, and once primed (N values seen)
// computes an output O. Value() returns the sentinel NaN float value (for
// float64 outputs) until primed — implementations define their own
// not-ready sentinel.
type EventWindow[I, O any] interface {
	OnNewValue(dt time.Time, v I)
	Value() O
	Ready() bool
}

// EventBasedFilter subscribes to one DataSeries[I], forwards each new
// value into its EventWindow, and emits the window's output into its own
// DataSeries[O] — the mechanism used to build indicator pipeline graphs
// (spec.md §4.1).
type EventBasedFilter[I, O any] struct {
	window EventWindow[I, O]
	Out    *DataSeries[O]
}

// NewFilter wires window to emit into a new output series of the given
// maxLen, subscribing to src.
func NewFilter[I, O any](src *DataSeries[I], window EventWindow[I, O], maxLen int) *EventBasedFilter[I, O] {
	f := &EventBasedFilter[I, O]{window: window, Out: New[O](maxLen)}
	src.Subscribe(func(dt time.Time, v I) {
		window.OnNewValue(dt, v)
		f.Out.Append(dt, window.Value())
	})
	return f
}

// NaN is the sentinel emitted by float64 windows before they are primed.
var NaN = math.NaN()

// IsNaN reports whether f is the not-ready sentinel.
func IsNaN(f float64) bool { return math.IsNaN(f) }
