// Package bar defines the immutable tick-summary type every other package
// in this engine is built on, plus the per-instrument static metadata
// (Contract) that governs notional, margin, fees and trading hours.
package bar

import (
	"fmt"
	"time"
)

// Resolution is the unit a Bar's Interval multiplies.
type Resolution int

const (
	Tick Resolution = iota
	Second
	Minute
	Hour
	Day
	Week
)

func (r Resolution) String() string {
	switch r {
	case Tick:
		return "tick"
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	default:
		return "unknown"
	}
}

// Duration returns the nominal wall-clock span of one bar at this
// resolution and interval. Tick has no fixed duration and returns 0.
func (r Resolution) Duration(interval int) time.Duration {
	switch r {
	case Second:
		return time.Duration(interval) * time.Second
	case Minute:
		return time.Duration(interval) * time.Minute
	case Hour:
		return time.Duration(interval) * time.Hour
	case Day:
		return time.Duration(interval) * 24 * time.Hour
	case Week:
		return time.Duration(interval) * 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Quote carries optional level-1 quote fields alongside a Bar.
type Quote struct {
	Last    float64
	Bid     float64
	Ask     float64
	BidSize int64
	AskSize int64
}

// Bar is an immutable OHLCV summary of trading within one fixed time slice
// of one instrument. Invariant: Low <= Open,Close <= High; Volume >= 0.
type Bar struct {
	Instrument    string
	DateTime      time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	OpenInterest  int64
	Resolution    Resolution
	Interval      int
	Quote         *Quote
	NoTradeFlag   bool // degenerate bar: High == Low, "no trading possible"
}

// Validate checks the Bar invariant, returning a *bar.InvalidPriceError
// wrapping the offending field when it is violated. It does not check
// monotonicity against any other bar — that is the feed's responsibility
// (see feed.ErrTimelineInverted).
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return &InvalidPriceError{Instrument: b.Instrument, DateTime: b.DateTime, Reason: "non-positive OHLC"}
	}
	if b.High < b.Low {
		return &InvalidPriceError{Instrument: b.Instrument, DateTime: b.DateTime, Reason: "high < low"}
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return &InvalidPriceError{Instrument: b.Instrument, DateTime: b.DateTime, Reason: "open/close outside high/low range"}
	}
	if b.Volume < 0 {
		return &InvalidPriceError{Instrument: b.Instrument, DateTime: b.DateTime, Reason: "negative volume"}
	}
	return nil
}

// Degenerate reports whether High == Low, meaning no trading was possible
// within this bar (spec.md §3).
func (b Bar) Degenerate() bool {
	return b.High == b.Low
}

// InvalidPriceError is the DataInvalidPrice fatal error kind (spec.md §7).
type InvalidPriceError struct {
	Instrument string
	DateTime   time.Time
	Reason     string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("bar: invalid price for %s at %s: %s", e.Instrument, e.DateTime.Format(time.RFC3339), e.Reason)
}

// CommissionKind selects how a Contract computes per-fill commission.
type CommissionKind int

const (
	CommissionNone CommissionKind = iota
	CommissionFixedPerTrade
	CommissionPercentOfNotional
)

// SlippageKind selects how a Contract computes per-fill slippage.
type SlippageKind int

const (
	SlippageNone SlippageKind = iota
	SlippageFixedPerTrade
	SlippagePercentOfNotional
)

// Contract is static per-instrument metadata: multiplier (points-to-
// currency), tick size, margin ratio, commission/slippage model, and
// contract session open/close time-of-day.
type Contract struct {
	Instrument     string
	Multiplier     float64
	TickSize       float64
	MarginRatio    float64
	CommissionKind CommissionKind
	CommissionArg  float64
	SlippageKind   SlippageKind
	SlippageArg    float64
	// OpenTime/CloseTime are seconds-since-midnight marking the contract's
	// nominal trading session bounds, used by the composer's intraday
	// slicing and by tradable-period detection.
	OpenTime  int
	CloseTime int
}

// Commission returns the commission charged for a fill of qty shares at
// price, scaled by the contract multiplier.
func (c Contract) Commission(price float64, qty int, multiplier float64) float64 {
	switch c.CommissionKind {
	case CommissionFixedPerTrade:
		return c.CommissionArg
	case CommissionPercentOfNotional:
		return price * float64(qty) * multiplier * c.CommissionArg
	default:
		return 0
	}
}

// Slippage returns the slippage charged for a fill of qty shares at price,
// scaled by the contract multiplier.
func (c Contract) Slippage(price float64, qty int, multiplier float64) float64 {
	switch c.SlippageKind {
	case SlippageFixedPerTrade:
		return c.SlippageArg
	case SlippagePercentOfNotional:
		return price * float64(qty) * multiplier * c.SlippageArg
	default:
		return 0
	}
}

// RoundToTick rounds price to the nearest tick. If up is true, rounding at
// the midpoint goes up; otherwise it goes down. This is used by stop
// conditions (spec.md §4.5) to guarantee the emitted price lands within
// the triggering bar's range.
func (c Contract) RoundToTick(price float64, up bool) float64 {
	if c.TickSize <= 0 {
		return price
	}
	ticks := price / c.TickSize
	var rounded float64
	if up {
		rounded = ceilFloat(ticks)
	} else {
		rounded = floorFloat(ticks)
	}
	return rounded * c.TickSize
}

func floorFloat(v float64) float64 {
	i := float64(int64(v))
	if v < 0 && i != v {
		i--
	}
	return i
}

func ceilFloat(v float64) float64 {
	i := float64(int64(v))
	if v > 0 && i != v {
		i++
	}
	return i
}
