// Package strategies holds the sample strategies shipped alongside the
// engine: MA crossover, RSI momentum, and MACD crossover, each
// self-registering into strategy.Default so a scenario file can select
// them by name. Adapted from the teacher's
// libs/strategies/{ma_crossover,rsi_momentum,macd_crossover}.go, rewired
// from a precomputed AnalysisInput onto live internal/series indicator
// pipelines driven bar by bar.
package strategies

import (
	"xbacktest/internal/bar"
	"xbacktest/internal/series"
	"xbacktest/internal/strategy"
)

func init() {
	strategy.Default.Register("ma-crossover", func() strategy.Strategy { return NewMACrossover() })
}

// maState is one instrument's fast/slow SMA pair and the prior crossover
// side, used to detect the crossing edge rather than the level.
type maState struct {
	fast       *series.SMA
	slow       *series.SMA
	fastAbove  bool
	haveSignal bool
}

// MACrossover goes long on a fast-over-slow SMA crossover and flat on a
// fast-under-slow crossover, one position per subscribed instrument.
// Grounded on libs/strategies/ma_crossover.go's golden/death cross logic,
// simplified from its three-MA confidence-scored signal to a direct
// two-MA entry/exit since this engine trades on hook callbacks rather
// than scored signals.
type MACrossover struct {
	strategy.BaseStrategy

	FastPeriod int
	SlowPeriod int
	Qty        int

	states map[string]*maState
}

// NewMACrossover builds a MACrossover with the teacher's original
// defaults (20/50-period SMAs).
func NewMACrossover() *MACrossover {
	return &MACrossover{FastPeriod: 20, SlowPeriod: 50, Qty: 100, states: make(map[string]*maState)}
}

func (s *MACrossover) OnSetParameter(name string, typ strategy.ParamType, value interface{}, isLast bool) {
	switch name {
	case "fast_period":
		s.FastPeriod = intParam(value)
	case "slow_period":
		s.SlowPeriod = intParam(value)
	case "qty":
		s.Qty = intParam(value)
	}
}

func (s *MACrossover) stateFor(instrument string) *maState {
	st, ok := s.states[instrument]
	if !ok {
		st = &maState{fast: series.NewSMA(s.FastPeriod), slow: series.NewSMA(s.SlowPeriod)}
		s.states[instrument] = st
	}
	return st
}

func (s *MACrossover) OnBar(h strategy.Handle, b bar.Bar) {
	st := s.stateFor(b.Instrument)
	st.fast.OnNewValue(b.DateTime, b.Close)
	st.slow.OnNewValue(b.DateTime, b.Close)
	if !st.fast.Ready() || !st.slow.Ready() {
		return
	}

	fastAbove := st.fast.Value() > st.slow.Value()
	if !st.haveSignal {
		st.haveSignal = true
		st.fastAbove = fastAbove
		return
	}
	crossedUp := fastAbove && !st.fastAbove
	crossedDown := !fastAbove && st.fastAbove
	st.fastAbove = fastAbove

	long := h.LongPosition(b.Instrument)
	short := h.ShortPosition(b.Instrument)

	switch {
	case crossedUp:
		if short != nil && short.TotalShares != 0 {
			h.BuyToCover(-short.TotalShares, 0, 0, false)
		}
		if long == nil || long.TotalShares == 0 {
			h.Buy(s.Qty, 0, 0, false)
		}
	case crossedDown:
		if long != nil && long.TotalShares != 0 {
			h.Sell(long.TotalShares, 0, 0, false)
		}
	}
}

// intParam coerces a strategy.Parameter's interface{} value (an int,
// float64 from an XML-decoded optimizer position, or a string) to int.
func intParam(v interface{}) int {
	switch x := v.(type) {
	case int:
		return x
	case float64:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}

func floatParam(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}
