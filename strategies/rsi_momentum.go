package strategies

import (
	"xbacktest/internal/bar"
	"xbacktest/internal/series"
	"xbacktest/internal/strategy"
)

func init() {
	strategy.Default.Register("rsi-momentum", func() strategy.Strategy { return NewRSIMomentum() })
}

type rsiState struct {
	rsi *series.RSI
}

// RSIMomentum is a mean-reversion strategy: when RSI dips below Oversold
// it covers any short and buys, and when RSI rises above Overbought it
// closes any long. Grounded on libs/strategies/rsi_momentum.go's
// oversold/overbought thresholds, dropping its confidence score since
// entries here are binary strategy.Handle order placements rather than
// scored Signal values.
type RSIMomentum struct {
	strategy.BaseStrategy

	Period     int
	Oversold   float64
	Overbought float64
	Qty        int

	states map[string]*rsiState
}

// NewRSIMomentum builds an RSIMomentum with the teacher's original
// 14-period RSI and 30/70 thresholds.
func NewRSIMomentum() *RSIMomentum {
	return &RSIMomentum{Period: 14, Oversold: 30, Overbought: 70, Qty: 100, states: make(map[string]*rsiState)}
}

func (s *RSIMomentum) OnSetParameter(name string, typ strategy.ParamType, value interface{}, isLast bool) {
	switch name {
	case "rsi_period":
		s.Period = intParam(value)
	case "oversold":
		s.Oversold = floatParam(value)
	case "overbought":
		s.Overbought = floatParam(value)
	case "qty":
		s.Qty = intParam(value)
	}
}

func (s *RSIMomentum) stateFor(instrument string) *rsiState {
	st, ok := s.states[instrument]
	if !ok {
		st = &rsiState{rsi: series.NewRSI(s.Period)}
		s.states[instrument] = st
	}
	return st
}

func (s *RSIMomentum) OnBar(h strategy.Handle, b bar.Bar) {
	st := s.stateFor(b.Instrument)
	st.rsi.OnNewValue(b.DateTime, b.Close)
	if !st.rsi.Ready() {
		return
	}

	long := h.LongPosition(b.Instrument)
	short := h.ShortPosition(b.Instrument)
	v := st.rsi.Value()

	switch {
	case v < s.Oversold:
		if short != nil && short.TotalShares != 0 {
			h.BuyToCover(-short.TotalShares, 0, 0, false)
		}
		if long == nil || long.TotalShares == 0 {
			h.Buy(s.Qty, 0, 0, false)
		}
	case v > s.Overbought:
		if long != nil && long.TotalShares != 0 {
			h.Sell(long.TotalShares, 0, 0, false)
		}
	}
}
