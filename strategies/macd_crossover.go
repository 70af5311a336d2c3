package strategies

import (
	"xbacktest/internal/bar"
	"xbacktest/internal/series"
	"xbacktest/internal/strategy"
)

func init() {
	strategy.Default.Register("macd-crossover", func() strategy.Strategy { return NewMACDCrossover() })
}

type macdState struct {
	macd       *series.MACD
	prevHist   float64
	haveSignal bool
}

// MACDCrossover is a trend-following strategy that goes long when the
// MACD histogram crosses from non-positive to positive and exits when it
// crosses from non-negative to negative. Grounded on
// libs/strategies/macd_crossover.go's bullish/bearish histogram-sign
// logic, dropping its confidence score and stop-loss/take-profit ladder
// in favor of the position-level stop helpers on strategy.Handle.
type MACDCrossover struct {
	strategy.BaseStrategy

	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
	Qty          int

	states map[string]*macdState
}

// NewMACDCrossover builds a MACDCrossover with the teacher's original
// 12/26/9 periods.
func NewMACDCrossover() *MACDCrossover {
	return &MACDCrossover{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9, Qty: 100, states: make(map[string]*macdState)}
}

func (s *MACDCrossover) OnSetParameter(name string, typ strategy.ParamType, value interface{}, isLast bool) {
	switch name {
	case "fast_period":
		s.FastPeriod = intParam(value)
	case "slow_period":
		s.SlowPeriod = intParam(value)
	case "signal_period":
		s.SignalPeriod = intParam(value)
	case "qty":
		s.Qty = intParam(value)
	}
}

func (s *MACDCrossover) stateFor(instrument string) *macdState {
	st, ok := s.states[instrument]
	if !ok {
		st = &macdState{macd: series.NewMACD(s.FastPeriod, s.SlowPeriod, s.SignalPeriod)}
		s.states[instrument] = st
	}
	return st
}

func (s *MACDCrossover) OnBar(h strategy.Handle, b bar.Bar) {
	st := s.stateFor(b.Instrument)
	st.macd.OnNewValue(b.DateTime, b.Close)
	if !st.macd.Ready() {
		return
	}

	hist := st.macd.Value().Histogram
	if !st.haveSignal {
		st.haveSignal = true
		st.prevHist = hist
		return
	}
	crossedUp := hist > 0 && st.prevHist <= 0
	crossedDown := hist < 0 && st.prevHist >= 0
	st.prevHist = hist

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
