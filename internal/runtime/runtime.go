// Package runtime implements the per-strategy-instance execution context
// of spec.md §4.6: bar-series caching, position bookkeeping, order
// placement helpers, and session activation gating.
package runtime

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/feed"
	"xbacktest/internal/order"
	"xbacktest/internal/position"
	"xbacktest/internal/series"
	"xbacktest/internal/strategy"
)

// Runtime binds one strategy callback object to one main instrument
// inside an Executor (spec.md Glossary, §4.6).
type Runtime struct {
	MainInstrument string

	strategy strategy.Strategy
	br       *broker.Broker
	contracts map[string]bar.Contract

	barSeries map[string]*series.DataSeries[bar.Bar]
	closeSeries map[string]*series.DataSeries[float64]

	longPositions  map[string]*position.Position
	shortPositions map[string]*position.Position

	submittedOrders map[string]*order.Order

	activePeriods []feed.Period
	lastBar       map[string]bar.Bar
	active        bool
	everActivated bool

	now time.Time
}

// New builds a Runtime bound to strategy s, placing orders through br,
// and using the given per-instrument session table.
func New(mainInstrument string, s strategy.Strategy, br *broker.Broker, contracts map[string]bar.Contract, activePeriods []feed.Period) *Runtime {
	r := &Runtime{
		MainInstrument:  mainInstrument,
		strategy:        s,
		br:              br,
		contracts:       contracts,
		barSeries:       make(map[string]*series.DataSeries[bar.Bar]),
		closeSeries:     make(map[string]*series.DataSeries[float64]),
		longPositions:   make(map[string]*position.Position),
		shortPositions:  make(map[string]*position.Position),
		submittedOrders: make(map[string]*order.Order),
		activePeriods:   activePeriods,
		lastBar:         make(map[string]bar.Bar),
	}
	br.OnFilled = r.chainFilled(br.OnFilled)
	br.OnFailed = r.chainFailed(br.OnFailed)
	return r
}

// chainFilled wraps any existing broker.OnFilled so multiple runtimes
// sharing one broker (subscribe-all processes) all observe fills.
func (r *Runtime) chainFilled(prev func(broker.FillEvent)) func(broker.FillEvent) {
	return func(ev broker.FillEvent) {
		if prev != nil {
			prev(ev)
		}
		r.onFill(ev)
	}
}

// chainFailed wraps any existing broker.OnFailed so multiple runtimes
// sharing one broker all observe rejections relevant to their own
// submitted orders.
func (r *Runtime) chainFailed(prev func(broker.RejectEvent)) func(broker.RejectEvent) {
	return func(ev broker.RejectEvent) {
		if prev != nil {
			prev(ev)
		}
		if _, mine := r.submittedOrders[ev.Order.ID]; mine {
			delete(r.submittedOrders, ev.Order.ID)
			r.strategy.OnOrderFailed(ev)
		}
	}
}

// Series returns (creating if needed) the bar series cache for
// instrument, which drives indicator pipelines built on top of it.
func (r *Runtime) Series(instrument string) *series.DataSeries[bar.Bar] {
	s, ok := r.barSeries[instrument]
	if !ok {
		s = series.New[bar.Bar](0)
		r.barSeries[instrument] = s
	}
	return s
}

// CloseSeries returns (creating if needed) the close-price series for
// instrument, the common input to price-based indicator pipelines.
func (r *Runtime) CloseSeries(instrument string) *series.DataSeries[float64] {
	s, ok := r.closeSeries[instrument]
	if !ok {
		s = series.New[float64](0)
		r.closeSeries[instrument] = s
	}
	return s
}

func (r *Runtime) inActivePeriod(t time.Time) bool {
	if len(r.activePeriods) == 0 {
		return true
	}
	for _, p := range r.activePeriods {
		if p.Contains(t) {
			return true
		}
	}
	return false
}

// OnBar runs the Runtime's per-bar sequence (spec.md §4.6): record the
// bar, run stop-condition machinery, invoke the strategy, then the
// broker's intra-bar pass for any exit orders just synthesized.
func (r *Runtime) OnBar(b bar.Bar) {
	r.now = b.DateTime
	r.lastBar[b.Instrument] = b
	r.Series(b.Instrument).Append(b.DateTime, b)
	r.CloseSeries(b.Instrument).Append(b.DateTime, b.Close)

	wasActive := r.active
	nowActive := r.inActivePeriod(b.DateTime)
	if wasActive && r.everActivated && !nowActive {
		r.CloseAllPositions()
	}
	r.active = nowActive
	r.everActivated = true
	if !r.active {
		return
	}

	if p := r.longPositions[b.Instrument]; p != nil {
		p.OnBar(b)
	}
	if p := r.shortPositions[b.Instrument]; p != nil {
		p.OnBar(b)
	}

	r.strategy.OnBar(r, b)

	r.br.ProcessIntraBar(b)
}

// OnBars runs the aggregated multi-instrument hook, invoked once per
// dispatcher tick for a subscribe-all strategy.
func (r *Runtime) OnBars(bars map[string]bar.Bar) {
	r.strategy.OnBars(r, bars)
}

func (r *Runtime) onFill(ev broker.FillEvent) {
	var p *position.Position
	if ev.Order.Action.Opens() {
		dir := position.Long
		if ev.Order.Action == order.SellShort {
			dir = position.Short
		}
		m := r.longPositions
		if dir == position.Short {
			m = r.shortPositions
		}
		p = m[ev.Instrument]
		if p == nil {
			p = position.New(ev.Instrument, dir, r.contracts[ev.Instrument], r.submit)
			p.OnOpened = r.strategy.OnPositionOpened
			p.OnChanged = r.strategy.OnPositionChanged
			p.OnClosed = r.strategy.OnPositionClosed
			m[ev.Instrument] = p
		}
	} else {
		if ev.Order.Action == order.Sell {
			p = r.longPositions[ev.Instrument]
		} else {
			p = r.shortPositions[ev.Instrument]
		}
	}
	if p != nil {
		p.OnFill(ev)
	}
	delete(r.submittedOrders, ev.Order.ID)
	r.strategy.OnOrderFilled(ev)
}

func (r *Runtime) submit(o *order.Order) {
	if !r.active {
		return // orders placed while inactive are silently dropped (spec.md §4.6)
	}
	r.submittedOrders[o.ID] = o
	r.br.Submit(o, r.now)
}

// ─── strategy.Handle ────────────────────────────────────────────────────

func (r *Runtime) placeOrder(instrument string, typ order.Type, action order.Action, qty int, stop, limit float64, immediately bool) {
	o := order.New(instrument, typ, action, qty)
	o.StopPrice = stop
	o.LimitPrice = limit
	if immediately {
		o.ExecTiming = order.IntraBar
	}
	r.submit(o)
}

func orderTypeFor(stop, limit float64) order.Type {
	switch {
	case stop != 0 && limit != 0:
		return order.StopLimit
	case stop != 0:
		return order.Stop
	case limit != 0:
		return order.Limit
	default:
		return order.Market
	}
}

func (r *Runtime) Buy(qty int, stop, limit float64, immediately bool) {
	r.placeOrder(r.MainInstrument, orderTypeFor(stop, limit), order.Buy, qty, stop, limit, immediately)
}

func (r *Runtime) Sell(qty int, stop, limit float64, immediately bool) {
	r.placeOrder(r.MainInstrument, orderTypeFor(stop, limit), order.Sell, qty, stop, limit, immediately)
}

func (r *Runtime) SellShort(qty int, stop, limit float64, immediately bool) {
	r.placeOrder(r.MainInstrument, orderTypeFor(stop, limit), order.SellShort, qty, stop, limit, immediately)
}

func (r *Runtime) BuyToCover(qty int, stop, limit float64, immediately bool) {
	r.placeOrder(r.MainInstrument, orderTypeFor(stop, limit), order.BuyToCover, qty, stop, limit, immediately)
}

// OpenLong flips any open short position via a matched buy-to-cover
// before buying qty (spec.md §4.6).
func (r *Runtime) OpenLong(qty int) {
	if sp := r.shortPositions[r.MainInstrument]; sp != nil && sp.TotalShares != 0 {
		r.BuyToCover(-sp.TotalShares, 0, 0, false)
	}
	r.Buy(qty, 0, 0, false)
}

func (r *Runtime) LongPosition(instrument string) *position.Position  { return r.longPositions[instrument] }
func (r *Runtime) ShortPosition(instrument string) *position.Position { return r.shortPositions[instrument] }

// Positions returns every long and short Position this runtime has ever
// opened (including closed ones still addressable), for report writers
// that need the full transaction history (spec.md §6.4 Positions.csv).
func (r *Runtime) Positions() []*position.Position {
	out := make([]*position.Position, 0, len(r.longPositions)+len(r.shortPositions))
	for _, p := range r.longPositions {
		out = append(out, p)
	}
	for _, p := range r.shortPositions {
		out = append(out, p)
	}
	return out
}

func (r *Runtime) SetStopLossAmount(p *position.Position, subPosID int, amount float64) {
	p.AddStop(&position.StopCondition{Kind: position.StopLoss, ThresholdBasis: position.Points, Threshold: amount}, subPosID)
}

func (r *Runtime) SetStopLossPercent(p *position.Position, subPosID int, pct float64) {
	p.AddStop(&position.StopCondition{Kind: position.StopLoss, ThresholdBasis: position.Percent, Threshold: pct}, subPosID)
}

func (r *Runtime) SetTrailingStop(p *position.Position, subPosID int, returnsThreshold, drawdownAbs float64) {
	p.AddStop(&position.StopCondition{Kind: position.TrailingStop, ThresholdBasis: position.Percent, Threshold: returnsThreshold, DrawdownBasis: position.Points, Drawdown: drawdownAbs}, subPosID)
}

func (r *Runtime) SetPercentTrailing(p *position.Position, subPosID int, returnsThreshold, drawdownRatio float64) {
	p.AddStop(&position.StopCondition{Kind: position.TrailingStop, ThresholdBasis: position.Percent, Threshold: returnsThreshold, DrawdownBasis: position.Percent, Drawdown: drawdownRatio}, subPosID)
}

func (r *Runtime) SetStopProfitPercent(p *position.Position, subPosID int, pct float64) {
	p.AddStop(&position.StopCondition{Kind: position.StopProfitTarget, ThresholdBasis: position.Percent, Threshold: pct}, subPosID)
}

// CloseAllPositions sends market-exit orders for every open position
// (spec.md §4.6 session deactivation hook).
func (r *Runtime) CloseAllPositions() {
	for instrument, p := range r.longPositions {
		if p.TotalShares != 0 {
			r.placeOrder(instrument, order.Market, order.Sell, p.TotalShares, 0, 0, true)
		}
	}
	for instrument, p := range r.shortPositions {
		if p.TotalShares != 0 {
			r.placeOrder(instrument, order.Market, order.BuyToCover, -p.TotalShares, 0, 0, true)
		}
	}
}

func (r *Runtime) Now() time.Time { return r.now }
