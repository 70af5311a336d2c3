// Package broker implements the backtesting broker of spec.md §4.4: order
// acceptance/expiration, the fill-policy dispatch, cash/margin/equity
// accounting, and trading-day boundary detection.
package broker

import (
	"fmt"
	"sort"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/order"
)

// Config configures one Broker instance (spec.md §3 BrokerConfig).
type Config struct {
	InitialCash          float64
	AllowNegativeCash     bool
	TradingDayEndSeconds  int // boundary in seconds since midnight, not an HHMMSS number; 0 means 15:15:00
	FillStrategy          order.FillStrategy
}

func (c Config) tradingDayEnd() int {
	if c.TradingDayEndSeconds == 0 {
		return 15*3600 + 15*60
	}
	return c.TradingDayEndSeconds
}

// Lot is one atomic unit of exposure: signed shares (positive = long,
// negative = short) booked at one entry price (spec.md Glossary).
type Lot struct {
	ID         int
	Shares     int // signed
	EntryPrice float64
	OpenedAt   time.Time
}

// BrokerPos is the broker's per-instrument mirror of open exposure
// across all runtimes (spec.md §3).
type BrokerPos struct {
	Instrument      string
	Lots            []Lot
	LastPrice       float64
	nextLotID       int
	CumCommission   float64
	CumSlippage     float64
	CumRealizedPnL  float64
}

func (p *BrokerPos) totalShares() int {
	n := 0
	for _, l := range p.Lots {
		n += l.Shares
	}
	return n
}

// FillEvent reports one completed (possibly partial) fill to subscribers
// (the owning Position, and analyzers via the executor).
type FillEvent struct {
	Order         *order.Order
	Instrument    string
	Price         float64
	Quantity      int
	DateTime      time.Time
	Commission    float64
	Slippage      float64
	OpenedLotID   int // > 0 when this fill opened a new lot
	ClosedLotIDs  []int
	RealizedPnL   float64
}

// RejectEvent reports a synchronous order rejection.
type RejectEvent struct {
	Order  *order.Order
	Reason string
}

// Broker is the single backtesting broker instance for one executor. Not
// safe for concurrent use; owned by exactly one Executor (spec.md §5).
type Broker struct {
	cfg       Config
	cash      float64
	contracts map[string]bar.Contract
	positions map[string]*BrokerPos
	active    map[string]*order.Order // keyed by order id
	stopDone  map[string]bool         // StopLimit: stop phase already triggered

	lastBarDate    map[string]time.Time
	dayBoundaryOpen map[string]bool // true once we've crossed end-time today

	tradesToday int

	OnSubmitted       func(*order.Order)
	OnFilled          func(FillEvent)
	OnPartiallyFilled func(FillEvent)
	OnFailed          func(RejectEvent)
	OnCanceled        func(*order.Order)
	OnNewTradingDay   func(prev, curr time.Time)
}

// New builds a Broker seeded with cfg.InitialCash and the given contract
// table, keyed by instrument.
func New(cfg Config, contracts map[string]bar.Contract) *Broker {
	if cfg.FillStrategy == nil {
		cfg.FillStrategy = order.BarFillStrategy{}
	}
	return &Broker{
		cfg:             cfg,
		cash:            cfg.InitialCash,
		contracts:       contracts,
		positions:       make(map[string]*BrokerPos),
		active:          make(map[string]*order.Order),
		stopDone:        make(map[string]bool),
		lastBarDate:     make(map[string]time.Time),
		dayBoundaryOpen: make(map[string]bool),
	}
}

// Cash returns current available cash.
func (b *Broker) Cash() float64 { return b.cash }

// Submit registers a new order in the Submitted state, stamped with the
// simulated time `now` rather than the wall clock so that order
// expiration (spec.md §4.4) stays a pure function of the replayed bar
// sequence.
func (b *Broker) Submit(o *order.Order, now time.Time) {
	o.State = order.Submitted
	o.SubmittedAt = now
	b.active[o.ID] = o
	if b.OnSubmitted != nil {
		b.OnSubmitted(o)
	}
}

func (b *Broker) posFor(instrument string) *BrokerPos {
	p, ok := b.positions[instrument]
	if !ok {
		p = &BrokerPos{Instrument: instrument}
		b.positions[instrument] = p
	}
	return p
}

// Position returns the broker's mirror position for instrument, or nil.
func (b *Broker) Position(instrument string) *BrokerPos {
	return b.positions[instrument]
}

// Equity returns cash plus the margin held by every open lot (its
// notional times the contract's margin ratio) plus its unrealized P&L,
// using each instrument's cached last price.
func (b *Broker) Equity() float64 {
	eq := b.cash
	for instrument, p := range b.positions {
		c := b.contracts[instrument]
		for _, l := range p.Lots {
			notional := float64(abs(l.Shares)) * l.EntryPrice * c.Multiplier
			unrealized := float64(l.Shares) * (p.LastPrice - l.EntryPrice) * c.Multiplier
			eq += notional*c.MarginRatio + unrealized
		}
	}
	return eq
}

// Margin returns the sum of margin currently reserved across all open
// lots.
func (b *Broker) Margin() float64 {
	m := 0.0
	for instrument, p := range b.positions {
		c := b.contracts[instrument]
		for _, l := range p.Lots {
			m += float64(abs(l.Shares)) * l.EntryPrice * c.Multiplier * c.MarginRatio
		}
	}
	return m
}

// ProcessBar runs the broker's per-bar pass for instrument b.Instrument:
// trading-day boundary detection, order expiration, acceptance, and a
// fill attempt against every active order for this instrument
// (spec.md §4.4). Call ProcessIntraBar afterward to match orders
// synthesized during the strategy callback against the same bar.
func (b *Broker) ProcessBar(bd bar.Bar) {
	c := b.contracts[bd.Instrument]
	p := b.posFor(bd.Instrument)
	p.LastPrice = bd.Close

	b.detectTradingDayBoundary(bd)
	b.lastBarDate[bd.Instrument] = bd.DateTime

	degenerate := bd.Resolution == bar.Day && bd.Degenerate()

	ids := b.activeOrderIDsFor(bd.Instrument)
	for _, id := range ids {
		o := b.active[id]
		if o == nil {
			continue
		}
		if b.expire(o, bd) {
			continue
		}
		if o.State == order.Submitted {
			o.State = order.Accepted
			o.AcceptedAt = bd.DateTime
			// Fall through to the fill attempt below: spec.md §4.4's
			// order state machine drives both Submitted->Accepted and
			// Accepted->Filled off the same arriving bar, so a NextBar
			// order is first tried against the very bar that accepts it.
		}
		if o.State != order.Accepted && o.State != order.PartiallyFilled {
			continue
		}
		if degenerate {
			b.reject(o, "degenerate bar: high == low on DAY resolution")
			continue
		}
		b.tryFill(o, bd, c)
	}
}

// ProcessIntraBar re-evaluates any order whose ExecTiming is IntraBar and
// which is still pending against the same bar, so protective-stop exits
// placed from a strategy's on_bar callback can fill within that bar
// (spec.md §4.4, §4.5).
func (b *Broker) ProcessIntraBar(bd bar.Bar) {
	c := b.contracts[bd.Instrument]
	ids := b.activeOrderIDsFor(bd.Instrument)
	for _, id := range ids {
		o := b.active[id]
		if o == nil || o.ExecTiming != order.IntraBar {
			continue
		}
		if o.State == order.Submitted {
			o.State = order.Accepted
			o.AcceptedAt = bd.DateTime
		}
		if o.State == order.Accepted || o.State == order.PartiallyFilled {
			b.tryFill(o, bd, c)
		}
	}
}

func (b *Broker) activeOrderIDsFor(instrument string) []string {
	var ids []string
	for id, o := range b.active {
		if o.Instrument == instrument {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids) // deterministic iteration order
	return ids
}

func (b *Broker) expire(o *order.Order, bd bar.Bar) bool {
	if o.GoodTillCanceled {
		return false
	}
	ref := o.AcceptedAt
	if o.State == order.Submitted {
		ref = o.SubmittedAt
	}
	if ref.IsZero() {
		return false
	}
	if bd.DateTime.After(ref) && !sameDate(bd.DateTime, ref) {
		o.State = order.Canceled
		o.CancelReason = "Expired"
		delete(b.active, o.ID)
		if b.OnCanceled != nil {
			b.OnCanceled(o)
		}
		return true
	}
	return false
}

func sameDate(a, c time.Time) bool {
	ay, am, ad := a.Date()
	cy, cm, cd := c.Date()
	return ay == cy && am == cm && ad == cd
}

func (b *Broker) detectTradingDayBoundary(bd bar.Bar) {
	prev, ok := b.lastBarDate[bd.Instrument]
	if !ok {
		return
	}
	endSec := b.cfg.tradingDayEnd()
	prevSec := prev.Hour()*3600 + prev.Minute()*60 + prev.Second()
	curSec := bd.DateTime.Hour()*3600 + bd.DateTime.Minute()*60 + bd.DateTime.Second()

	crossedDate := !sameDate(bd.DateTime, prev) && prevSec < endSec && curSec >= 0
	crossedTime := sameDate(bd.DateTime, prev) && prevSec < endSec && curSec >= endSec
	straddlesAcrossDate := !sameDate(bd.DateTime, prev) && prevSec < endSec

	if crossedDate || crossedTime || straddlesAcrossDate {
		if b.OnNewTradingDay != nil {
			b.OnNewTradingDay(prev, bd.DateTime)
		}
	}
}

func (b *Broker) tryFill(o *order.Order, bd bar.Bar, c bar.Contract) {
	triggered := b.stopDone[o.ID]
	res := b.cfg.FillStrategy.TryFill(o, bd, triggered)
	if !res.Filled {
		return
	}
	if o.Type == order.StopLimit && !triggered {
		b.stopDone[o.ID] = true
	}
	price := c.RoundToTick(res.Price, o.Action.Opens())
	b.execute(o, price, res.Quantity, bd.DateTime, c)
}

// execute settles one fill: commission/slippage, cash movement, lot
// bookkeeping, and terminal-state transition (spec.md §4.4).
func (b *Broker) execute(o *order.Order, price float64, qty int, dt time.Time, c bar.Contract) {
	commission := c.Commission(price, qty, c.Multiplier)
	slippage := c.Slippage(price, qty, c.Multiplier)
	p := b.posFor(o.Instrument)

	ev := FillEvent{Order: o, Instrument: o.Instrument, Price: price, Quantity: qty, DateTime: dt, Commission: commission, Slippage: slippage}

	if o.Action.Opens() {
		notional := price * float64(qty) * c.Multiplier
		marginReq := notional * c.MarginRatio
		available := b.cash - commission - slippage - marginReq
		if available < 0 && !b.cfg.AllowNegativeCash {
			b.reject(o, "insufficient cash")
			return
		}
		b.cash -= marginReq + commission + slippage
		shares := qty
		if o.Action == order.SellShort {
			shares = -qty
		}
		p.nextLotID++
		lot := Lot{ID: p.nextLotID, Shares: shares, EntryPrice: price, OpenedAt: dt}
		p.Lots = append(p.Lots, lot)
		ev.OpenedLotID = lot.ID
	} else {
		needLong := o.Action == order.Sell
		available := 0
		for _, l := range p.Lots {
			if (needLong && l.Shares > 0) || (!needLong && l.Shares < 0) {
				available += abs(l.Shares)
			}
		}
		if available < qty {
			// Fatal per spec.md §7 OrderRejected_InsufficientShares — a
			// strategy bug, not a recoverable condition.
			panic(fmt.Sprintf("broker: %s for %s requests %d shares but only %d available", o.Action, o.Instrument, qty, available))
		}
		realized, released, closedIDs := b.closeLots(p, o.SubPosID, needLong, qty, price, c)
		b.cash += released + realized - commission - slippage
		p.CumRealizedPnL += realized
		ev.RealizedPnL = realized
		ev.ClosedLotIDs = closedIDs
	}
	p.CumCommission += commission
	p.CumSlippage += slippage
	b.tradesToday++

	o.FilledQuantity += qty
	o.AvgFillPrice = price
	o.State = order.Filled
	delete(b.active, o.ID)
	delete(b.stopDone, o.ID)

	if b.OnFilled != nil {
		b.OnFilled(ev)
	}
}

// closeLots reduces open lots by qty, preferring a specific sub-position
// id if the order names one (Open Question #3: a SubPosID > 0 is
// authoritative over its own lot), otherwise closing lots LIFO by
// submission order (Open Question #1: the original's reverse-iteration
// close is ambiguous between FIFO/LIFO; this engine picks LIFO and
// documents it as the stable, spec-compliant choice).
func (b *Broker) closeLots(p *BrokerPos, subPosID int, needLong bool, qty int, exitPrice float64, c bar.Contract) (realized float64, released float64, closedIDs []int) {
	matches := func(l Lot) bool {
		if (needLong && l.Shares <= 0) || (!needLong && l.Shares >= 0) {
			return false
		}
		if subPosID > 0 {
			return l.ID == subPosID
		}
		return true
	}

	remaining := qty
	var kept []Lot
	// Walk from the end (most-recently-opened) so matching lots close
	// LIFO by submission order.
	idxs := make([]int, 0, len(p.Lots))
	for i := range p.Lots {
		idxs = append(idxs, i)
	}
	closeSet := make(map[int]bool)
	for i := len(idxs) - 1; i >= 0 && remaining > 0; i-- {
		idx := idxs[i]
		l := p.Lots[idx]
		if !matches(l) {
			continue
		}
		lotQty := abs(l.Shares)
		take := lotQty
		if take > remaining {
			take = remaining
		}
		sign := 1
		if l.Shares < 0 {
			sign = -1
		}
		pnl := (exitPrice - l.EntryPrice) * float64(take) * c.Multiplier * float64(sign)
		realized += pnl
		released += float64(take) * l.EntryPrice * c.Multiplier * c.MarginRatio
		remaining -= take
		if take == lotQty {
			closeSet[idx] = true
			closedIDs = append(closedIDs, l.ID)
		} else {
			p.Lots[idx].Shares = l.Shares - sign*take
			closedIDs = append(closedIDs, l.ID)
		}
	}
	for i, l := range p.Lots {
		if !closeSet[i] {
			kept = append(kept, l)
		}
	}
	p.Lots = kept
	return realized, released, closedIDs
}

func (b *Broker) reject(o *order.Order, reason string) {
	o.State = order.Rejected
	o.RejectReason = reason
	delete(b.active, o.ID)
	delete(b.stopDone, o.ID)
	if b.OnFailed != nil {
		b.OnFailed(RejectEvent{Order: o, Reason: reason})
	}
}

// TradesToday returns the broker's cumulative fill count for the current
// trading day. Per Open Question #2, this cumulative broker-side counter
// is the single authority for daily trade counts (no parallel
// position-tracker delta is maintained).
func (b *Broker) TradesToday() int { return b.tradesToday }

// ResetTradesToday is called by the executor's new-trading-day handler.
func (b *Broker) ResetTradesToday() { b.tradesToday = 0 }

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
