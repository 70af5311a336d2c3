// Package position implements the Position / SubPosition / StopCondition
// state machine of spec.md §4.5: classification of broker fill events
// into lot lifecycle transitions, and the stop-condition machinery that
// synthesizes protective exit orders.
package position

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/order"
)

// Direction is the side a Position represents.
type Direction int

const (
	Long Direction = iota
	Short
)

// SubPosition is one atomic lot of exposure, mirroring the broker's Lot
// by id (spec.md Glossary).
type SubPosition struct {
	ID           int
	Shares       int // signed; positive for Long, negative for Short
	AvgFillPrice float64
	OpenedAt     time.Time

	// ExitOrderID is the id of the single active exit order targeting
	// this lot, or "" if none. At most one is permitted at a time
	// (spec.md §4.5).
	ExitOrderID string

	Stops []*StopCondition
}

// Transaction is an immutable closed-lot history record produced on
// every reducing/exiting fill.
type Transaction struct {
	SubPosID     int
	EntryPrice   float64
	ExitPrice    float64
	Shares       int
	OpenedAt     time.Time
	ClosedAt     time.Time
	RealizedPnL  float64
	Commission   float64
	Slippage     float64
}

// Position aggregates all sub-positions for one (instrument, side) pair
// within one runtime (spec.md §3).
type Position struct {
	Instrument    string
	Direction     Direction
	Contract      bar.Contract
	TotalShares   int
	AvgFillPrice  float64
	RealizedPnL   float64
	Commissions   float64
	Slippages     float64
	EntryAt       time.Time
	ExitAt        time.Time
	FirstBarSince int

	Subs         []*SubPosition
	Transactions []Transaction

	OnOpened  func(*Position)
	OnChanged func(*Position)
	OnClosed  func(*Position)

	// submit is the callback used to place broker orders (wired by the
	// owning Runtime), so stop conditions can synthesize exits without
	// this package depending on runtime.
	submit func(o *order.Order)
}

// New creates an empty Position. submit is called whenever a stop
// condition synthesizes an exit order.
func New(instrument string, dir Direction, c bar.Contract, submit func(o *order.Order)) *Position {
	return &Position{Instrument: instrument, Direction: dir, Contract: c, submit: submit}
}

func (p *Position) sign() int {
	if p.Direction == Long {
		return 1
	}
	return -1
}

// OnFill classifies one broker fill event against this position and
// updates sub-position/transaction state (spec.md §4.5).
func (p *Position) OnFill(ev broker.FillEvent) {
	if ev.OpenedLotID > 0 {
		p.onOpen(ev)
		return
	}
	p.onClose(ev)
}

func (p *Position) onOpen(ev broker.FillEvent) {
	wasEmpty := p.TotalShares == 0
	shares := ev.Quantity * p.sign()
	sub := &SubPosition{ID: ev.OpenedLotID, Shares: shares, AvgFillPrice: ev.Price, OpenedAt: ev.DateTime}
	p.Subs = append(p.Subs, sub)
	p.recomputeAvg()
	p.TotalShares += shares
	p.Commissions += ev.Commission
	p.Slippages += ev.Slippage
	if wasEmpty {
		p.EntryAt = ev.DateTime
		if p.OnOpened != nil {
			p.OnOpened(p)
		}
		return
	}
	if p.OnChanged != nil {
		p.OnChanged(p)
	}
}

func (p *Position) onClose(ev broker.FillEvent) {
	closedShares := 0
	for _, id := range ev.ClosedLotIDs {
		for _, s := range p.Subs {
			if s.ID == id {
				// Partial closes already reflected the remaining shares
				// on the broker side; mirror by zeroing what closed.
				closedShares += abs(s.Shares)
			}
		}
	}
	// Remove fully-closed subs, archive them as transactions.
	var kept []*SubPosition
	for _, s := range p.Subs {
		full := false
		for _, id := range ev.ClosedLotIDs {
			if s.ID == id {
				full = true
			}
		}
		if full {
			p.Transactions = append(p.Transactions, Transaction{
				SubPosID: s.ID, EntryPrice: s.AvgFillPrice, ExitPrice: ev.Price, Shares: abs(s.Shares),
				OpenedAt: s.OpenedAt, ClosedAt: ev.DateTime, RealizedPnL: ev.RealizedPnL, Commission: ev.Commission, Slippage: ev.Slippage,
			})
			for _, st := range s.Stops {
				st.Active = false
			}
			continue
		}
		kept = append(kept, s)
	}
	p.Subs = kept
	p.recomputeAvg()
	p.TotalShares -= closedShares * p.sign()
	p.RealizedPnL += ev.RealizedPnL
	p.Commissions += ev.Commission
	p.Slippages += ev.Slippage

	if p.TotalShares == 0 {
		for _, s := range p.Subs {
			for _, st := range s.Stops {
				st.Active = false
			}
		}
		p.ExitAt = ev.DateTime
		if p.OnClosed != nil {
			p.OnClosed(p)
		}
		return
	}
	if p.OnChanged != nil {
		p.OnChanged(p)
	}
}

func (p *Position) recomputeAvg() {
	if len(p.Subs) == 0 {
		p.AvgFillPrice = 0
		return
	}
	var sumNotional, sumShares float64
	for _, s := range p.Subs {
		sumNotional += float64(abs(s.Shares)) * s.AvgFillPrice
		sumShares += float64(abs(s.Shares))
	}
	if sumShares == 0 {
		p.AvgFillPrice = 0
		return
	}
	p.AvgFillPrice = sumNotional / sumShares
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// submitExit synthesizes a single intra-bar exit order for one
// sub-position, refusing to stack a second active exit order on the
// same lot (spec.md §4.5).
func (p *Position) submitExit(sub *SubPosition, price float64) {
	if sub.ExitOrderID != "" {
		return // already has an active exit order; drop silently
	}
	action := order.Sell
	if p.Direction == Short {
		action = order.BuyToCover
	}
	o := order.New(p.Instrument, order.Stop, action, abs(sub.Shares))
	o.StopPrice = price
	o.ExecTiming = order.IntraBar
	o.SubPosID = sub.ID
	sub.ExitOrderID = o.ID
	if p.submit != nil {
		p.submit(o)
	}
}
