// Package order implements the order value type and state machine of
// spec.md §4.4: four order types, four actions, and the fill-policy
// interface the broker drives against each arriving bar.
package order

import (
	"time"

	"github.com/google/uuid"
)

// Type is the order's pricing discipline.
type Type int

const (
	Market Type = iota
	Limit
	Stop
	StopLimit
)

func (t Type) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// Action is the directional intent of an order.
type Action int

const (
	Buy Action = iota
	Sell
	SellShort
	BuyToCover
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case SellShort:
		return "sell_short"
	case BuyToCover:
		return "buy_to_cover"
	default:
		return "unknown"
	}
}

// Sign returns +1 for actions that increase a long/decrease a short
// exposure in the "opening" direction (Buy, BuyToCover are both
// share-increasing from the broker's lot-count perspective; for P&L sign
// purposes, Buy/BuyToCover are +1 and Sell/SellShort are -1).
func (a Action) Sign() int {
	switch a {
	case Buy, BuyToCover:
		return 1
	default:
		return -1
	}
}

// Opens reports whether this action opens a new lot (Buy, SellShort) as
// opposed to closing an existing one (Sell, BuyToCover).
func (a Action) Opens() bool {
	return a == Buy || a == SellShort
}

// State is a position in the order state machine (spec.md §4.4).
type State int

const (
	Initial State = iota
	Submitted
	Accepted
	PartiallyFilled
	Filled
	Canceled
	Rejected
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Submitted:
		return "submitted"
	case Accepted:
		return "accepted"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether s cannot transition further.
func (s State) Terminal() bool {
	return s == Filled || s == Canceled || s == Rejected
}

// ExecTiming selects whether a synthesized order may match against the
// bar that created it (protective stops) or must wait for the next bar.
type ExecTiming int

const (
	NextBar ExecTiming = iota
	IntraBar
)

// Order is one standing instruction submitted to the broker. All state
// transitions are performed by the broker, never by the caller
// (spec.md §4.4).
type Order struct {
	ID         string
	Instrument string
	Type       Type
	Action     Action
	Quantity   int
	StopPrice  float64 // Stop, StopLimit
	LimitPrice float64 // Limit, StopLimit

	GoodTillCanceled bool
	ExecTiming       ExecTiming
	FillOnClose      bool // Market fill-on-close variant

	State State

	SubmittedAt time.Time
	AcceptedAt  time.Time

	FilledQuantity int
	AvgFillPrice   float64

	// SubPosID links an exit order to the sub-position lot it targets;
	// 0 means "no specific lot", resolved against aggregate position
	// state at fill time.
	SubPosID int

	// RejectReason / CancelReason record the terminal diagnostic,
	// surfaced to the strategy via on_order_failed (spec.md §7).
	RejectReason string
	CancelReason string
}

// New constructs an order in the Initial state with a fresh id.
func New(instrument string, typ Type, action Action, qty int) *Order {
	return &Order{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Type:       typ,
		Action:     action,
		Quantity:   qty,
		State:      Initial,
	}
}

// Triggered matches the StopLimit two-phase transition: once the stop
// price is crossed, the order behaves as a Limit for the rest of its
// life. We model this with a boolean flag rather than mutating Type, so
// the original order shape stays inspectable in traces.
type Triggered struct {
	Stop bool
}
