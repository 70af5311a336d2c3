package trace

import (
	"fmt"

	"xbacktest/internal/broker"
	"xbacktest/internal/order"
)

// Recorder chains a Store onto a broker's event callbacks (the same
// chaining pattern runtime.Runtime uses), appending one Entry per
// submitted/filled/canceled/rejected order.
type Recorder struct {
	store *Store
}

// NewRecorder wraps store for attachment to one or more brokers.
func NewRecorder(store *Store) *Recorder { return &Recorder{store: store} }

// Attach wires br's OnSubmitted/OnFilled/OnFailed/OnCanceled callbacks,
// chaining any handlers already registered so multiple observers can
// share one broker.
func (r *Recorder) Attach(br *broker.Broker) {
	prevSubmitted := br.OnSubmitted
	br.OnSubmitted = func(o *order.Order) {
		if prevSubmitted != nil {
			prevSubmitted(o)
		}
		r.append(Entry{
			BarTime:    o.SubmittedAt,
			Instrument: o.Instrument,
			OrderID:    o.ID,
			Event:      EventPlaced,
		})
	}

	prevFilled := br.OnFilled
	br.OnFilled = func(ev broker.FillEvent) {
		if prevFilled != nil {
			prevFilled(ev)
		}
		r.append(Entry{
			BarTime:    ev.DateTime,
			Instrument: ev.Instrument,
			OrderID:    ev.Order.ID,
			Event:      EventFilled,
			Quantity:   ev.Quantity,
			Price:      ev.Price,
		})
	}

	prevFailed := br.OnFailed
	br.OnFailed = func(ev broker.RejectEvent) {
		if prevFailed != nil {
			prevFailed(ev)
		}
		r.append(Entry{
			Instrument: ev.Order.Instrument,
			OrderID:    ev.Order.ID,
			Event:      EventRejected,
			Reason:     ev.Reason,
		})
	}

	prevCanceled := br.OnCanceled
	br.OnCanceled = func(o *order.Order) {
		if prevCanceled != nil {
			prevCanceled(o)
		}
		r.append(Entry{
			Instrument: o.Instrument,
			OrderID:    o.ID,
			Event:      EventCanceled,
			Reason:     o.CancelReason,
		})
	}
}

// append writes e to the underlying store, logging (rather than
// propagating) a write failure so a disk error never interrupts a
// running backtest — the trace is a debugging aid, not a correctness
// dependency.
func (r *Recorder) append(e Entry) {
	if _, err := r.store.Append(e); err != nil {
		fmt.Printf("trace: append failed: %v\n", err)
	}
}
