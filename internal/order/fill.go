package order

import "xbacktest/internal/bar"

// FillResult is the outcome of testing one order against one bar.
type FillResult struct {
	Filled   bool
	Price    float64
	Quantity int
}

// FillStrategy inspects the current bar and an order and decides whether
// (and at what price) it fills (spec.md §4.4). The bar-resolution variant
// is the only one implemented here; a tick-resolution variant would
// instead inspect Quote fields on each incoming tick.
type FillStrategy interface {
	TryFill(o *Order, b bar.Bar, stopTriggered bool) FillResult
}

// BarFillStrategy implements the default bar-resolution fill rules of
// spec.md §4.4.
type BarFillStrategy struct{}

// TryFill evaluates o against b. stopTriggered carries whether a
// StopLimit's stop phase already triggered in a prior call.
func (BarFillStrategy) TryFill(o *Order, b bar.Bar, stopTriggered bool) FillResult {
	switch o.Type {
	case Market:
		return fillMarket(o, b)
	case Limit:
		return fillLimit(o, b, o.LimitPrice)
	case Stop:
		return fillStop(o, b)
	case StopLimit:
		return fillStopLimit(o, b, stopTriggered)
	default:
		return FillResult{}
	}
}

func fillMarket(o *Order, b bar.Bar) FillResult {
	price := b.Open
	if o.FillOnClose {
		price = b.Close
	}
	price = clamp(price, b.Low, b.High)
	return FillResult{Filled: true, Price: price, Quantity: o.Quantity}
}

// fillLimit implements the buy/sell limit rule of spec.md §4.4: a buy
// limit fills if bar.low <= limit at min(open, limit) if open already
// crossed, else at limit; a sell limit is symmetric around bar.high.
func fillLimit(o *Order, b bar.Bar, limit float64) FillResult {
	buying := o.Action == Buy || o.Action == BuyToCover
	if buying {
		if b.Low > limit {
			return FillResult{}
		}
		price := limit
		if b.Open <= limit {
			price = minF(b.Open, limit)
		}
		return FillResult{Filled: true, Price: price, Quantity: o.Quantity}
	}
	if b.High < limit {
		return FillResult{}
	}
	price := limit
	if b.Open >= limit {
		price = maxF(b.Open, limit)
	}
	return FillResult{Filled: true, Price: price, Quantity: o.Quantity}
}

// fillStop implements the stop-trigger rule: buy stop triggers when
// bar.high >= stop, sell stop when bar.low <= stop; the converted market
// order fills at stop, or at open if open already crossed it.
func fillStop(o *Order, b bar.Bar) FillResult {
	buying := o.Action == Buy || o.Action == BuyToCover
	if buying {
		if b.High < o.StopPrice {
			return FillResult{}
		}
		price := o.StopPrice
		if b.Open >= o.StopPrice {
			price = b.Open
		}
		return FillResult{Filled: true, Price: clamp(price, b.Low, b.High), Quantity: o.Quantity}
	}
	if b.Low > o.StopPrice {
		return FillResult{}
	}
	price := o.StopPrice
	if b.Open <= o.StopPrice {
		price = b.Open
	}
	return FillResult{Filled: true, Price: clamp(price, b.Low, b.High), Quantity: o.Quantity}
}

func fillStopLimit(o *Order, b bar.Bar, stopTriggered bool) FillResult {
	if !stopTriggered {
		trig := fillStop(o, b)
		if !trig.Filled {
			return FillResult{}
		}
		// Stop has triggered this bar; re-evaluate as a limit against
		// the same bar immediately (matches the original single-pass
		// per-bar evaluation).
	}
	return fillLimit(o, b, o.LimitPrice)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
