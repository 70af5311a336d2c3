package position

import "xbacktest/internal/bar"

// Kind selects which stop-condition rule governs a StopCondition.
type Kind int

const (
	StopLoss Kind = iota
	StopProfitTarget
	TrailingStop
)

// Basis selects whether a threshold is expressed in price points or as a
// percent of the entry/profit reference (spec.md §4.5: "profit may be in
// points or percent"; "drawdown may be expressed as percentage of
// available profit or absolute price" — all four combinations supported).
type Basis int

const (
	Points Basis = iota
	Percent
)

// StopCondition is one standing protective instruction attached to a
// position or a specific lot (spec.md §4.5).
type StopCondition struct {
	Kind Kind
	Active bool

	// SubPosID ties this condition to one lot; 0 means "whole position",
	// resolved against the position's aggregate average fill price. Per
	// Open Question #3, a SubPosID > 0 is authoritative over its own
	// lot's AvgFillPrice rather than the position aggregate.
	SubPosID int

	ThresholdBasis Basis
	Threshold      float64 // loss amount/percent, or profit target

	DrawdownBasis Basis
	Drawdown      float64 // trailing-stop drawdown ratio or absolute price

	// Triggered/armed tracking (TrailingStop only): the watermark since
	// entry, and whether returns have ever crossed Threshold.
	HighestPrice float64
	LowestPrice  float64
	Armed        bool
	Triggered    bool
}

// resetStopProfit reinitializes the trailing watermarks to the entry
// price and clears the triggered/armed flags, mirroring the source's
// resetStopProfit() (grounded in original_source's PositionImpl.h).
func (sc *StopCondition) resetStopProfit(entryPrice float64) {
	sc.HighestPrice = entryPrice
	sc.LowestPrice = entryPrice
	sc.Armed = false
	sc.Triggered = false
}

// entryPriceFor resolves which average fill price a condition should
// measure against: its own lot's if SubPosID > 0, else the position
// aggregate.
func (p *Position) entryPriceFor(sc *StopCondition) float64 {
	if sc.SubPosID > 0 {
		for _, s := range p.Subs {
			if s.ID == sc.SubPosID {
				return s.AvgFillPrice
			}
		}
	}
	return p.AvgFillPrice
}

// targetSubFor resolves which sub-position a condition's synthesized
// exit order should target.
func (p *Position) targetSubFor(sc *StopCondition) *SubPosition {
	if sc.SubPosID > 0 {
		for _, s := range p.Subs {
			if s.ID == sc.SubPosID {
				return s
			}
		}
		return nil
	}
	if len(p.Subs) == 0 {
		return nil
	}
	return p.Subs[0]
}

// AddStop registers a new stop condition, attaching it to a specific lot
// (subPosID > 0) or the whole position (subPosID == 0).
func (p *Position) AddStop(sc *StopCondition, subPosID int) {
	sc.Active = true
	sc.SubPosID = subPosID
	entry := p.entryPriceFor(sc)
	sc.resetStopProfit(entry)
	if subPosID > 0 {
		for _, s := range p.Subs {
			if s.ID == subPosID {
				s.Stops = append(s.Stops, sc)
				return
			}
		}
		return
	}
	for _, s := range p.Subs {
		s.Stops = append(s.Stops, sc)
	}
}

// OnBar evaluates every active stop condition against b, synthesizing
// exit orders as needed (spec.md §4.5). Must run before the strategy's
// on_bar callback within the Runtime's per-bar sequence.
func (p *Position) OnBar(b bar.Bar) {
	if p.TotalShares == 0 {
		return
	}
	seen := make(map[*StopCondition]bool)
	for _, s := range p.Subs {
		for _, sc := range s.Stops {
			if !sc.Active || seen[sc] {
				continue
			}
			seen[sc] = true
			p.evalStop(sc, b)
		}
	}
}

func (p *Position) evalStop(sc *StopCondition, b bar.Bar) {
	entry := p.entryPriceFor(sc)
	long := p.Direction == Long

	switch sc.Kind {
	case StopLoss:
		p.evalStopLoss(sc, b, entry, long)
	case StopProfitTarget:
		p.evalStopProfit(sc, b, entry, long)
	case TrailingStop:
		p.evalTrailingStop(sc, b, entry, long)
	}
}

func (p *Position) evalStopLoss(sc *StopCondition, b bar.Bar, entry float64, long bool) {
	var trigger float64
	if sc.ThresholdBasis == Percent {
		if long {
			trigger = entry * (1 - sc.Threshold)
		} else {
			trigger = entry * (1 + sc.Threshold)
		}
	} else {
		if long {
			trigger = entry - sc.Threshold
		} else {
			trigger = entry + sc.Threshold
		}
	}
	if long && b.Low <= trigger {
		price := p.Contract.RoundToTick(trigger, false)
		if price < b.Low {
			price = p.Contract.RoundToTick(trigger, true)
		}
		p.fireExit(sc, price)
	} else if !long && b.High >= trigger {
		price := p.Contract.RoundToTick(trigger, true)
		if price > b.High {
			price = p.Contract.RoundToTick(trigger, false)
		}
		p.fireExit(sc, price)
	}
}

func (p *Position) evalStopProfit(sc *StopCondition, b bar.Bar, entry float64, long bool) {
	var target float64
	if sc.ThresholdBasis == Percent {
		if long {
			target = entry * (1 + sc.Threshold)
		} else {
			target = entry * (1 - sc.Threshold)
		}
	} else {
		if long {
			target = entry + sc.Threshold
		} else {
			target = entry - sc.Threshold
		}
	}
	if long && b.High >= target {
		p.fireExit(sc, p.Contract.RoundToTick(target, false))
	} else if !long && b.Low <= target {
		p.fireExit(sc, p.Contract.RoundToTick(target, true))
	}
}

// evalTrailingStop implements the arm-then-trail rule of spec.md §4.5:
// maintain a running extreme since entry; once returns first exceed the
// threshold, arm the trail; thereafter an exit fires once the pullback
// from the extreme exceeds (1 - drawdown ratio) of the available
// profit (or an absolute price drawdown).
func (p *Position) evalTrailingStop(sc *StopCondition, b bar.Bar, entry float64, long bool) {
	if long {
		if b.High > sc.HighestPrice {
			sc.HighestPrice = b.High
		}
	} else if b.Low < sc.LowestPrice {
		sc.LowestPrice = b.Low
	}

	returns := p.returnsOf(entry, sc.HighestPrice, sc.LowestPrice, long)
	if sc.ThresholdBasis == Points {
		returns = sc.HighestPrice - entry
		if !long {
			returns = entry - sc.LowestPrice
		}
	}
	if !sc.Armed {
		if returns >= sc.Threshold {
			sc.Armed = true
		}
		return
	}

	extreme := sc.HighestPrice
	if !long {
		extreme = sc.LowestPrice
	}
	available := extreme - entry
	if !long {
		available = entry - extreme
	}

	var trail float64
	if sc.DrawdownBasis == Percent {
		keep := available * sc.Drawdown
		if long {
			trail = extreme - (available - keep)
		} else {
			trail = extreme + (available - keep)
		}
	} else {
		if long {
			trail = extreme - sc.Drawdown
		} else {
			trail = extreme + sc.Drawdown
		}
	}

	if long && b.Low <= trail {
		price := p.Contract.RoundToTick(trail, false)
		if price < b.Low {
			price = b.Low
		}
		p.fireExit(sc, price)
	} else if !long && b.High >= trail {
		price := p.Contract.RoundToTick(trail, true)
		if price > b.High {
			price = b.High
		}
		p.fireExit(sc, price)
	}
}

func (p *Position) returnsOf(entry, highest, lowest float64, long bool) float64 {
	if entry == 0 {
		return 0
	}
	if long {
		return (highest - entry) / entry
	}
	return (entry - lowest) / entry
}

func (p *Position) fireExit(sc *StopCondition, price float64) {
	if sc.Triggered {
		return // idempotent: a trailing stop fires its exit order once
	}
	sub := p.targetSubFor(sc)
	if sub == nil {
		return
	}
	sc.Triggered = true
	p.submitExit(sub, price)
}
