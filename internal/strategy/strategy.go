// Package strategy defines the capability-object contract every trading
// strategy implements (spec.md §6.3) and a name-keyed registry strategies
// self-register into, replacing the original's dynamic shared-library
// loading with a static, compiled-in registry (spec.md §9).
package strategy

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/position"
)

// ParamType names the declared type of one user parameter.
type ParamType int

const (
	ParamFloat ParamType = iota
	ParamInt
	ParamString
	ParamBool
)

// Handle is the opaque reference a strategy uses to act on its own
// positions and orders without seeing the owning Runtime directly
// (spec.md §9: "strategies see positions through opaque handles").
type Handle interface {
	// Buy/Sell/SellShort/BuyToCover place the named order kind for qty
	// shares; stop/limit of 0 means "not set" (market).
	Buy(qty int, stop, limit float64, immediately bool)
	Sell(qty int, stop, limit float64, immediately bool)
	SellShort(qty int, stop, limit float64, immediately bool)
	BuyToCover(qty int, stop, limit float64, immediately bool)
	// OpenLong flips any open short first via a matched buy-to-cover,
	// then buys qty (spec.md §4.6).
	OpenLong(qty int)

	// LongPosition/ShortPosition return this runtime's position for the
	// given instrument, or nil if none was ever opened. A position that
	// has closed is still returned, with TotalShares 0.
	LongPosition(instrument string) *position.Position
	ShortPosition(instrument string) *position.Position

	// SetStopLossAmount / SetStopLossPercent / SetTrailingStop /
	// SetPercentTrailing / SetStopProfitPercent register a stop
	// condition on a position (subPosID == 0 targets the whole
	// position; subPosID > 0 targets one lot).
	SetStopLossAmount(p *position.Position, subPosID int, amount float64)
	SetStopLossPercent(p *position.Position, subPosID int, pct float64)
	SetTrailingStop(p *position.Position, subPosID int, returnsThreshold, drawdownAbs float64)
	SetPercentTrailing(p *position.Position, subPosID int, returnsThreshold, drawdownRatio float64)
	SetStopProfitPercent(p *position.Position, subPosID int, pct float64)

	CloseAllPositions()

	// Now returns the datetime of the bar currently being processed.
	Now() time.Time
}

// Strategy is the polymorphic-dispatch capability object of spec.md
// §6.3. Every hook is optional; BaseStrategy supplies no-op defaults so
// a concrete strategy only overrides what it uses.
type Strategy interface {
	OnCreate(h Handle)
	OnSetParameter(name string, typ ParamType, value interface{}, isLast bool)
	OnStart()
	OnBar(h Handle, b bar.Bar)
	OnBars(h Handle, bars map[string]bar.Bar)
	OnPositionOpened(p *position.Position)
	OnPositionChanged(p *position.Position)
	OnPositionClosed(p *position.Position)
	OnOrderFilled(ev broker.FillEvent)
	OnOrderPartiallyFilled(ev broker.FillEvent)
	OnOrderFailed(ev broker.RejectEvent)
	OnTimeElapsed(prev, next time.Time)
	OnHistoricalData(b bar.Bar, isLast bool)
	OnStop()
	OnDestroy()
}

// Parameter declares one user-tunable strategy parameter with an
// optional (start, end, step) optimization range (spec.md §3).
type Parameter struct {
	Name  string
	Type  ParamType
	Value interface{}

	Optimizing bool
	Start      float64
	End        float64
	Step       float64
}

// BaseStrategy gives every hook a no-op body; embed it and override only
// what the concrete strategy needs (spec.md §9: "capability object
// implementing only the hooks it uses").
type BaseStrategy struct{}

func (BaseStrategy) OnCreate(Handle)                                  {}
func (BaseStrategy) OnSetParameter(string, ParamType, interface{}, bool) {}
func (BaseStrategy) OnStart()                                         {}
func (BaseStrategy) OnBar(Handle, bar.Bar)                            {}
func (BaseStrategy) OnBars(Handle, map[string]bar.Bar)                {}
func (BaseStrategy) OnPositionOpened(*position.Position)              {}
func (BaseStrategy) OnPositionChanged(*position.Position)             {}
func (BaseStrategy) OnPositionClosed(*position.Position)              {}
func (BaseStrategy) OnOrderFilled(broker.FillEvent)                   {}
func (BaseStrategy) OnOrderPartiallyFilled(broker.FillEvent)          {}
func (BaseStrategy) OnOrderFailed(broker.RejectEvent)                 {}
func (BaseStrategy) OnTimeElapsed(prev, next time.Time)               {}
func (BaseStrategy) OnHistoricalData(bar.Bar, bool)                   {}
func (BaseStrategy) OnStop()                                          {}
func (BaseStrategy) OnDestroy()                                       {}
