package runtime

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/feed"
	"xbacktest/internal/strategy"
)

// Process binds one StrategyConfig to its creator and lazily spawns
// Runtimes keyed by main instrument as bars arrive (spec.md §4.7): a
// subscribe-all process spawns one Runtime per instrument seen; a
// fixed-instrument process spawns (at most) one.
type Process struct {
	cfg     strategy.Config
	creator strategy.Creator
	br      *broker.Broker
	contracts map[string]bar.Contract
	periodsByInstrument map[string][]feed.Period

	runtimes map[string]*Runtime
}

// NewProcess builds a Process that will spawn Runtimes for cfg's
// subscribed instruments (or any instrument, if SubscribeAll), placing
// orders through br.
func NewProcess(cfg strategy.Config, creator strategy.Creator, br *broker.Broker, contracts map[string]bar.Contract, periodsByInstrument map[string][]feed.Period) *Process {
	return &Process{
		cfg:                 cfg,
		creator:             creator,
		br:                  br,
		contracts:           contracts,
		periodsByInstrument: periodsByInstrument,
		runtimes:            make(map[string]*Runtime),
	}
}

func (p *Process) subscribed(instrument string) bool {
	if p.cfg.SubscribeAll {
		return true
	}
	for _, i := range p.cfg.Instruments {
		if i == instrument {
			return true
		}
	}
	return false
}

// runtimeFor lazily spawns and parameterizes a Runtime for instrument on
// first sight, running OnCreate/OnSetParameter/OnStart in sequence
// (spec.md §6.3).
func (p *Process) runtimeFor(instrument string) *Runtime {
	rt, ok := p.runtimes[instrument]
	if ok {
		return rt
	}
	s := p.creator()
	rt = New(instrument, s, p.br, p.contracts, p.periodsByInstrument[instrument])
	s.OnCreate(rt)
	for i, param := range p.cfg.Parameters {
		s.OnSetParameter(param.Name, param.Type, param.Value, i == len(p.cfg.Parameters)-1)
	}
	s.OnStart()
	p.runtimes[instrument] = rt
	return rt
}

// OnBar routes one bar event to the owning (lazily spawned) Runtime, if
// this process subscribes to the bar's instrument.
func (p *Process) OnBar(b bar.Bar) {
	if !p.subscribed(b.Instrument) {
		return
	}
	p.runtimeFor(b.Instrument).OnBar(b)
}

// OnTimeElapsed forwards the dispatcher tick boundary to every spawned
// runtime's strategy.
func (p *Process) OnTimeElapsed(prev, next time.Time) {
	for _, rt := range p.runtimes {
		rt.strategy.OnTimeElapsed(prev, next)
	}
}

// Stop tears down every spawned runtime's strategy, calling OnStop then
// OnDestroy on each (spec.md §6.3 teardown hooks). Runtimes are visited
// in map iteration order, so the order across runtimes is not defined.
func (p *Process) Stop() {
	for _, rt := range p.runtimes {
		rt.strategy.OnStop()
		rt.strategy.OnDestroy()
	}
}

// Runtimes returns every spawned runtime, keyed by instrument.
func (p *Process) Runtimes() map[string]*Runtime {
	return p.runtimes
}
