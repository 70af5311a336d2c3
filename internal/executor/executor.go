// Package executor wires one independent backtest replay (spec.md §4.7):
// a Dispatcher over cloned bar feeds, a Broker, the strategy Processes
// built from a scenario's strategy list, and the fixed analyzer set.
// Grounded on the teacher's internal/modules/backtest/engine.go
// Config/Result/Engine shape (deterministic seed + RunID + timing
// metadata), generalized from a single Backtester.Run call into the full
// dispatcher-driven event loop.
package executor

import (
	"context"
	"fmt"
	"time"

	"xbacktest/internal/analyzer"
	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/dispatcher"
	"xbacktest/internal/feed"
	"xbacktest/internal/log"
	"xbacktest/internal/position"
	"xbacktest/internal/runtime"
	"xbacktest/internal/strategy"
	"xbacktest/internal/trace"
	"xbacktest/internal/xtesting"
)

// Config configures one Executor run.
type Config struct {
	Broker     broker.Config
	Contracts  map[string]bar.Contract
	Feeds      []feed.BarFeed
	Strategies []strategy.Config
	Registry   *strategy.Registry

	RiskFreeRate     float64
	BarsPerYear      float64 // annualization factor for Sharpe; defaults to 252

	// RunID is a human-readable identifier for this execution, echoed in
	// Result for optimizer bookkeeping and report file naming.
	RunID string

	// TraceDir, when non-empty, makes New open a trace.Store in this
	// directory and record every order lifecycle event the broker emits
	// (placed, filled, canceled, rejected) for post-hoc replay.
	TraceDir string

	// Clock supplies "now" for Result.RunAt/DurationMs wall-clock
	// bookkeeping, so tests can assert against a fixed or manually
	// advanced instant instead of the real system clock. Defaults to
	// xtesting.SystemClock. Simulated bar time never reads this: it
	// comes entirely from the replayed bar data (spec.md §5).
	Clock xtesting.Clock
}

// Result is the summary metric set and raw records produced by one
// completed Executor.Run.
type Result struct {
	RunID      string
	RunAt      time.Time
	DurationMs int64

	FinalEquity      float64
	FinalCash        float64
	CumulativeReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
	TradeCount       int
	WinRate          float64
	ProfitFactor     float64

	DailyMetrics []analyzer.DailyMetrics
}

// Executor owns one independent backtest replay, single-threaded and
// cooperative end to end (spec.md §5): the dispatcher pulls bars
// sequentially and every subscriber observes events synchronously.
type Executor struct {
	cfg Config

	disp      *dispatcher.Dispatcher
	br        *broker.Broker
	processes []*runtime.Process

	returns      *analyzer.ReturnsAnalyzer
	sharpe       *analyzer.SharpeAnalyzer
	drawdown     *analyzer.DrawdownAnalyzer
	trades       *analyzer.TradesAnalyzer
	dailyMetrics *analyzer.DailyMetricsAnalyzer

	volumeToday map[string]int64

	trace *trace.Store
}

// New builds an Executor wired entirely from cfg, ready to Run.
func New(cfg Config) (*Executor, error) {
	if cfg.BarsPerYear == 0 {
		cfg.BarsPerYear = 252
	}
	if cfg.Clock == nil {
		cfg.Clock = xtesting.SystemClock{}
	}
	br := broker.New(cfg.Broker, cfg.Contracts)

	periodsByInstrument := make(map[string][]feed.Period)
	for _, f := range cfg.Feeds {
		periodsByInstrument[f.Instrument()] = f.TradablePeriods()
	}

	e := &Executor{
		cfg:          cfg,
		disp:         dispatcher.New(),
		br:           br,
		returns:      analyzer.NewReturns(cfg.Broker.InitialCash),
		sharpe:       analyzer.NewSharpe(cfg.RiskFreeRate, cfg.BarsPerYear),
		drawdown:     analyzer.NewDrawdown(),
		trades:       analyzer.NewTrades(),
		dailyMetrics: analyzer.NewDailyMetrics(),
		volumeToday:  make(map[string]int64),
	}

	for _, sc := range cfg.Strategies {
		if _, err := cfg.Registry.Create(sc.Name); err != nil {
			return nil, fmt.Errorf("executor: %w", err)
		}
		cfgCopy := sc
		proc := runtime.NewProcess(cfgCopy, func() strategy.Strategy {
			s, _ := cfg.Registry.Create(cfgCopy.Name)
			return s
		}, br, cfg.Contracts, periodsByInstrument)
		e.processes = append(e.processes, proc)
	}

	br.OnFilled = e.chainFill(br.OnFilled)
	br.OnFailed = e.chainReject(br.OnFailed)
	br.OnNewTradingDay = e.onNewTradingDay

	// Wiring the trace.Recorder after the fill/reject chaining above
	// means its own callback chain runs second and observes the same
	// broker.FillEvent/RejectEvent the analyzers just processed.
	if cfg.TraceDir != "" {
		ts, err := trace.Open(cfg.TraceDir)
		if err != nil {
			return nil, fmt.Errorf("executor: %w", err)
		}
		e.trace = ts
		trace.NewRecorder(ts).Attach(br)
	}

	for _, f := range cfg.Feeds {
		bf := f
		e.disp.Register(bf, func(cf feed.BarFeed, b bar.Bar) {
			e.onBar(b)
		})
	}
	e.disp.OnTimeElapsed = func(prev, next time.Time) {
		for _, p := range e.processes {
			p.OnTimeElapsed(prev, next)
		}
	}

	return e, nil
}

func (e *Executor) chainFill(prev func(broker.FillEvent)) func(broker.FillEvent) {
	return func(ev broker.FillEvent) {
		if prev != nil {
			prev(ev)
		}
		e.trades.OnFill(ev)
		e.volumeToday[ev.Instrument] += int64(ev.Quantity)
	}
}

// chainReject wraps any existing broker.OnFailed so a rejection is both
// logged at warn level (spec.md §7: "non-fatal order errors are logged
// at warn level and also delivered to the strategy via its callback")
// and still reaches every runtime's own handler.
func (e *Executor) chainReject(prev func(broker.RejectEvent)) func(broker.RejectEvent) {
	return func(ev broker.RejectEvent) {
		if prev != nil {
			prev(ev)
		}
		ctx := log.WithRunInfo(context.Background(), log.RunInfo{RunID: e.cfg.RunID})
		log.Warn(ctx, "order_rejected", map[string]any{
			"instrument": ev.Order.Instrument,
			"order_id":   ev.Order.ID,
			"reason":     ev.Reason,
		})
	}
}

func (e *Executor) onBar(b bar.Bar) {
	e.br.ProcessBar(b)
	for _, p := range e.processes {
		p.OnBar(b)
	}
	eq := e.br.Equity()
	e.returns.OnBar(eq)
	e.drawdown.OnBar(eq, b.DateTime)
}

func (e *Executor) onNewTradingDay(prev, curr time.Time) {
	eq := e.br.Equity()
	cash := e.br.Cash()
	margin := e.br.Margin()
	tradesToday := e.br.TradesToday()
	var volToday int64
	for _, v := range e.volumeToday {
		volToday += v
	}
	realizedToday := e.trades.GrossProfit - e.trades.GrossLoss
	for _, r := range e.dailyMetrics.Rows {
		realizedToday -= r.RealizedProfit
	}
	e.dailyMetrics.OnNewTradingDay(prev, eq, cash, margin, eq-cash, realizedToday, tradesToday, volToday)
	e.br.ResetTradesToday()
	e.volumeToday = make(map[string]int64)
}

// Positions returns every Position opened across every spawned Runtime,
// for report writers needing the full transaction history (spec.md §6.4
// Positions.csv). Valid after Run has completed.
func (e *Executor) Positions() []*position.Position {
	var out []*position.Position
	for _, p := range e.processes {
		for _, rt := range p.Runtimes() {
			out = append(out, rt.Positions()...)
		}
	}
	return out
}

// PerBarReturns returns the per-bar return series accumulated over the
// run, for report writers building Returns.csv/walk-forward CAGR
// figures. Valid after Run has completed.
func (e *Executor) PerBarReturns() []float64 {
	return e.returns.PerBarReturns
}

// Trace returns the order lifecycle trace store opened for this run, or
// nil when Config.TraceDir was empty.
func (e *Executor) Trace() *trace.Store {
	return e.trace
}

// Run drives the dispatcher to exhaustion and returns the collected
// summary metrics (spec.md §4.7).
func (e *Executor) Run() Result {
	ctx := log.WithRunInfo(context.Background(), log.RunInfo{RunID: e.cfg.RunID})
	log.Event(ctx, "info", "run_start", map[string]any{"strategies": len(e.processes), "feeds": len(e.cfg.Feeds)})

	runAt := e.cfg.Clock.Now()
	e.disp.Run()
	for _, p := range e.processes {
		p.Stop()
	}
	res := Result{
		RunID:            e.cfg.RunID,
		RunAt:            runAt,
		DurationMs:       e.cfg.Clock.Now().Sub(runAt).Milliseconds(),
		FinalEquity:      e.br.Equity(),
		FinalCash:        e.br.Cash(),
		CumulativeReturn: e.returns.CumulativeReturn,
		SharpeRatio:      e.sharpe.Ratio(e.returns.PerBarReturns),
		MaxDrawdown:      e.drawdown.MaxDrawdown,
		TradeCount:       e.trades.Count,
		WinRate:          e.trades.WinRate(),
		ProfitFactor:     e.trades.ProfitFactor(),
		DailyMetrics:     e.dailyMetrics.Rows,
	}

	log.Event(ctx, "info", "run_end", map[string]any{
		"duration_ms":   res.DurationMs,
		"final_equity":  res.FinalEquity,
		"trade_count":   res.TradeCount,
	})
	return res
}
