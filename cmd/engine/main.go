// cmd/engine is the CLI entry point of spec.md §6.4: `engine
// <scenario.xml>` loads a scenario, runs a single backtest or an
// optimization sweep depending on whether the scenario declares any
// <optimizing> parameter, and writes the reports its <report> element
// names. Flag style follows the teacher's tools/cmd/ingest/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/executor"
	"xbacktest/internal/feed"
	"xbacktest/internal/log"
	"xbacktest/internal/optcache"
	"xbacktest/internal/optimizer"
	"xbacktest/internal/optstore"
	"xbacktest/internal/order"
	"xbacktest/internal/report"
	"xbacktest/internal/scenario"
	"xbacktest/internal/strategy"
	"xbacktest/internal/walkforward"

	_ "xbacktest/strategies" // self-registers the sample strategies into strategy.Default
)

func main() {
	os.Exit(run())
}

// run returns the process exit code rather than calling os.Exit
// directly so deferred Close calls on optstore/optcache connections
// still fire (spec.md §6.4: "Exit code 0 on success, negative on parse
// or load failure").
func run() int {
	var (
		workers   int
		storeDSN  string
		storeMig  string
		cacheAddr string
	)
	flag.IntVar(&workers, "workers", 0, "optimizer worker count (0 = detected CPU count)")
	flag.StringVar(&storeDSN, "optstore-dsn", "", "optional Postgres DSN to persist optimization runs")
	flag.StringVar(&storeMig, "optstore-migrations", "migrations/optstore", "golang-migrate directory for -optstore-dsn")
	flag.StringVar(&cacheAddr, "optcache-addr", "", "optional Redis address to memoize fitness evaluations")
	var tuningPath string
	flag.StringVar(&tuningPath, "genetic-tuning", "", "optional YAML file overriding the genetic optimizer's population/crossover/mutation/weights")
	var traceDir string
	flag.StringVar(&traceDir, "trace-dir", "", "optional directory to record an order lifecycle trace (decisions.jsonl)")
	var (
		walkForward bool
		wfISDays    int
		wfOOSDays   int
	)
	flag.BoolVar(&walkForward, "walkforward", false, "run rolling in-sample/out-of-sample validation instead of a single backtest (single-instrument scenarios only)")
	flag.IntVar(&wfISDays, "wf-is-days", 252, "walk-forward in-sample window length in days")
	flag.IntVar(&wfOOSDays, "wf-oos-days", 63, "walk-forward out-of-sample window length in days")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: engine <scenario.xml>")
		return -1
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	ctx := log.WithRunInfo(context.Background(), log.RunInfo{RunID: runID})

	doc, err := scenario.Load(flag.Arg(0))
	if err != nil {
		logParseFailure(ctx, "scenario_load_failed", err)
		return -1
	}
	if err := doc.Broker.Validate(); err != nil {
		logParseFailure(ctx, "scenario_invalid", err)
		return -1
	}

	contracts := make(map[string]bar.Contract, len(doc.DataStreams))
	templates := make([]feed.BarFeed, 0, len(doc.DataStreams))
	for _, ds := range doc.DataStreams {
		f, err := ds.LoadFeed()
		if err != nil {
			logParseFailure(ctx, "datastream_load_failed", err)
			return -1
		}
		contracts[ds.Name] = ds.Contract()
		templates = append(templates, f)
	}

	brokerCfg := broker.Config{
		InitialCash:          doc.Broker.Cash,
		AllowNegativeCash:    doc.Broker.AllowNegativeCash,
		TradingDayEndSeconds: doc.Broker.TradingDayEndSeconds,
		FillStrategy:         order.BarFillStrategy{},
	}
	strategyCfg := doc.StrategyConfig()

	outDir := outputDir(doc.Report)
	mask := doc.ReportMask()
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Fatal(ctx, "report_dir_failed", map[string]any{"dir": outDir, "error": err.Error()})
			return -1
		}
	}

	if walkForward {
		return runWalkForward(ctx, brokerCfg, contracts, templates, strategyCfg, wfISDays, wfOOSDays, outDir)
	}

	mode := doc.OptimizationMode()
	if mode == scenario.ModeNone {
		return runSingle(ctx, runID, brokerCfg, contracts, templates, strategyCfg, outDir, mask, traceDir)
	}
	return runOptimization(ctx, runID, mode, workers, storeDSN, storeMig, cacheAddr, tuningPath, brokerCfg, contracts, templates, strategyCfg, doc, outDir, mask)
}

// logParseFailure logs a scenario/datastream load error at error level
// without exiting, so the caller can return the negative exit code
// spec.md §6.4 documents for parse/load failures specifically (as
// opposed to log.Fatal's os.Exit(1) used for every other fatal kind in
// spec.md §7).
func logParseFailure(ctx context.Context, kind string, err error) {
	log.Event(ctx, "error", kind, map[string]any{"error": err.Error()})
}

// outputDir derives the single directory every configured report path
// must share (scenario.Document.ReportMask's doc comment), from the
// first non-empty <report> path.
func outputDir(r scenario.ReportXML) string {
	for _, p := range []string{r.SummaryPath, r.DailyMetricsPath, r.TradePath, r.PositionPath, r.ReturnPath, r.EquityPath, r.OptimizationPath} {
		if p != "" {
			return filepath.Dir(p)
		}
	}
	return ""
}

func cloneAll(templates []feed.BarFeed) []feed.BarFeed {
	out := make([]feed.BarFeed, len(templates))
	for i, f := range templates {
		out[i] = f.Clone()
	}
	return out
}

func runSingle(ctx context.Context, runID string, brokerCfg broker.Config, contracts map[string]bar.Contract, templates []feed.BarFeed, strategyCfg strategy.Config, outDir string, mask report.Mask, traceDir string) int {
	ex, err := executor.New(executor.Config{
		Broker:     brokerCfg,
		Contracts:  contracts,
		Feeds:      cloneAll(templates),
		Strategies: []strategy.Config{strategyCfg},
		Registry:   strategy.Default,
		RunID:      runID,
		TraceDir:   traceDir,
	})
	if err != nil {
		log.Fatal(ctx, "executor_build_failed", map[string]any{"error": err.Error()})
		return -1
	}
	res := ex.Run()
	if outDir != "" {
		if err := report.WriteResult(outDir, mask, res, ex.Positions(), ex.PerBarReturns()); err != nil {
			log.Fatal(ctx, "report_write_failed", map[string]any{"error": err.Error()})
			return -1
		}
	}
	return 0
}

// runWalkForward runs rolling IS/OOS validation over the scenario's
// single data stream (SPEC_FULL.md §C) and writes a plain-text summary
// alongside the normal report files rather than adding a new CSV shape
// to the report package for a feature spec.md never required.
func runWalkForward(ctx context.Context, brokerCfg broker.Config, contracts map[string]bar.Contract, templates []feed.BarFeed, strategyCfg strategy.Config, isDays, oosDays int, outDir string) int {
	if len(templates) != 1 {
		log.Fatal(ctx, "walkforward_requires_single_stream", map[string]any{"streams": len(templates)})
		return -1
	}
	f := templates[0]
	start, end, ok := feedRange(f)
	if !ok {
		log.Fatal(ctx, "walkforward_empty_feed", map[string]any{"instrument": f.Instrument()})
		return -1
	}

	res, err := walkforward.Run(walkforward.Config{
		Strategies:   []strategy.Config{strategyCfg},
		Registry:     strategy.Default,
		Feed:         f,
		Contracts:    contracts,
		FullStart:    start,
		FullEnd:      end,
		ISPeriod:     time.Duration(isDays) * 24 * time.Hour,
		OOSPeriod:    time.Duration(oosDays) * 24 * time.Hour,
		InitialCash:  brokerCfg.InitialCash,
		BrokerConfig: brokerCfg,
	})
	if err != nil {
		log.Fatal(ctx, "walkforward_run_failed", map[string]any{"error": err.Error()})
		return -1
	}

	log.Event(ctx, "info", "walkforward_done", map[string]any{
		"windows":       len(res.Windows),
		"wfer":          res.WFER,
		"verdict":       walkforward.WFERVerdict(res),
		"pass_rate":     res.PassRate,
		"mean_oos_ret":  res.MeanOOSReturn,
		"oos_trades":    res.TotalOOSTrades,
	})

	if outDir != "" {
		if err := writeWalkForwardSummary(outDir, res); err != nil {
			log.Fatal(ctx, "report_write_failed", map[string]any{"error": err.Error()})
			return -1
		}
	}
	return 0
}

// feedRange reports the earliest and latest tradable timestamps of a
// feed without disturbing a caller-owned cursor, by inspecting a clone.
func feedRange(f feed.BarFeed) (start, end time.Time, ok bool) {
	periods := f.Clone().TradablePeriods()
	if len(periods) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start = periods[0].Start
	end = periods[len(periods)-1].End
	return start, end, true
}

func writeWalkForwardSummary(outDir string, res *walkforward.Result) error {
	path := filepath.Join(outDir, "WalkForward.txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("walkforward summary: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Walk-Forward Efficiency Ratio: %.4f (%s)\n", res.WFER, walkforward.WFERVerdict(res))
	fmt.Fprintf(f, "Windows: %d  PassRate: %.2f%%  MeanOOSReturn: %.4f  TotalOOSTrades: %d  Stability: %.2f\n",
		len(res.Windows), res.PassRate*100, res.MeanOOSReturn, res.TotalOOSTrades, res.StabilityScore)
	for _, w := range res.Windows {
		fmt.Fprintf(f, "window %d: OOS[%s,%s) trades=%d winRate=%.2f return=%.4f annualised=%.4f maxDD=%.4f sharpe=%.4f\n",
			w.Index, w.OOSStart.Format(time.RFC3339), w.OOSEnd.Format(time.RFC3339),
			w.TotalTrades, w.WinRate, w.TotalReturn, w.AnnualisedRet, w.MaxDrawdown, w.SharpeRatio)
	}
	return nil
}

// withParams returns a copy of cfg with every ParamValue decoded for
// this position substituted by name, leaving parameters the scenario
// did not mark optimizing untouched.
func withParams(cfg strategy.Config, values []optimizer.ParamValue) strategy.Config {
	out := cfg
	out.Parameters = append([]strategy.Parameter(nil), cfg.Parameters...)
	for _, v := range values {
		for i := range out.Parameters {
			if out.Parameters[i].Name == v.ParamName {
				out.Parameters[i].Value = v.Value
			}
		}
	}
	return out
}

func runOptimization(ctx context.Context, runID string, mode scenario.OptimizationMode, workers int, storeDSN, storeMig, cacheAddr, tuningPath string, brokerCfg broker.Config, contracts map[string]bar.Contract, templates []feed.BarFeed, strategyCfg strategy.Config, doc *scenario.Document, outDir string, mask report.Mask) int {
	ps := doc.ParameterSpace()
	if ps.Total == 0 {
		// ParameterSpaceEmpty (spec.md §7): the optimizer run no-ops.
		log.Event(ctx, "warn", "parameter_space_empty", nil)
		return 0
	}

	var cache *optcache.Cache
	if cacheAddr != "" {
		c, err := optcache.New(optcache.Config{RedisURL: cacheAddr}, runID)
		if err != nil {
			log.Fatal(ctx, "optcache_connect_failed", map[string]any{"error": err.Error()})
			return -1
		}
		defer c.Close()
		cache = c
	}

	runPosition := func(_ context.Context, position int) (optimizer.Metrics, error) {
		values, err := ps.Values(position)
		if err != nil {
			return optimizer.Metrics{}, err
		}
		cfg := withParams(strategyCfg, values)
		ex, err := executor.New(executor.Config{
			Broker:     brokerCfg,
			Contracts:  contracts,
			Feeds:      cloneAll(templates),
			Strategies: []strategy.Config{cfg},
			Registry:   strategy.Default,
			RunID:      fmt.Sprintf("%s-%d", runID, position),
		})
		if err != nil {
			return optimizer.Metrics{}, err
		}
		res := ex.Run()
		return optimizer.Metrics{
			CumulativeReturn: res.CumulativeReturn,
			MaxDrawdown:      res.MaxDrawdown,
			SharpeRatio:      res.SharpeRatio,
		}, nil
	}
	if cache != nil {
		runPosition = cache.Wrap(runPosition)
	}
	br := optimizer.NewBatchRunner(workers, runPosition)

	var store *optstore.Store
	if storeDSN != "" {
		cfg := &optstore.Config{DSN: storeDSN, MigrationsPath: storeMig}
		s, err := optstore.Connect(context.Background(), cfg)
		if err != nil {
			log.Fatal(ctx, "optstore_connect_failed", map[string]any{"error": err.Error()})
			return -1
		}
		defer s.Close()
		store = s
	}

	if mode == scenario.ModeGenetic {
		geneticCfg := optimizer.GeneticConfig{}
		if tuningPath != "" {
			cfg, err := optimizer.LoadTuning(tuningPath)
			if err != nil {
				logParseFailure(ctx, "genetic_tuning_load_failed", err)
				return -1
			}
			geneticCfg = cfg
		}
		result, err := optimizer.RunGenetic(context.Background(), ps, geneticCfg, br)
		if err != nil {
			log.Fatal(ctx, "genetic_run_failed", map[string]any{"error": err.Error()})
			return -1
		}
		log.Event(ctx, "info", "genetic_done", map[string]any{
			"best_position": result.Elitist.Chromosome,
			"score":         result.Elitist.Score,
			"generations":   result.FinalAge,
		})
		return 0
	}

	results, best, err := optimizer.RunExhaustive(context.Background(), ps, br)
	if err != nil {
		log.Fatal(ctx, "exhaustive_run_failed", map[string]any{"error": err.Error()})
		return -1
	}
	if outDir != "" && mask&report.OptimizationFile != 0 {
		if err := report.WriteOptimization(outDir, results); err != nil {
			log.Fatal(ctx, "report_write_failed", map[string]any{"error": err.Error()})
			return -1
		}
	}
	if store != nil {
		if err := store.SaveRun(context.Background(), runID, string(mode), results, best); err != nil {
			log.Fatal(ctx, "optstore_save_failed", map[string]any{"error": err.Error()})
			return -1
		}
	}
	log.Event(ctx, "info", "exhaustive_done", map[string]any{"best_position": best, "total": ps.Total})
	return 0
}
