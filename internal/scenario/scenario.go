// Package scenario parses the XML run-configuration file of spec.md
// §6.2 and builds the engine types (bar.Contract, feed.BarFeed,
// strategy.Config, an optional optimizer.ParameterSpace, and a
// report.Mask) that internal/executor and
// internal/optimizer need to run it. No pack repo parses XML, and this
// is an explicitly out-of-scope external interface (spec.md §1), so
// stdlib encoding/xml is used directly rather than a third-party parser.
package scenario

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"xbacktest/internal/bar"
	"xbacktest/internal/dataset"
	"xbacktest/internal/feed"
	"xbacktest/internal/optimizer"
	"xbacktest/internal/report"
	"xbacktest/internal/strategy"
)

// OptimizationMode names the two search strategies spec.md §4.8
// supports. Presence of any <optimizing> node in the file switches a
// scenario to one of these automatically (spec.md §6.2).
type OptimizationMode string

const (
	ModeNone      OptimizationMode = ""
	ModeExhaustive OptimizationMode = "exhaustive"
	ModeGenetic    OptimizationMode = "genetic"
)

// Document is the root XML element of one scenario file (spec.md §6.2).
type Document struct {
	XMLName     xml.Name        `xml:"scenario"`
	Environment EnvironmentXML  `xml:"environment" validate:"required"`
	Broker      BrokerXML       `xml:"broker" validate:"required"`
	DataStreams []DataStreamXML `xml:"datastreams>datastream" validate:"required,min=1,dive"`
	Strategy    StrategyXML     `xml:"strategy" validate:"required"`
	Report      ReportXML       `xml:"report"`
}

// EnvironmentXML names the run's worker-pool size and optimization mode.
type EnvironmentXML struct {
	CoreCount        int    `xml:"core_count"`
	OptimizationMode string `xml:"optimization_mode"` // "exhaustive" | "genetic" | ""
}

// BrokerXML configures the single BacktestingBroker instance.
type BrokerXML struct {
	Cash                 float64 `xml:"cash" validate:"gt=0"`
	AllowNegativeCash     bool    `xml:"allow_negative_cash"`
	TradingDayEndSeconds  int     `xml:"trading_day_end_seconds"`
}

// CommissionXML/SlippageXML name a fee model kind and its scalar
// argument (spec.md §6.2: "commission{type,value}/slippage{type,value}").
type CommissionXML struct {
	Type  string  `xml:"type"`  // "none" | "fixed" | "percent"
	Value float64 `xml:"value"`
}

type SlippageXML struct {
	Type  string  `xml:"type"`
	Value float64 `xml:"value"`
}

// ContractXML is the nested per-datastream contract metadata.
type ContractXML struct {
	Multiplier  float64        `xml:"multiplier"`
	TickSize    float64        `xml:"ticksize"`
	MarginRatio float64        `xml:"margin_ratio"`
	Commission  CommissionXML  `xml:"commission"`
	Slippage    SlippageXML    `xml:"slippage"`
	ProductID   string         `xml:"productid"`
}

// DataStreamXML names one bar source and its contract (spec.md §6.2).
type DataStreamXML struct {
	Name       string      `xml:"name" validate:"required"`
	Resolution string      `xml:"resolution" validate:"required,oneof=week day hour minute second trade"`
	Source     string      `xml:"source" validate:"required"`
	Format     string      `xml:"format"`
	Interval   int         `xml:"interval"`
	Realtime   bool        `xml:"realtime"`
	Contract   ContractXML `xml:"contract"`
}

// OptimizingXML declares a parameter's sweep range; its presence
// anywhere in the file switches the scenario to optimization mode
// (spec.md §6.2).
type OptimizingXML struct {
	Start float64 `xml:"start"`
	End   float64 `xml:"end"`
	Step  float64 `xml:"step"`
}

// ParameterXML is one strategy parameter, optionally carrying an
// <optimizing> sweep range.
type ParameterXML struct {
	Name       string         `xml:"name" validate:"required"`
	Value      string         `xml:"value"`
	Optimizing *OptimizingXML `xml:"optimizing"`
}

// StrategyXML names the registered strategy to run and its parameters.
type StrategyXML struct {
	Name             string         `xml:"name" validate:"required"`
	Description      string         `xml:"description"`
	Author           string         `xml:"author"`
	LibraryEntry     string         `xml:"library_entry"`
	SubscribedStream string         `xml:"subscribed_stream"`
	Parameters       []ParameterXML `xml:"parameters>parameter" validate:"dive"`
}

// ReportXML names the output paths for each report file (spec.md §6.4).
// An empty path disables that file.
type ReportXML struct {
	SummaryPath      string `xml:"summary_path"`
	DailyMetricsPath string `xml:"daily_metrics_path"`
	TradePath        string `xml:"trade_path"`
	PositionPath     string `xml:"position_path"`
	ReturnPath       string `xml:"return_path"`
	EquityPath       string `xml:"equity_path"`
	OptimizationPath string `xml:"optimization_path"`
}

var validate = validator.New()

// Load reads and parses the scenario file at path, failing fast on any
// malformed XML or a validation-tagged field that is missing or out of
// range — the ConfigInvalid fatal error kind of spec.md §7 ("missing
// name, no creator, cash <= 0, empty instrument list").
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %q: %w", path, err)
	}
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("scenario: %w: %v", ErrConfigInvalid, err)
	}
	return &doc, nil
}

// ErrConfigInvalid is the spec.md §7 ConfigInvalid fatal error kind.
var ErrConfigInvalid = fmt.Errorf("scenario: invalid configuration")

// OptimizationMode reports which search mode this document implies.
// Presence of any <optimizing> node anywhere under the strategy switches
// it to the environment's named mode automatically (spec.md §6.2);
// absent any such node, the run is a plain single backtest.
func (d *Document) OptimizationMode() OptimizationMode {
	hasOptimizing := false
	for _, p := range d.Strategy.Parameters {
		if p.Optimizing != nil {
			hasOptimizing = true
			break
		}
	}
	if !hasOptimizing {
		return ModeNone
	}
	if OptimizationMode(d.Environment.OptimizationMode) == ModeGenetic {
		return ModeGenetic
	}
	return ModeExhaustive
}

func resolutionOf(s string) bar.Resolution {
	switch s {
	case "week":
		return bar.Week
	case "day":
		return bar.Day
	case "hour":
		return bar.Hour
	case "minute":
		return bar.Minute
	case "second":
		return bar.Second
	default:
		return bar.Tick
	}
}

func formatOf(s string) dataset.Format {
	switch s {
	case "packed_binary":
		return dataset.FormatPackedBinary
	case "timeseries_binary":
		return dataset.FormatTimeSeriesBinary
	default:
		return dataset.FormatCSV
	}
}

func commissionKindOf(s string) bar.CommissionKind {
	switch s {
	case "fixed":
		return bar.CommissionFixedPerTrade
	case "percent":
		return bar.CommissionPercentOfNotional
	default:
		return bar.CommissionNone
	}
}

func slippageKindOf(s string) bar.SlippageKind {
	switch s {
	case "fixed":
		return bar.SlippageFixedPerTrade
	case "percent":
		return bar.SlippagePercentOfNotional
	default:
		return bar.SlippageNone
	}
}

// Contract builds the bar.Contract this datastream's nested <contract>
// element describes.
func (ds DataStreamXML) Contract() bar.Contract {
	return bar.Contract{
		Instrument:     ds.Name,
		Multiplier:     orOne(ds.Contract.Multiplier),
		TickSize:       ds.Contract.TickSize,
		MarginRatio:    orOne(ds.Contract.MarginRatio),
		CommissionKind: commissionKindOf(ds.Contract.Commission.Type),
		CommissionArg:  ds.Contract.Commission.Value,
		SlippageKind:   slippageKindOf(ds.Contract.Slippage.Type),
		SlippageArg:    ds.Contract.Slippage.Value,
	}
}

func orOne(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

// LoadFeed opens this datastream's source file via internal/dataset's
// format-dispatching loaders, honoring the <format> element (spec.md
// §6.1: CSV / packed binary / time-series binary).
func (ds DataStreamXML) LoadFeed() (feed.BarFeed, error) {
	res := resolutionOf(ds.Resolution)
	interval := ds.Interval
	if interval <= 0 {
		interval = 1
	}
	switch formatOf(ds.Format) {
	case dataset.FormatPackedBinary:
		return dataset.LoadPackedBinary(ds.Source, ds.Name, res, interval)
	case dataset.FormatTimeSeriesBinary:
		return dataset.LoadTimeSeriesBinary(ds.Source, ds.Name, res, interval)
	default:
		return dataset.LoadCSV(ds.Source, ds.Name, res, interval)
	}
}

// Validate checks the ConfigInvalid fatal conditions spec.md §7 names
// for the broker block ("cash <= 0"). broker.Config itself is built by
// the caller directly from this struct's fields (see cmd/engine), so
// this package does not need to import internal/broker.
func (b BrokerXML) Validate() error {
	if b.Cash <= 0 {
		return fmt.Errorf("%w: broker cash must be > 0, got %v", ErrConfigInvalid, b.Cash)
	}
	return nil
}

// StrategyConfig builds the strategy.Config this document's <strategy>
// element describes, with Instruments populated from SubscribedStream
// (or every datastream name, if it subscribes to all of them).
func (d *Document) StrategyConfig() strategy.Config {
	params := make([]strategy.Parameter, 0, len(d.Strategy.Parameters))
	for _, p := range d.Strategy.Parameters {
		sp := strategy.Parameter{Name: p.Name, Type: strategy.ParamString, Value: p.Value}
		if p.Optimizing != nil {
			sp.Optimizing = true
			sp.Start = p.Optimizing.Start
			sp.End = p.Optimizing.End
			sp.Step = p.Optimizing.Step
		}
		params = append(params, sp)
	}
	cfg := strategy.Config{
		Name:        d.Strategy.Name,
		Description: d.Strategy.Description,
		Author:      d.Strategy.Author,
		Parameters:  params,
	}
	if d.Strategy.SubscribedStream == "" || d.Strategy.SubscribedStream == "*" {
		cfg.SubscribeAll = true
	} else {
		cfg.Instruments = []string{d.Strategy.SubscribedStream}
	}
	return cfg
}

// ParameterSpace builds the optimizer.ParameterSpace implied by every
// <optimizing> node in the strategy's parameter list, against strategy
// index 0 (a scenario names exactly one strategy; spec.md §6.2 does not
// describe multi-strategy scenario files).
func (d *Document) ParameterSpace() *optimizer.ParameterSpace {
	var dims []optimizer.Dimension
	for _, p := range d.Strategy.Parameters {
		if p.Optimizing == nil {
			continue
		}
		dims = append(dims, optimizer.Dimension{
			StrategyIndex: 0,
			ParamName:     p.Name,
			Range:         optimizer.Range{Start: p.Optimizing.Start, End: p.Optimizing.End, Step: p.Optimizing.Step},
		})
	}
	return optimizer.New(dims)
}

// ReportMask builds the report.Mask for whichever output paths this
// document's <report> element names non-empty. The paths themselves are
// not returned; report.WriteResult writes one directory of named files,
// so every non-empty path's directory must agree.
func (d *Document) ReportMask() report.Mask {
	var m report.Mask
	if d.Report.SummaryPath != "" {
		m |= report.Summary
	}
	if d.Report.DailyMetricsPath != "" {
		m |= report.DailyMetricsFile
	}
	if d.Report.TradePath != "" {
		m |= report.TradesFile
	}
	if d.Report.PositionPath != "" {
		m |= report.PositionsFile
	}
	if d.Report.ReturnPath != "" {
		m |= report.ReturnsFile
	}
	if d.Report.EquityPath != "" {
		m |= report.EquitiesFile
	}
	if d.Report.OptimizationPath != "" {
		m |= report.OptimizationFile
	}
	return m
}
