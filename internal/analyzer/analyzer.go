// Package analyzer implements the Returns/Sharpe/Drawdown/Trades/
// DailyMetrics observers of spec.md §2.11, each attached to one
// Executor's broker and fed its equity curve, fills, and trading-day
// boundaries.
package analyzer

import (
	"math"
	"time"

	"xbacktest/internal/broker"
)

// ReturnsAnalyzer tracks the per-bar equity curve and derives simple and
// cumulative returns from it.
type ReturnsAnalyzer struct {
	initialEquity float64
	lastEquity    float64
	have          bool

	PerBarReturns []float64
	CumulativeReturn float64
}

// NewReturns seeds a ReturnsAnalyzer with the run's starting equity.
func NewReturns(initialEquity float64) *ReturnsAnalyzer {
	return &ReturnsAnalyzer{initialEquity: initialEquity, lastEquity: initialEquity}
}

// OnBar records one equity observation and appends its simple return
// over the prior observation.
func (a *ReturnsAnalyzer) OnBar(equity float64) {
	if a.have && a.lastEquity != 0 {
		a.PerBarReturns = append(a.PerBarReturns, (equity-a.lastEquity)/a.lastEquity)
	}
	a.lastEquity = equity
	a.have = true
	if a.initialEquity != 0 {
		a.CumulativeReturn = (equity - a.initialEquity) / a.initialEquity
	}
}

// SharpeAnalyzer computes the annualized Sharpe ratio of the returns fed
// to it by a ReturnsAnalyzer, given a per-bar risk-free rate and the
// number of bars per year used to annualize.
type SharpeAnalyzer struct {
	riskFreeRate   float64
	barsPerYear    float64
}

// NewSharpe builds a SharpeAnalyzer; barsPerYear annualizes the ratio
// (252 for daily bars, 252*390 for 1-minute equity bars, etc).
func NewSharpe(riskFreeRate, barsPerYear float64) *SharpeAnalyzer {
	return &SharpeAnalyzer{riskFreeRate: riskFreeRate, barsPerYear: barsPerYear}
}

// Ratio computes the Sharpe ratio over returns, or 0 if fewer than two
// samples or the sample has zero variance.
func (a *SharpeAnalyzer) Ratio(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r - a.riskFreeRate
	}
	mean /= float64(n)
	var variance float64
	for _, r := range returns {
		d := (r - a.riskFreeRate) - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return (mean / stddev) * math.Sqrt(a.barsPerYear)
}

// DrawdownAnalyzer tracks the running peak equity and the maximum
// percentage drawdown observed from it.
type DrawdownAnalyzer struct {
	peak    float64
	MaxDrawdown float64 // positive fraction, e.g. 0.12 for a 12% drawdown

	inDrawdown   bool
	ddStart      time.Time
	LongestDrawdownDuration time.Duration
}

// NewDrawdown creates an empty DrawdownAnalyzer.
func NewDrawdown() *DrawdownAnalyzer {
	return &DrawdownAnalyzer{}
}

// OnBar folds one equity observation into the running peak/drawdown
// state.
func (a *DrawdownAnalyzer) OnBar(equity float64, dt time.Time) {
	if equity > a.peak || a.peak == 0 {
		if a.inDrawdown {
			if d := dt.Sub(a.ddStart); d > a.LongestDrawdownDuration {
				a.LongestDrawdownDuration = d
			}
			a.inDrawdown = false
		}
		a.peak = equity
		return
	}
	if !a.inDrawdown {
		a.inDrawdown = true
		a.ddStart = dt
	}
	if a.peak == 0 {
		return
	}
	dd := (a.peak - equity) / a.peak
	if dd > a.MaxDrawdown {
		a.MaxDrawdown = dd
	}
}

// TradesAnalyzer accumulates win/loss counts and P&L statistics over
// every realized fill, grounded on the teacher's calculateMetrics
// win-rate/profit-factor computation.
type TradesAnalyzer struct {
	Count     int
	Wins      int
	Losses    int
	GrossProfit float64
	GrossLoss   float64
}

// NewTrades creates an empty TradesAnalyzer.
func NewTrades() *TradesAnalyzer {
	return &TradesAnalyzer{}
}

// OnFill folds one closing fill's realized P&L into the running
// statistics. Opening fills (ev.OpenedLotID > 0) are ignored.
func (a *TradesAnalyzer) OnFill(ev broker.FillEvent) {
	if ev.OpenedLotID > 0 {
		return
	}
	a.Count++
	if ev.RealizedPnL > 0 {
		a.Wins++
		a.GrossProfit += ev.RealizedPnL
	} else if ev.RealizedPnL < 0 {
		a.Losses++
		a.GrossLoss += -ev.RealizedPnL
	}
}

// WinRate returns Wins / Count, or 0 if no trades recorded.
func (a *TradesAnalyzer) WinRate() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Wins) / float64(a.Count)
}

// ProfitFactor returns GrossProfit / GrossLoss, or 0 if there were no
// losing trades to divide by.
func (a *TradesAnalyzer) ProfitFactor() float64 {
	if a.GrossLoss == 0 {
		return 0
	}
	return a.GrossProfit / a.GrossLoss
}

// DailyMetrics is one trading-day record (spec.md §3).
type DailyMetrics struct {
	Date            time.Time
	Equity          float64
	Cash            float64
	Margin          float64
	PositionProfit  float64
	RealizedProfit  float64
	TradesCount     int
	TradedVolume    int64
	CumulativeTrades int
}

// DailyMetricsAnalyzer emits one DailyMetrics row per new-trading-day
// boundary fired by the broker (spec.md §4.4).
type DailyMetricsAnalyzer struct {
	cumulativeTrades int
	cumulativeRealized float64
	Rows []DailyMetrics
}

// NewDailyMetrics creates an empty DailyMetricsAnalyzer.
func NewDailyMetrics() *DailyMetricsAnalyzer {
	return &DailyMetricsAnalyzer{}
}

// OnNewTradingDay records one day's closing snapshot. tradesToday is the
// broker's cumulative-since-reset counter — per Open Question #2, the
// broker's own counter is the single authority. realizedToday is the
// realized P&L of the closing fills since the previous boundary.
func (a *DailyMetricsAnalyzer) OnNewTradingDay(day time.Time, equity, cash, margin, positionProfit, realizedToday float64, tradesToday int, volumeToday int64) {
	a.cumulativeTrades += tradesToday
	a.cumulativeRealized += realizedToday
	a.Rows = append(a.Rows, DailyMetrics{
		Date: day, Equity: equity, Cash: cash, Margin: margin,
		PositionProfit: positionProfit, RealizedProfit: realizedToday,
		TradesCount: tradesToday, TradedVolume: volumeToday,
		CumulativeTrades: a.cumulativeTrades,
	})
}
