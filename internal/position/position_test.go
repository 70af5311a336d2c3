package position_test

import (
	"testing"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/broker"
	"xbacktest/internal/order"
	"xbacktest/internal/position"
)

// TestStopLossRoundTrip reproduces spec.md §8 scenario 1 end to end: a
// market buy fills at bar1's open (100), registers a 1% stop-loss against
// its own entry bar, and that stop must fire and fill within the SAME
// bar at exactly 99.0 — the literal regression test for both the
// ProcessBar fall-through fix and the Stop-vs-Limit exit synthesis fix.
func TestStopLossRoundTrip(t *testing.T) {
	contract := bar.Contract{Multiplier: 1, MarginRatio: 1}
	contracts := map[string]bar.Contract{"ES": contract}
	br := broker.New(broker.Config{InitialCash: 10000}, contracts)

	var barTime time.Time
	var pos *position.Position
	br.OnFilled = func(ev broker.FillEvent) {
		if ev.OpenedLotID > 0 && pos == nil {
			pos = position.New("ES", position.Long, contract, func(o *order.Order) { br.Submit(o, barTime) })
			pos.OnOpened = func(p *position.Position) {
				p.AddStop(&position.StopCondition{
					Kind: position.StopLoss, ThresholdBasis: position.Percent, Threshold: 0.01,
				}, 0)
			}
		}
		if pos != nil {
			pos.OnFill(ev)
		}
	}

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bar0T := base
	bar1T := base.Add(time.Minute)

	buy := order.New("ES", order.Market, order.Buy, 10)
	br.Submit(buy, bar0T) // placed during bar0's strategy callback

	barTime = bar1T
	bar1 := bar.Bar{Instrument: "ES", DateTime: bar1T, Open: 100, High: 101, Low: 98, Close: 99, Resolution: bar.Minute, Interval: 1, Volume: 1}
	br.ProcessBar(bar1) // accepted and filled within this one call (entry @ open 100)

	if pos == nil || pos.TotalShares != 10 {
		t.Fatalf("position after entry fill: %+v", pos)
	}
	if pos.AvgFillPrice != 100 {
		t.Fatalf("entry AvgFillPrice = %v, want 100", pos.AvgFillPrice)
	}

	pos.OnBar(bar1)          // stop-loss evaluated against the entry bar itself
	br.ProcessIntraBar(bar1) // synthesized stop-sell tried against the same bar

	if pos.TotalShares != 0 {
		t.Fatalf("position not closed after stop-loss: TotalShares = %d", pos.TotalShares)
	}
	if got := pos.RealizedPnL; got != -10 {
		t.Errorf("RealizedPnL = %v, want -10", got)
	}
	if got := br.Cash(); got != 9990 {
		t.Errorf("Cash() = %v, want 9990", got)
	}
	if len(pos.Transactions) != 1 || pos.Transactions[0].ExitPrice != 99 {
		t.Errorf("Transactions = %+v, want one closed at 99.0", pos.Transactions)
	}
}

// TestTrailingStopShortRoundTrip reproduces spec.md §8 scenario 2: a
// short entered at 200, a trailing stop armed at 2% favorable excursion
// with a 50% drawdown giveback, low reaches 195 (arms), then high
// reaches 197.5 (exits) for a realized gain of 25.
func TestTrailingStopShortRoundTrip(t *testing.T) {
	contract := bar.Contract{Multiplier: 1, MarginRatio: 1}
	contracts := map[string]bar.Contract{"ES": contract}
	br := broker.New(broker.Config{InitialCash: 10000}, contracts)

	var barTime time.Time
	var pos *position.Position
	br.OnFilled = func(ev broker.FillEvent) {
		if ev.OpenedLotID > 0 && pos == nil {
			pos = position.New("ES", position.Short, contract, func(o *order.Order) { br.Submit(o, barTime) })
			pos.OnOpened = func(p *position.Position) {
				p.AddStop(&position.StopCondition{
					Kind: position.TrailingStop, ThresholdBasis: position.Percent, Threshold: 0.02,
					DrawdownBasis: position.Percent, Drawdown: 0.5,
				}, 0)
			}
		}
		if pos != nil {
			pos.OnFill(ev)
		}
	}

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bar0T := base
	bar1T := base.Add(time.Minute)
	bar2T := base.Add(2 * time.Minute)
	bar3T := base.Add(3 * time.Minute)

	short := order.New("ES", order.Market, order.SellShort, 10)
	br.Submit(short, bar0T)

	barTime = bar1T
	bar1 := bar.Bar{Instrument: "ES", DateTime: bar1T, Open: 200, High: 201, Low: 199, Close: 200, Resolution: bar.Minute, Interval: 1, Volume: 1}
	br.ProcessBar(bar1)

	if pos == nil || pos.TotalShares != -10 {
		t.Fatalf("position after short entry: %+v", pos)
	}
	if pos.AvgFillPrice != 200 {
		t.Fatalf("entry AvgFillPrice = %v, want 200", pos.AvgFillPrice)
	}
	pos.OnBar(bar1) // no excursion yet; doesn't arm

	barTime = bar2T
	bar2 := bar.Bar{Instrument: "ES", DateTime: bar2T, Open: 198, High: 199, Low: 195, Close: 196, Resolution: bar.Minute, Interval: 1, Volume: 1}
	br.ProcessBar(bar2) // no pending orders; a no-op pass
	pos.OnBar(bar2)     // low=195 -> returns 2.5% >= 2% threshold: arms, no exit yet
	br.ProcessIntraBar(bar2)

	if pos.TotalShares != -10 {
		t.Fatalf("position closed prematurely after arming bar: %+v", pos)
	}

	barTime = bar3T
	bar3 := bar.Bar{Instrument: "ES", DateTime: bar3T, Open: 196, High: 197.5, Low: 196, Close: 197, Resolution: bar.Minute, Interval: 1, Volume: 1}
	br.ProcessBar(bar3)
	pos.OnBar(bar3) // trail = 195 + (5 - 2.5) = 197.5; high crosses it -> exit fires
	br.ProcessIntraBar(bar3)

	if pos.TotalShares != 0 {
		t.Fatalf("position not closed after trailing stop: TotalShares = %d", pos.TotalShares)
	}
	if got := pos.RealizedPnL; got != 25 {
		t.Errorf("RealizedPnL = %v, want 25", got)
	}
	if len(pos.Transactions) != 1 || pos.Transactions[0].ExitPrice != 197.5 {
		t.Errorf("Transactions = %+v, want one closed at 197.5", pos.Transactions)
	}
}

// TestSubmitExitRefusesToStackASecondOrder verifies spec.md §4.5: at most
// one active exit order is permitted per sub-position.
func TestSubmitExitRefusesToStackASecondOrder(t *testing.T) {
	contract := bar.Contract{Multiplier: 1, MarginRatio: 1}
	contracts := map[string]bar.Contract{"ES": contract}
	br := broker.New(broker.Config{InitialCash: 10000}, contracts)

	var barTime time.Time
	var submittedCount int
	var pos *position.Position
	br.OnFilled = func(ev broker.FillEvent) {
		if ev.OpenedLotID > 0 && pos == nil {
			pos = position.New("ES", position.Long, contract, func(o *order.Order) {
				submittedCount++
				br.Submit(o, barTime)
			})
			pos.OnOpened = func(p *position.Position) {
				p.AddStop(&position.StopCondition{Kind: position.StopLoss, ThresholdBasis: position.Percent, Threshold: 0.01}, 0)
				p.AddStop(&position.StopCondition{Kind: position.StopLoss, ThresholdBasis: position.Percent, Threshold: 0.01}, 0)
			}
		}
		if pos != nil {
			pos.OnFill(ev)
		}
	}

	base := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	bar1T := base.Add(time.Minute)

	buy := order.New("ES", order.Market, order.Buy, 10)
	br.Submit(buy, base)

	barTime = bar1T
	bar1 := bar.Bar{Instrument: "ES", DateTime: bar1T, Open: 100, High: 101, Low: 98, Close: 99, Resolution: bar.Minute, Interval: 1, Volume: 1}
	br.ProcessBar(bar1)

	pos.OnBar(bar1) // two identical stop conditions both trigger on this bar

	if submittedCount != 1 {
		t.Errorf("submit() called %d times, want exactly 1 (second stop must be refused)", submittedCount)
	}
}
