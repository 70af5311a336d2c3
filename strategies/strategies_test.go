package strategies

import (
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/order"
	"xbacktest/internal/position"
)

// fakeHandle records every order placement a strategy makes under test,
// without running a real Runtime/Broker.
type fakeHandle struct {
	now time.Time

	buys        []int
	sells       []int
	sellShorts  []int
	buyToCovers []int

	longs  map[string]*position.Position
	shorts map[string]*position.Position
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{longs: make(map[string]*position.Position), shorts: make(map[string]*position.Position)}
}

func (h *fakeHandle) Buy(qty int, stop, limit float64, immediately bool)        { h.buys = append(h.buys, qty) }
func (h *fakeHandle) Sell(qty int, stop, limit float64, immediately bool)       { h.sells = append(h.sells, qty) }
func (h *fakeHandle) SellShort(qty int, stop, limit float64, immediately bool)  { h.sellShorts = append(h.sellShorts, qty) }
func (h *fakeHandle) BuyToCover(qty int, stop, limit float64, immediately bool) { h.buyToCovers = append(h.buyToCovers, qty) }
func (h *fakeHandle) OpenLong(qty int)                                         { h.buys = append(h.buys, qty) }

func (h *fakeHandle) LongPosition(instrument string) *position.Position  { return h.longs[instrument] }
func (h *fakeHandle) ShortPosition(instrument string) *position.Position { return h.shorts[instrument] }

func (h *fakeHandle) SetStopLossAmount(p *position.Position, subPosID int, amount float64)              {}
func (h *fakeHandle) SetStopLossPercent(p *position.Position, subPosID int, pct float64)                {}
func (h *fakeHandle) SetTrailingStop(p *position.Position, subPosID int, returnsThreshold, drawdownAbs float64) {
}
func (h *fakeHandle) SetPercentTrailing(p *position.Position, subPosID int, returnsThreshold, drawdownRatio float64) {
}
func (h *fakeHandle) SetStopProfitPercent(p *position.Position, subPosID int, pct float64) {}

func (h *fakeHandle) CloseAllPositions() {}

func (h *fakeHandle) Now() time.Time { return h.now }

// samplePositionForTest builds an open long Position with the given
// share count, for tests that need an existing position to exit from.
func samplePositionForTest(shares int) *position.Position {
	p := position.New("TEST", position.Long, bar.Contract{Instrument: "TEST", Multiplier: 1}, func(*order.Order) {})
	p.TotalShares = shares
	return p
}
