package series

import (
	"math"
	"time"
)

// SMA is an arithmetic-mean EventWindow over the last N float64 values.
type SMA struct {
	n      int
	buf    []float64
	sum    float64
	value  float64
	primed bool
}

func NewSMA(n int) *SMA { return &SMA{n: n, value: NaN} }

func (w *SMA) OnNewValue(_ time.Time, v float64) {
	w.buf = append(w.buf, v)
	w.sum += v
	if len(w.buf) > w.n {
		w.sum -= w.buf[0]
		w.buf = w.buf[1:]
	}
	if len(w.buf) == w.n {
		w.primed = true
		w.value = w.sum / float64(w.n)
	}
}
func (w *SMA) Value() float64 { return w.value }
func (w *SMA) Ready() bool    { return w.primed }

// WeightedSMA is a SMA with an explicit per-value weight (explicit weighted
// average, not the linearly-increasing weighted-MA variant).
type WeightedSMA struct {
	n       int
	weight  float64
	buf     []float64
	value   float64
	primed  bool
}

func NewWeightedSMA(n int, weight float64) *WeightedSMA {
	return &WeightedSMA{n: n, weight: weight, value: NaN}
}

func (w *WeightedSMA) OnNewValue(_ time.Time, v float64) {
	w.buf = append(w.buf, v)
	if len(w.buf) > w.n {
		w.buf = w.buf[1:]
	}
	if len(w.buf) == w.n {
		w.primed = true
		sum := 0.0
		for _, x := range w.buf {
			sum += x * w.weight
		}
		w.value = sum / (float64(w.n) * w.weight)
	}
}
func (w *WeightedSMA) Value() float64 { return w.value }
func (w *WeightedSMA) Ready() bool    { return w.primed }

// EMA is an exponential moving average with multiplier 2/(N+1), seeded
// with an SMA of the first N values (standard EMA priming).
type EMA struct {
	n      int
	mult   float64
	seed   *SMA
	value  float64
	primed bool
}

func NewEMA(n int) *EMA {
	return &EMA{n: n, mult: 2.0 / float64(n+1), seed: NewSMA(n), value: NaN}
}

func (w *EMA) OnNewValue(dt time.Time, v float64) {
	if !w.primed {
		w.seed.OnNewValue(dt, v)
		if w.seed.Ready() {
			w.primed = true
			w.value = w.seed.Value()
		}
		return
	}
	w.value = (v-w.value)*w.mult + w.value
}
func (w *EMA) Value() float64 { return w.value }
func (w *EMA) Ready() bool    { return w.primed }

// HighestInWindow tracks the maximum of the last N values via a monotonic
// deque of (index, value) pairs, amortized O(1) per update.
type HighestInWindow struct {
	n      int
	idx    int
	deque  []hlEntry
	value  float64
	primed bool
	count  int
}

type hlEntry struct {
	idx int
	val float64
}

func NewHighestInWindow(n int) *HighestInWindow { return &HighestInWindow{n: n, value: NaN} }

func (w *HighestInWindow) OnNewValue(_ time.Time, v float64) {
	for len(w.deque) > 0 && w.deque[len(w.deque)-1].val <= v {
		w.deque = w.deque[:len(w.deque)-1]
	}
	w.deque = append(w.deque, hlEntry{idx: w.idx, val: v})
	for len(w.deque) > 0 && w.deque[0].idx <= w.idx-w.n {
		w.deque = w.deque[1:]
	}
	w.idx++
	w.count++
	if w.count >= w.n {
		w.primed = true
		w.value = w.deque[0].val
	}
}
func (w *HighestInWindow) Value() float64 { return w.value }
func (w *HighestInWindow) Ready() bool    { return w.primed }

// LowestInWindow is the monotonic-deque minimum counterpart.
type LowestInWindow struct {
	n      int
	idx    int
	deque  []hlEntry
	value  float64
	primed bool
	count  int
}

func NewLowestInWindow(n int) *LowestInWindow { return &LowestInWindow{n: n, value: NaN} }

func (w *LowestInWindow) OnNewValue(_ time.Time, v float64) {
	for len(w.deque) > 0 && w.deque[len(w.deque)-1].val >= v {
		w.deque = w.deque[:len(w.deque)-1]
	}
	w.deque = append(w.deque, hlEntry{idx: w.idx, val: v})
	for len(w.deque) > 0 && w.deque[0].idx <= w.idx-w.n {
		w.deque = w.deque[1:]
	}
	w.idx++
	w.count++
	if w.count >= w.n {
		w.primed = true
		w.value = w.deque[0].val
	}
}
func (w *LowestInWindow) Value() float64 { return w.value }
func (w *LowestInWindow) Ready() bool    { return w.primed }

// OHLC is the minimal bar shape the ATR/Stochastic windows consume —
// avoids a direct dependency on package bar so series stays leaf-level.
type OHLC struct {
	High  float64
	Low   float64
	Close float64
}

// ATR is Wilder-smoothed average true range.
type ATR struct {
	n       int
	prev    *OHLC
	trCount int
	sumTR   float64
	value   float64
	primed  bool
}

func NewATR(n int) *ATR { return &ATR{n: n, value: NaN} }

func (w *ATR) OnNewValue(_ time.Time, v OHLC) {
	tr := v.High - v.Low
	if w.prev != nil {
		tr = math.Max(tr, math.Abs(v.High-w.prev.Close))
		tr = math.Max(tr, math.Abs(v.Low-w.prev.Close))
	}
	w.prev = &v

	if !w.primed {
		w.sumTR += tr
		w.trCount++
		if w.trCount == w.n {
			w.primed = true
			w.value = w.sumTR / float64(w.n)
		}
		return
	}
	// Wilder smoothing: ATR = (prevATR*(n-1) + TR) / n
	w.value = (w.value*float64(w.n-1) + tr) / float64(w.n)
}
func (w *ATR) Value() float64 { return w.value }
func (w *ATR) Ready() bool    { return w.primed }

// RSI is Wilder-smoothed relative strength index on closing prices.
type RSI struct {
	n         int
	prevClose float64
	haveFirst bool
	count     int
	sumGain   float64
	sumLoss   float64
	avgGain   float64
	avgLoss   float64
	value     float64
	primed    bool
}

func NewRSI(n int) *RSI { return &RSI{n: n, value: NaN} }

func (w *RSI) OnNewValue(_ time.Time, close float64) {
	if !w.haveFirst {
		w.haveFirst = true
		w.prevClose = close
		return
	}
	change := close - w.prevClose
	w.prevClose = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !w.primed {
		w.sumGain += gain
		w.sumLoss += loss
		w.count++
		if w.count == w.n {
			w.primed = true
			w.avgGain = w.sumGain / float64(w.n)
			w.avgLoss = w.sumLoss / float64(w.n)
			w.value = rsiFromAvg(w.avgGain, w.avgLoss)
		}
		return
	}
	w.avgGain = (w.avgGain*float64(w.n-1) + gain) / float64(w.n)
	w.avgLoss = (w.avgLoss*float64(w.n-1) + loss) / float64(w.n)
	w.value = rsiFromAvg(w.avgGain, w.avgLoss)
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func (w *RSI) Value() float64 { return w.value }
func (w *RSI) Ready() bool    { return w.primed }

// Stochastic computes %K (fast) and smoothed %D over a window of OHLC.
type Stochastic struct {
	kPeriod int
	dPeriod int
	highs   []float64
	lows    []float64
	closes  []float64
	kValues []float64
	k       float64
	d       float64
	primed  bool
}

func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{kPeriod: kPeriod, dPeriod: dPeriod, k: NaN, d: NaN}
}

func (w *Stochastic) OnNewValue(_ time.Time, v OHLC) {
	w.highs = append(w.highs, v.High)
	w.lows = append(w.lows, v.Low)
	w.closes = append(w.closes, v.Close)
	if len(w.highs) > w.kPeriod {
		w.highs = w.highs[1:]
		w.lows = w.lows[1:]
		w.closes = w.closes[1:]
	}
	if len(w.highs) < w.kPeriod {
		return
	}
	hh, ll := w.highs[0], w.lows[0]
	for i := 1; i < len(w.highs); i++ {
		hh = math.Max(hh, w.highs[i])
		ll = math.Min(ll, w.lows[i])
	}
	k := 50.0
	if hh != ll {
		k = (v.Close - ll) / (hh - ll) * 100
	}
	w.k = k
	w.kValues = append(w.kValues, k)
	if len(w.kValues) > w.dPeriod {
		w.kValues = w.kValues[1:]
	}
	if len(w.kValues) == w.dPeriod {
		w.primed = true
		sum := 0.0
		for _, x := range w.kValues {
			sum += x
		}
		w.d = sum / float64(w.dPeriod)
	}
}
func (w *Stochastic) Value() float64 { return w.k }
func (w *Stochastic) D() float64     { return w.d }
func (w *Stochastic) Ready() bool    { return w.primed }

// MACDValue is the output of MACD: the MACD line, its signal line, and
// the histogram difference.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes fastEMA - slowEMA, delaying the fast EMA's start by
// slowN-fastN bars for TA-Lib parity (spec.md §4.1), and a signal EMA of
// the difference.
type MACD struct {
	fastN, slowN, signalN int
	fast                  *EMA
	slow                  *EMA
	signal                *EMA
	bars                  int
	value                 MACDValue
	primed                bool
}

func NewMACD(fastN, slowN, signalN int) *MACD {
	return &MACD{
		fastN: fastN, slowN: slowN, signalN: signalN,
		fast: NewEMA(fastN), slow: NewEMA(slowN), signal: NewEMA(signalN),
		value: MACDValue{NaN, NaN, NaN},
	}
}

func (w *MACD) OnNewValue(dt time.Time, v float64) {
	w.bars++
	w.slow.OnNewValue(dt, v)
	// Delay feeding the fast EMA so both become ready at the same bar,
	// matching TA-Lib's alignment of the MACD line.
	if w.bars > w.slowN-w.fastN {
		w.fast.OnNewValue(dt, v)
	}
	if !w.fast.Ready() || !w.slow.Ready() {
		return
	}
	diff := w.fast.Value() - w.slow.Value()
	w.signal.OnNewValue(dt, diff)
	hist := NaN
	sig := NaN
	if w.signal.Ready() {
		sig = w.signal.Value()
		hist = diff - sig
		w.primed = true
	}
	w.value = MACDValue{MACD: diff, Signal: sig, Histogram: hist}
}
func (w *MACD) Value() MACDValue { return w.value }
func (w *MACD) Ready() bool      { return w.primed }

// Kaufman is the Kaufman Adaptive Moving Average: an efficiency-ratio
// weighted blend of a fast and slow smoothing constant.
type Kaufman struct {
	effRatioLen int
	fastSC      float64
	slowSC      float64
	buf         []float64
	value       float64
	primed      bool
}

// NewKaufman builds a KAMA window. fastN/slowN are the fast/slow EMA
// periods used to derive the smoothing constants (2/(fastN+1),
// 2/(slowN+1)).
func NewKaufman(effRatioLen, fastN, slowN int) *Kaufman {
	return &Kaufman{
		effRatioLen: effRatioLen,
		fastSC:      2.0 / float64(fastN+1),
		slowSC:      2.0 / float64(slowN+1),
		value:       NaN,
	}
}

func (w *Kaufman) OnNewValue(_ time.Time, v float64) {
	w.buf = append(w.buf, v)
	if len(w.buf) > w.effRatioLen+1 {
		w.buf = w.buf[1:]
	}
	if len(w.buf) < w.effRatioLen+1 {
		return
	}
	change := math.Abs(w.buf[len(w.buf)-1] - w.buf[0])
	volatility := 0.0
	for i := 1; i < len(w.buf); i++ {
		volatility += math.Abs(w.buf[i] - w.buf[i-1])
	}
	effRatio := 0.0
	if volatility != 0 {
		effRatio = change / volatility
	}
	sc := effRatio*(w.fastSC-w.slowSC) + w.slowSC
	sc *= sc

	if !w.primed {
		w.primed = true
		w.value = v
		return
	}
	w.value = w.value + sc*(v-w.value)
}
func (w *Kaufman) Value() float64 { return w.value }
func (w *Kaufman) Ready() bool    { return w.primed }
