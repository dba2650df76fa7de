// Package divergence detects price/indicator divergences over bounded
// per-instrument histories.
package divergence

import (
	"fmt"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/ringbuf"
)

// Params configures a Detector.
type Params struct {
	// MinBars is both the minimum history required and the size of the
	// trailing window extrema are searched in.
	MinBars int `yaml:"min_bars" json:"min_bars"`
	// MaxHistory caps every history ring.
	MaxHistory int `yaml:"max_history" json:"max_history"`
	// MinStrength is the exclusive lower bound for emitting a candidate.
	MinStrength float64 `yaml:"min_strength" json:"min_strength"`
}

// DefaultParams returns MinBars 5, MaxHistory 100, MinStrength 0.3.
func DefaultParams() Params {
	return Params{MinBars: 5, MaxHistory: 100, MinStrength: 0.3}
}

// Candidate is one detected divergence. It lives for a single detection
// cycle and is not persisted.
type Candidate struct {
	Kind            model.DivergenceKind `json:"kind"`
	Indicator       model.IndicatorKind  `json:"indicator"`
	Strength        float64              `json:"strength"`
	PricePoints     [2]ExtremePoint      `json:"price_points"`
	IndicatorPoints [2]ExtremePoint      `json:"indicator_points"`
	Description     string               `json:"description"`
}

// proxies lists the indicator proxies in detection order.
var proxies = [...]model.IndicatorKind{
	model.IndicatorRSI,
	model.IndicatorMACD,
	model.IndicatorStochastic,
}

// Detector keeps the price history and one history per indicator proxy
// (RSI value, MACD histogram, Stochastic %K) for a single instrument.
// All four rings share one capacity and are appended together, so they
// always have equal length and zip by index.
//
// A Detector is owned by one goroutine; it performs no locking.
type Detector struct {
	params Params

	price *ringbuf.Ring[float64]
	proxy [len(proxies)]*ringbuf.Ring[float64]

	// scratch buffers reused across Detect calls
	pw, iw     []float64
	pExt, iExt []ExtremePoint
}

// NewDetector creates an empty detector.
func NewDetector(p Params) *Detector {
	d := &Detector{
		params: p,
		price:  ringbuf.New[float64](p.MaxHistory),
		pw:     make([]float64, 0, p.MinBars),
		iw:     make([]float64, 0, p.MinBars),
	}
	for i := range d.proxy {
		d.proxy[i] = ringbuf.New[float64](p.MaxHistory)
	}
	return d
}

// AddSample appends price and the snapshot's proxies to the histories.
func (d *Detector) AddSample(price float64, snap model.IndicatorSnapshot) {
	d.price.Push(price)
	d.proxy[0].Push(snap.RSI)
	d.proxy[1].Push(snap.MACD.Histogram)
	d.proxy[2].Push(snap.Stochastic.K)
}

// Len returns the number of samples held.
func (d *Detector) Len() int { return d.price.Len() }

// Reset clears every history.
func (d *Detector) Reset() {
	d.price.Reset()
	for _, r := range d.proxy {
		r.Reset()
	}
}

// Detect scans the trailing MinBars window of each proxy and returns the
// candidates whose strength exceeds MinStrength, ordered RSI bullish, RSI
// bearish, MACD bullish, MACD bearish, Stochastic bullish, Stochastic bearish.
// Returns nil while fewer than MinBars samples are held.
func (d *Detector) Detect() []Candidate {
	n := d.params.MinBars
	if d.price.Len() < n {
		return nil
	}

	d.pw = d.price.Tail(d.pw[:0], n)

	var out []Candidate
	for i, kind := range proxies {
		d.iw = d.proxy[i].Tail(d.iw[:0], n)

		if c, ok := d.check(model.Bullish, kind); ok {
			out = append(out, c)
		}
		if c, ok := d.check(model.Bearish, kind); ok {
			out = append(out, c)
		}
	}
	return out
}

// check tests one direction on the current price (pw) and proxy (iw) windows.
func (d *Detector) check(dir model.DivergenceKind, kind model.IndicatorKind) (Candidate, bool) {
	if dir == model.Bullish {
		d.pExt = localMinima(d.pExt[:0], d.pw)
		d.iExt = localMinima(d.iExt[:0], d.iw)
	} else {
		d.pExt = localMaxima(d.pExt[:0], d.pw)
		d.iExt = localMaxima(d.iExt[:0], d.iw)
	}

	p1, p2, ok := lastTwo(d.pExt)
	if !ok {
		return Candidate{}, false
	}
	i1, i2, ok := lastTwo(d.iExt)
	if !ok {
		return Candidate{}, false
	}

	// Bullish: price lower low, indicator higher low.
	// Bearish: price higher high, indicator lower high.
	diverges := p2.Value < p1.Value && i2.Value > i1.Value
	if dir == model.Bearish {
		diverges = p2.Value > p1.Value && i2.Value < i1.Value
	}
	if !diverges {
		return Candidate{}, false
	}

	s := strength(p1, p2, i1, i2)
	if s <= d.params.MinStrength {
		return Candidate{}, false
	}

	return Candidate{
		Kind:            dir,
		Indicator:       kind,
		Strength:        s,
		PricePoints:     [2]ExtremePoint{p1, p2},
		IndicatorPoints: [2]ExtremePoint{i1, i2},
		Description:     describe(dir, kind),
	}, true
}

func describe(dir model.DivergenceKind, kind model.IndicatorKind) string {
	if dir == model.Bullish {
		return fmt.Sprintf("Bullish %s divergence: price lower low, %s higher low", kind, kind)
	}
	return fmt.Sprintf("Bearish %s divergence: price higher high, %s lower high", kind, kind)
}
