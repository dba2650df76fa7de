// Package signal turns a per-instrument tick stream into classified trading
// signals: indicators are computed over a rolling window, divergences are
// detected between price and indicator extrema, and the strongest divergence
// is gated by weighted confirmation rules.
package signal

import (
	"fmt"
	"math"
	"strings"

	"signal-systemv1/internal/confirm"
	"signal-systemv1/internal/divergence"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/ringbuf"
)

// ReasonMixed is the HOLD reason when no strong divergence is present.
const ReasonMixed = "Mixed signals - insufficient confirmation for trade entry"

// Window carries caller-supplied high/low/close series for one tick.
// Nil series fall back to the engine's own history.
type Window struct {
	Highs  []float64
	Lows   []float64
	Closes []float64
}

// Engine holds the rolling state for one instrument. It is not safe for
// concurrent use: exactly one goroutine may call ProcessTick and Reset.
// Ticks must arrive in non-decreasing time order; this is not checked.
type Engine struct {
	instrument string
	params     Params

	ind *indicator.Engine
	det *divergence.Detector

	prices  *ringbuf.Ring[float64]
	highs   *ringbuf.Ring[float64]
	lows    *ringbuf.Ring[float64]
	closes  *ringbuf.Ring[float64]
	history *ringbuf.Ring[model.IndicatorSnapshot]

	// per-tick scratch
	pw, hw, lw, cw []float64
	hs             []model.IndicatorSnapshot

	lastCandidates []divergence.Candidate
}

// NewEngine creates an engine for instrument. p is assumed valid.
func NewEngine(instrument string, p Params) *Engine {
	n := p.Divergence.MaxHistory
	return &Engine{
		instrument: instrument,
		params:     p,
		ind:        indicator.NewEngine(p.Indicator),
		det:        divergence.NewDetector(p.Divergence),
		prices:     ringbuf.New[float64](n),
		highs:      ringbuf.New[float64](n),
		lows:       ringbuf.New[float64](n),
		closes:     ringbuf.New[float64](n),
		history:    ringbuf.New[model.IndicatorSnapshot](p.SnapshotHistory),
		pw:         make([]float64, 0, n),
		hw:         make([]float64, 0, n),
		lw:         make([]float64, 0, n),
		cw:         make([]float64, 0, n),
		hs:         make([]model.IndicatorSnapshot, 0, p.SnapshotHistory),
	}
}

// Instrument returns the instrument this engine tracks.
func (e *Engine) Instrument() string { return e.instrument }

// ProcessTick folds one tick into the histories and classifies the result.
//
// It returns a HOLD signal when no strong divergence is confirmed, a BUY or
// SELL signal with a stop-loss/take-profit bracket when one is, and nil when
// a confirmed divergence scores below MinConfidence. nil means no message at
// all for this tick and must not be treated as HOLD.
func (e *Engine) ProcessTick(tick model.Tick, ohlc *Window) *model.TradingSignal {
	p := e.params
	price := tick.Price

	e.prices.Push(price)
	e.highs.Push(tick.HighOrPrice())
	e.lows.Push(tick.LowOrPrice())
	e.closes.Push(tick.CloseOrPrice())

	snap := e.ind.Compute(e.input(ohlc))
	e.history.Push(snap)

	e.det.AddSample(price, snap)
	e.lastCandidates = e.det.Detect()

	primary, ok := strongest(e.lastCandidates, p.StrongStrength)
	if !ok {
		return e.hold(tick, snap, ReasonMixed)
	}

	e.hs = e.history.AppendTo(e.hs[:0])
	out := confirm.Evaluate(snap, e.hs, confirm.ForKind(primary.Kind))
	if out.Count < p.MinConfirmations {
		return e.hold(tick, snap, fmt.Sprintf("%s divergence detected but insufficient confirmation (%d/%d)",
			primary.Kind.Title(), out.Count, p.MinConfirmations))
	}

	confidence := math.Min(p.BaseConfidence+out.Score*p.ScoreWeight+primary.Strength*p.StrengthWeight, p.MaxConfidence)
	if confidence < p.MinConfidence {
		return nil
	}

	sig := e.base(tick, snap)
	sig.Confidence = confidence
	sig.Reason = fmt.Sprintf("%s + %s (%d/%d)",
		primary.Description, strings.Join(out.Reasons, ", "), out.Count, p.MinConfirmations)

	var stop, target float64
	if primary.Kind == model.Bullish {
		sig.Kind = model.SignalBuy
		stop = price * (1 - p.StopLossPct/100)
		target = price * (1 + p.TakeProfitPct/100)
		sig.ExpectedMovePct = p.ExpectedMovePct
	} else {
		sig.Kind = model.SignalSell
		stop = price * (1 + p.StopLossPct/100)
		target = price * (1 - p.TakeProfitPct/100)
		sig.ExpectedMovePct = -p.ExpectedMovePct
	}
	sig.StopLoss = &stop
	sig.TakeProfit = &target
	return sig
}

// LastCandidates returns the candidates found by the most recent ProcessTick.
// The slice is owned by the engine and replaced on the next call.
func (e *Engine) LastCandidates() []divergence.Candidate { return e.lastCandidates }

// Evicted returns how many prices have aged out of the history window since
// the engine was created.
func (e *Engine) Evicted() uint64 { return e.prices.Evicted() }

// Len returns the number of snapshots in the history.
func (e *Engine) Len() int { return e.history.Len() }

// Reset clears every history, as at a session boundary.
func (e *Engine) Reset() {
	e.prices.Reset()
	e.highs.Reset()
	e.lows.Reset()
	e.closes.Reset()
	e.history.Reset()
	e.det.Reset()
	e.lastCandidates = nil
}

func (e *Engine) input(ohlc *Window) indicator.Input {
	e.pw = e.prices.AppendTo(e.pw[:0])
	in := indicator.Input{Prices: e.pw}

	if ohlc != nil && ohlc.Highs != nil {
		in.Highs = ohlc.Highs
	} else {
		e.hw = e.highs.AppendTo(e.hw[:0])
		in.Highs = e.hw
	}
	if ohlc != nil && ohlc.Lows != nil {
		in.Lows = ohlc.Lows
	} else {
		e.lw = e.lows.AppendTo(e.lw[:0])
		in.Lows = e.lw
	}
	if ohlc != nil && ohlc.Closes != nil {
		in.Closes = ohlc.Closes
	} else {
		e.cw = e.closes.AppendTo(e.cw[:0])
		in.Closes = e.cw
	}
	return in
}

func (e *Engine) base(tick model.Tick, snap model.IndicatorSnapshot) *model.TradingSignal {
	return &model.TradingSignal{
		Instrument:     e.instrument,
		Timeframe:      e.params.Timeframe,
		EntryPrice:     tick.Price,
		HorizonMinutes: e.params.HorizonMinutes,
		Indicators:     snap,
		TS:             tick.TS,
	}
}

func (e *Engine) hold(tick model.Tick, snap model.IndicatorSnapshot, reason string) *model.TradingSignal {
	sig := e.base(tick, snap)
	sig.Kind = model.SignalHold
	sig.Confidence = e.params.HoldConfidence
	sig.Reason = reason
	return sig
}

// strongest returns the candidate with the highest strength above threshold.
// Ties keep the earliest candidate.
func strongest(cands []divergence.Candidate, threshold float64) (divergence.Candidate, bool) {
	var best divergence.Candidate
	found := false
	for _, c := range cands {
		if c.Strength <= threshold {
			continue
		}
		if !found || c.Strength > best.Strength {
			best = c
			found = true
		}
	}
	return best, found
}
