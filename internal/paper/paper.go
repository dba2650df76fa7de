// Package paper simulates the outcome of trading signals against later
// ticks. Each BUY or SELL opens a paper position at its entry price (plus
// slippage) that closes when price touches the stop or target, or when the
// signal's horizon elapses.
package paper

import (
	"fmt"
	"log"
	"sort"
	"time"

	"signal-systemv1/internal/model"
)

// Outcome is how a paper trade ended.
type Outcome string

const (
	OutcomeTarget  Outcome = "TARGET"
	OutcomeStop    Outcome = "STOP"
	OutcomeExpired Outcome = "EXPIRED"
	OutcomeOpen    Outcome = "OPEN" // still open when the data ran out
)

// Trade is one simulated position.
type Trade struct {
	ID        string              `json:"id"`
	Signal    model.TradingSignal `json:"signal"`
	FillPrice float64             `json:"fill_price"`
	Slippage  float64             `json:"slippage"`
	ExitPrice float64             `json:"exit_price"`
	ExitTS    time.Time           `json:"exit_ts"`
	Outcome   Outcome             `json:"outcome"`
	ReturnPct float64             `json:"return_pct"` // signed, positive is profit
}

func (t *Trade) long() bool { return t.Signal.Kind == model.SignalBuy }

func (t *Trade) close(price float64, ts time.Time, o Outcome) {
	t.ExitPrice = price
	t.ExitTS = ts
	t.Outcome = o
	if t.FillPrice == 0 {
		return
	}
	move := (price - t.FillPrice) / t.FillPrice * 100
	if !t.long() {
		move = -move
	}
	t.ReturnPct = move
}

// Book holds open paper positions and the trades already closed. It is not
// safe for concurrent use.
type Book struct {
	slippageBps float64
	seq         int

	open   map[string][]*Trade // by instrument
	closed []Trade
	last   map[string]model.Tick
}

// NewBook creates a Book. slippageBps worsens every fill by that many basis
// points (5 = 0.05%).
func NewBook(slippageBps float64) *Book {
	return &Book{
		slippageBps: slippageBps,
		open:        make(map[string][]*Trade),
		last:        make(map[string]model.Tick),
	}
}

// Open starts a position for an actionable, bracketed signal. HOLD and
// signals without a stop and target are ignored.
func (b *Book) Open(sig model.TradingSignal) bool {
	if !sig.Kind.Actionable() || sig.StopLoss == nil || sig.TakeProfit == nil || sig.EntryPrice <= 0 {
		return false
	}
	b.seq++
	slip := sig.EntryPrice * b.slippageBps / 10000
	fill := sig.EntryPrice + slip // buy higher
	if sig.Kind == model.SignalSell {
		fill = sig.EntryPrice - slip // sell lower
	}

	t := &Trade{
		ID:        fmt.Sprintf("PAPER-%d", b.seq),
		Signal:    sig,
		FillPrice: fill,
		Slippage:  slip,
	}
	b.open[sig.Instrument] = append(b.open[sig.Instrument], t)
	return true
}

// OnTick checks the instrument's open positions against t and returns the
// trades it closed. A position is only tested by ticks after its signal.
// When a tick spans both stop and target the stop wins.
func (b *Book) OnTick(t model.Tick) []Trade {
	b.last[t.Instrument] = t
	positions := b.open[t.Instrument]
	if len(positions) == 0 {
		return nil
	}

	hi, lo, px := t.HighOrPrice(), t.LowOrPrice(), t.CloseOrPrice()
	var closed []Trade
	kept := positions[:0]
	for _, p := range positions {
		if !t.TS.After(p.Signal.TS) {
			kept = append(kept, p)
			continue
		}
		stop, target := *p.Signal.StopLoss, *p.Signal.TakeProfit
		expiry := p.Signal.TS.Add(time.Duration(p.Signal.HorizonMinutes) * time.Minute)

		switch {
		case p.long() && lo <= stop, !p.long() && hi >= stop:
			p.close(stop, t.TS, OutcomeStop)
		case p.long() && hi >= target, !p.long() && lo <= target:
			p.close(target, t.TS, OutcomeTarget)
		case p.Signal.HorizonMinutes > 0 && !t.TS.Before(expiry):
			p.close(px, t.TS, OutcomeExpired)
		default:
			kept = append(kept, p)
			continue
		}
		closed = append(closed, *p)
	}
	b.open[t.Instrument] = kept
	b.closed = append(b.closed, closed...)
	return closed
}

// Finish marks every remaining position OPEN at the last seen price and
// returns all trades in open order.
func (b *Book) Finish() []Trade {
	for inst, positions := range b.open {
		for _, p := range positions {
			last, ok := b.last[inst]
			price, ts := p.FillPrice, p.Signal.TS
			if ok {
				price, ts = last.CloseOrPrice(), last.TS
			}
			p.close(price, ts, OutcomeOpen)
			b.closed = append(b.closed, *p)
		}
		delete(b.open, inst)
	}
	out := make([]Trade, len(b.closed))
	copy(out, b.closed)
	sort.SliceStable(out, func(i, j int) bool { return tradeSeq(out[i].ID) < tradeSeq(out[j].ID) })
	return out
}

func tradeSeq(id string) int {
	var n int
	fmt.Sscanf(id, "PAPER-%d", &n)
	return n
}

// OpenCount returns the number of open positions.
func (b *Book) OpenCount() int {
	n := 0
	for _, positions := range b.open {
		n += len(positions)
	}
	return n
}

// Evaluate replays ticks (timestamp ordered) against sigs and returns every
// trade. Signals open after the tick with the same timestamp is processed.
func Evaluate(ticks []model.Tick, sigs []model.TradingSignal, slippageBps float64) []Trade {
	ordered := make([]model.TradingSignal, len(sigs))
	copy(ordered, sigs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TS.Before(ordered[j].TS) })

	b := NewBook(slippageBps)
	next := 0
	for _, t := range ticks {
		b.OnTick(t)
		for next < len(ordered) && !ordered[next].TS.After(t.TS) {
			b.Open(ordered[next])
			next++
		}
	}
	for ; next < len(ordered); next++ {
		b.Open(ordered[next])
	}

	trades := b.Finish()
	log.Printf("[paper] evaluated %d signals into %d trades", len(sigs), len(trades))
	return trades
}
