// Package tickgen simulates per-instrument price ticks for demos and tests.
//
// Each instrument follows a random walk with a slow sine drift so that price
// swings long enough for oscillator divergences appear regularly.
package tickgen

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

// defaultPrices are starting prices for common symbols.
var defaultPrices = map[string]float64{
	"EURUSD": 1.0850,
	"GBPUSD": 1.2650,
	"USDJPY": 151.20,
	"BTCUSD": 64000,
	"ETHUSD": 3200,
}

// Spec describes one simulated instrument.
type Spec struct {
	Instrument string
	Price      float64
}

// ParseSpecs parses "EURUSD,GBPUSD:1.27" into Specs. Instruments without an
// explicit price use a known default, or 100.
func ParseSpecs(s string) ([]Spec, error) {
	var out []Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, priceStr, hasPrice := strings.Cut(part, ":")
		spec := Spec{Instrument: strings.TrimSpace(name)}
		if hasPrice {
			p, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("tickgen: invalid price in %q", part)
			}
			spec.Price = p
		} else if p, ok := defaultPrices[spec.Instrument]; ok {
			spec.Price = p
		} else {
			spec.Price = 100
		}
		out = append(out, spec)
	}
	return out, nil
}

type walker struct {
	spec  Spec
	price float64
	phase float64
}

// Generator produces ticks for a fixed set of instruments. It is not safe
// for concurrent use.
type Generator struct {
	rng     *rand.Rand
	walkers []*walker

	// Volatility is the per-tick standard deviation as a fraction of price.
	Volatility float64
	// Cycle is the number of ticks in one drift period.
	Cycle int
}

// New creates a Generator seeded with seed. The same seed and specs always
// produce the same tick sequence.
func New(specs []Spec, seed int64) *Generator {
	g := &Generator{
		rng:        rand.New(rand.NewSource(seed)),
		Volatility: 0.0005,
		Cycle:      60,
	}
	for i, s := range specs {
		g.walkers = append(g.walkers, &walker{
			spec:  s,
			price: s.Price,
			phase: float64(i) * math.Pi / 3,
		})
	}
	return g
}

// Instruments returns the simulated instrument names.
func (g *Generator) Instruments() []string {
	out := make([]string, len(g.walkers))
	for i, w := range g.walkers {
		out[i] = w.spec.Instrument
	}
	return out
}

// Next advances every instrument one step and returns the ticks stamped ts.
func (g *Generator) Next(ts time.Time) []model.Tick {
	cycle := g.Cycle
	if cycle <= 0 {
		cycle = 60
	}
	ticks := make([]model.Tick, 0, len(g.walkers))
	for _, w := range g.walkers {
		w.phase += 2 * math.Pi / float64(cycle)
		drift := math.Sin(w.phase) * g.Volatility * 0.5
		shock := g.rng.NormFloat64() * g.Volatility

		open := w.price
		next := open * (1 + drift + shock)
		if floor := w.spec.Price * 0.01; next < floor {
			next = floor
		}
		wick := math.Abs(g.rng.NormFloat64()) * g.Volatility * 0.5 * open
		high := math.Max(open, next) + wick
		low := math.Min(open, next) - wick
		if low <= 0 {
			low = math.Min(open, next)
		}
		w.price = next

		ticks = append(ticks, model.Tick{
			Instrument: w.spec.Instrument,
			Price:      next,
			High:       high,
			Low:        low,
			Close:      next,
			TS:         ts.UTC(),
		})
	}
	return ticks
}

// Run emits a batch of ticks every interval until ctx is cancelled. Ticks
// are dropped when out is full.
func (g *Generator) Run(ctx context.Context, interval time.Duration, out chan<- model.Tick) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, t := range g.Next(now) {
				select {
				case out <- t:
				default:
				}
			}
		}
	}
}
