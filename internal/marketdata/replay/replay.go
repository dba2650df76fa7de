// Package replay provides a tick replayer that reads archived ticks and
// emits them at configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"time"

	"signal-systemv1/internal/model"
)

// maxGap caps the simulated sleep between two ticks.
const maxGap = 5 * time.Second

// Replayer reads archived ticks and replays them at a configurable speed
// multiplier.
type Replayer struct {
	reader model.TickReader
}

// New creates a Replayer backed by a tick reader (usually SQLite).
func New(reader model.TickReader) *Replayer {
	return &Replayer{reader: reader}
}

// Options selects what to replay and how fast.
type Options struct {
	Instrument string    // empty = all instruments
	From, To   time.Time // zero = unbounded
	// Speed controls the playback rate: 1.0 = real-time, 10.0 = 10x,
	// 0 = as fast as possible.
	Speed float64
}

// Run replays matching ticks into outCh in timestamp order and returns the
// number emitted. outCh is not closed.
func (r *Replayer) Run(ctx context.Context, opts Options, outCh chan<- model.Tick) (int, error) {
	ticks, err := r.reader.ReadTicks(ctx, opts.Instrument, opts.From, opts.To)
	if err != nil {
		return 0, err
	}

	if len(ticks) == 0 {
		log.Println("[replay] no ticks found")
		return 0, nil
	}

	log.Printf("[replay] loaded %d ticks, speed=%.1fx", len(ticks), opts.Speed)

	var prevTS time.Time
	emitted := 0

	for _, t := range ticks {
		// Simulate time gaps between ticks
		if opts.Speed > 0 && !prevTS.IsZero() {
			if gap := t.TS.Sub(prevTS); gap > 0 {
				scaledGap := time.Duration(float64(gap) / opts.Speed)
				if scaledGap > maxGap {
					scaledGap = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = t.TS

		select {
		case outCh <- t:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return emitted, ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return emitted, nil
}
