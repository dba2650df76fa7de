package signal

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signal-systemv1/internal/divergence"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
)

// Observer receives per-tick events from a Router. Implementations must be
// safe for concurrent use: every instrument shard calls it from its own
// goroutine.
type Observer interface {
	TickProcessed(instrument string, elapsed time.Duration)
	CandidatesDetected(instrument string, cands []divergence.Candidate)
	SignalEmitted(sig *model.TradingSignal)
	SignalSuppressed(instrument string)
	SignalDropped(sig *model.TradingSignal)
	InstrumentsActive(n int)
	HistoryEvicted(instrument string, n uint64)
}

type nopObserver struct{}

func (nopObserver) TickProcessed(string, time.Duration) {}
func (nopObserver) CandidatesDetected(string, []divergence.Candidate) {}
func (nopObserver) SignalEmitted(*model.TradingSignal) {}
func (nopObserver) SignalSuppressed(string) {}
func (nopObserver) SignalDropped(*model.TradingSignal) {}
func (nopObserver) InstrumentsActive(int) {}
func (nopObserver) HistoryEvicted(string, uint64) {}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBlockingOutput makes shards wait for the consumer instead of dropping
// signals when the output channel is full. Replays use it so every tick
// yields its signal.
func WithBlockingOutput() RouterOption {
	return func(r *Router) { r.block = true }
}

// shardMsg is either a tick or a reset request for one instrument.
type shardMsg struct {
	tick  model.Tick
	reset bool
}

// shard owns one Engine. Only its goroutine touches the engine.
type shard struct {
	eng     *Engine
	in      chan shardMsg
	evicted uint64 // engine evictions already reported
}

// Router fans ticks out to one Engine per instrument. Each engine lives on
// its own goroutine, so instruments are processed in parallel without
// sharing state. The shard map is guarded by a mutex taken only on lookup,
// registration and reset.
type Router struct {
	params  Params
	bufSize int
	obs     Observer
	block   bool

	mu     sync.RWMutex
	shards map[string]*shard
	closed bool

	out  chan model.TradingSignal
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewRouter creates a router. bufSize sizes every per-instrument input
// channel and the output channel. obs may be nil. By default a full output
// drops signals; see WithBlockingOutput.
func NewRouter(p Params, bufSize int, obs Observer, opts ...RouterOption) *Router {
	if obs == nil {
		obs = nopObserver{}
	}
	if bufSize < 1 {
		bufSize = 1
	}
	r := &Router{
		params:  p,
		bufSize: bufSize,
		obs:     obs,
		shards:  make(map[string]*shard),
		out:     make(chan model.TradingSignal, bufSize),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Signals returns the output channel. It is closed when Run returns.
func (r *Router) Signals() <-chan model.TradingSignal {
	return r.out
}

// Register starts a shard for instrument. Registering twice is a no-op.
func (r *Router) Register(instrument string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(instrument)
}

func (r *Router) registerLocked(instrument string) *shard {
	if s, ok := r.shards[instrument]; ok || r.closed {
		return s
	}
	s := &shard{
		eng: NewEngine(instrument, r.params),
		in:  make(chan shardMsg, r.bufSize),
	}
	r.shards[instrument] = s
	r.wg.Add(1)
	go r.runShard(s)

	slog.Info("[router] instrument registered", "instrument", instrument)
	r.obs.InstrumentsActive(len(r.shards))
	return s
}

// Instruments returns the registered instruments, sorted.
func (r *Router) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.shards))
	for k := range r.shards {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset clears the histories of one instrument. The reset is applied on the
// shard goroutine after any ticks already queued. Returns false when the
// instrument is unknown or the router has stopped.
func (r *Router) Reset(instrument string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shards[instrument]
	if !ok || r.closed {
		return false
	}
	return r.send(s, shardMsg{reset: true})
}

// ResetAll resets every registered instrument.
func (r *Router) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, s := range r.shards {
		r.send(s, shardMsg{reset: true})
	}
	slog.Info("[router] all instruments reset", "count", len(r.shards))
}

// Run routes ticks to their instrument shard, registering unknown
// instruments on first sight. Blocks until ctx is cancelled or ticks is
// closed. When ticks closes, queued ticks are drained before Run returns;
// on cancellation they are discarded. Signals() is closed on return.
func (r *Router) Run(ctx context.Context, ticks <-chan model.Tick) {
	drain := false
	defer func() { r.stop(drain) }()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				drain = true
				return
			}
			s := r.shardFor(t.Instrument)
			if s == nil {
				return
			}
			select {
			case s.in <- shardMsg{tick: t}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Router) shardFor(instrument string) *shard {
	r.mu.RLock()
	s, ok := r.shards[instrument]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(instrument)
}

// send delivers m unless the router stops first. Caller holds r.mu.
func (r *Router) send(s *shard, m shardMsg) bool {
	select {
	case s.in <- m:
		return true
	case <-r.done:
		return false
	}
}

// stop shuts every shard down. With drain set, shards finish their queued
// ticks first.
func (r *Router) stop(drain bool) {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		if drain {
			for _, s := range r.shards {
				close(s.in)
			}
		} else {
			close(r.done)
		}
		r.mu.Unlock()

		r.wg.Wait()
		if drain {
			close(r.done)
		}
		close(r.out)
	})
}

func (r *Router) runShard(s *shard) {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case m, ok := <-s.in:
			if !ok {
				return
			}
			if m.reset {
				s.eng.Reset()
				continue
			}
			r.process(s, m.tick)
		}
	}
}

func (r *Router) process(s *shard, t model.Tick) {
	eng := s.eng
	start := time.Now()
	sig := eng.ProcessTick(t, nil)
	r.obs.TickProcessed(t.Instrument, time.Since(start))

	if ev := eng.Evicted(); ev > s.evicted {
		r.obs.HistoryEvicted(t.Instrument, ev-s.evicted)
		s.evicted = ev
	}
	if cands := eng.LastCandidates(); len(cands) > 0 {
		r.obs.CandidatesDetected(t.Instrument, cands)
	}
	if sig == nil {
		r.obs.SignalSuppressed(t.Instrument)
		return
	}
	r.obs.SignalEmitted(sig)

	if r.block {
		select {
		case r.out <- *sig:
		case <-r.done:
		}
		return
	}

	select {
	case r.out <- *sig:
	default:
		r.obs.SignalDropped(sig)
		ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(t.Instrument, t.TS))
		slog.Warn("[router] output channel full, dropping signal",
			append([]any{"instrument", sig.Instrument, "kind", sig.Kind}, logger.LogWithTrace(ctx)...)...)
	}
}
