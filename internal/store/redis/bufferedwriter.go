package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"signal-systemv1/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, signals are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.TradingSignal
	maxBuf int // max buffered signals before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.TradingSignal, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Run reads signals from in and writes each through the circuit breaker.
// Blocks until ctx is cancelled or in is closed.
func (bw *BufferedWriter) Run(ctx context.Context, in <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			if err := bw.WriteSignal(sig); err != nil {
				log.Printf("[buffered-writer] signal write error for %s: %v", sig.Instrument, err)
			}
		}
	}
}

// WriteSignal writes a signal through the circuit breaker.
// If the circuit is open, the write is buffered locally.
func (bw *BufferedWriter) WriteSignal(sig model.TradingSignal) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteSignal(bw.ctx, sig)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(sig)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(sig model.TradingSignal) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, sig)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered signals through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.TradingSignal, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, sig := range toFlush {
		if err := bw.writer.WriteSignal(bw.ctx, sig); err != nil {
			log.Printf("[buffered-writer] flush error for %s: %v", sig.Instrument, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d/%d buffered writes", flushed, len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Pending returns a copy of the buffered signals, oldest first.
func (bw *BufferedWriter) Pending() []model.TradingSignal {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return append([]model.TradingSignal(nil), bw.buffer...)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
