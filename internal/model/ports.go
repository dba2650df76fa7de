package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the signal pipeline from concrete transports and
// storage (Redis, SQLite, WebSocket). Each implementation satisfies one or more.

// TickSource produces ticks for the signal router.
type TickSource interface {
	// Start streams ticks into out. Blocks until ctx is cancelled.
	Start(ctx context.Context, out chan<- Tick) error
}

// SignalSink consumes emitted trading signals.
type SignalSink interface {
	// Run reads signals from in until ctx is cancelled or in is closed.
	Run(ctx context.Context, in <-chan TradingSignal)
}

// TickArchive persists raw ticks for later replay.
type TickArchive interface {
	RunTicks(ctx context.Context, in <-chan Tick)
	Close() error
}

// TickReader reads archived ticks back in timestamp order.
type TickReader interface {
	ReadTicks(ctx context.Context, instrument string, from, to time.Time) ([]Tick, error)
}
