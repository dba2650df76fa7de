package gateway

import (
	"sync"

	"signal-systemv1/internal/ringbuf"
)

// replayEntry holds a single broadcasted message for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent WS envelopes of one channel for
// client gap backfill. Safe for concurrent use.
type ReplayBuffer struct {
	mu  sync.RWMutex
	buf *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayPerChannel
	}
	return &ReplayBuffer{buf: ringbuf.New[replayEntry](capacity)}
}

// Push appends an envelope, evicting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.buf.Push(replayEntry{Seq: seq, Data: cp})
	rb.mu.Unlock()
}

// Range returns all entries with seq in [fromSeq, toSeq] (inclusive), in
// seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	for i := 0; i < rb.buf.Len(); i++ {
		e := rb.buf.At(i)
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.buf.Len()
}
