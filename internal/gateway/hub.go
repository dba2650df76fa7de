// Package gateway fans trading signals out to WebSocket clients and serves
// the REST API for signal history and instrument control.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	replayPerChannel = 500
)

// Hub manages WebSocket clients and signal fan-out.
// It delegates envelope construction and filtered delivery to Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // by channel
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Signal time to broadcast time
	Latency *LatencyTracker

	// Calendar, when set, is reported in metrics broadcasts.
	Calendar *session.Calendar

	Broadcaster *Broadcaster
}

type latestEntry struct {
	Signal model.TradingSignal
	Data   json.RawMessage
	TS     time.Time
	Seq    int64 // per-channel seq for gap detection
}

// NewHub creates a new Hub for managing WS clients.
func NewHub() *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run broadcasts every signal read from in. Blocks until ctx is cancelled
// or in is closed.
func (h *Hub) Run(ctx context.Context, in <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			h.Publish(sig)
		}
	}
}

// Publish broadcasts one signal on its pub:signal channel.
func (h *Hub) Publish(sig model.TradingSignal) {
	h.Broadcaster.Broadcast(sig)
}

// HandleWSRequest registers an upgraded connection as a client. lastTS
// (RFC3339Nano) limits the initial state to newer signals.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client %s connected (%d total)", client.id, count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// LatestSignals returns the latest signal per instrument, sorted by
// instrument. An empty instrument returns all.
func (h *Hub) LatestSignals(instrument string) []model.TradingSignal {
	h.mu.RLock()
	out := make([]model.TradingSignal, 0, len(h.latest))
	for _, e := range h.latest {
		if instrument == "" || e.Signal.Instrument == instrument {
			out = append(out, e.Signal)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/signals/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMetricsBroadcast sends system metrics to all WS clients every interval.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			envelope, _ := json.Marshal(h.metricsMessage(start, time.Now()))
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) metricsMessage(start, now time.Time) map[string]interface{} {
	m := CollectMetrics(start)
	m.LatencyP50, m.LatencyP95, m.LatencyP99 = h.Latency.Percentiles()
	msg := map[string]interface{}{
		"type":    "metrics",
		"metrics": m,
	}
	if h.Calendar != nil {
		msg["sessionOpen"] = h.Calendar.IsOpen(now)
		msg["sessionStatus"] = h.Calendar.StatusString(now)
	}
	return msg
}
