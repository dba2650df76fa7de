package gateway

import (
	"strconv"
	"time"

	"signal-systemv1/internal/model"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, Now: time.Now}
}

// Broadcast sends a signal to all subscribed clients.
// The envelope is hand-crafted around the pre-encoded signal and carries a
// global seq plus a per-channel seq for client-side gap detection.
func (b *Broadcaster) Broadcast(sig model.TradingSignal) {
	now := b.Now().UTC()
	channel := sig.PubSubChannel()
	data := sig.JSON()

	if !sig.TS.IsZero() {
		if d := now.Sub(sig.TS); d >= 0 {
			b.hub.Latency.Record(d)
		}
	}

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Signal: sig, Data: data, TS: now, Seq: channelSeq}

	b.hub.seq++
	seq := b.hub.seq

	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayPerChannel)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	// Fan out to subscribed clients
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.wants(sig.Instrument, sig.Kind) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// buildEnvelope renders {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":M}.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
