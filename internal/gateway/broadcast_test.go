package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func parseEnvelope(t *testing.T, buf []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	return env
}

func sig(inst string, kind model.SignalKind, ts time.Time) model.TradingSignal {
	return model.TradingSignal{
		Instrument: inst, Timeframe: "1m", Kind: kind,
		Confidence: 0.7, Reason: "test", EntryPrice: 1.1, TS: ts,
	}
}

// TestBroadcastEnvelopeFormat verifies the hand-crafted JSON envelope.
func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "pub:signal:EURUSD"
	data := []byte(`{"instrument":"EURUSD","kind":"BUY","nested":{"a":[1,2]}}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	env := parseEnvelope(t, buildEnvelope(channel, data, now, 42, 7))

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("seq: got %d/%d, want 42/7", env.Seq, env.ChannelSeq)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if payload["kind"] != "BUY" {
		t.Errorf("data kind: got %v", payload["kind"])
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Fatalf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

// TestBroadcaster_PerChannelSeq verifies per-channel seqs advance
// independently while the global seq counts every broadcast.
func TestBroadcaster_PerChannelSeq(t *testing.T) {
	h := NewHub()
	now := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	h.Broadcaster.Now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		h.Publish(sig("EURUSD", model.SignalHold, now))
	}
	for i := 0; i < 2; i++ {
		h.Publish(sig("GBPUSD", model.SignalBuy, now))
	}

	if got := h.GetChannelSeq("pub:signal:EURUSD"); got != 3 {
		t.Errorf("EURUSD channel seq: got %d, want 3", got)
	}
	if got := h.GetChannelSeq("pub:signal:GBPUSD"); got != 2 {
		t.Errorf("GBPUSD channel seq: got %d, want 2", got)
	}

	msgs := h.GetReplayRange("pub:signal:GBPUSD", 1, 2)
	if len(msgs) != 2 {
		t.Fatalf("replay range: got %d, want 2", len(msgs))
	}
	last := parseEnvelope(t, msgs[1])
	if last.ChannelSeq != 2 || last.Seq != 5 {
		t.Errorf("last GBPUSD envelope: channel_seq=%d seq=%d, want 2/5", last.ChannelSeq, last.Seq)
	}
}

func TestHub_LatestSignals(t *testing.T) {
	h := NewHub()
	now := time.Now().UTC()
	h.Publish(sig("USDJPY", model.SignalHold, now))
	h.Publish(sig("EURUSD", model.SignalHold, now))
	h.Publish(sig("EURUSD", model.SignalBuy, now))

	all := h.LatestSignals("")
	if len(all) != 2 || all[0].Instrument != "EURUSD" || all[1].Instrument != "USDJPY" {
		t.Fatalf("unexpected latest: %+v", all)
	}
	if all[0].Kind != model.SignalBuy {
		t.Errorf("expected newest EURUSD signal, got %s", all[0].Kind)
	}
	if one := h.LatestSignals("USDJPY"); len(one) != 1 {
		t.Errorf("filtered latest: got %d", len(one))
	}
}

func TestBroadcaster_RecordsLatency(t *testing.T) {
	h := NewHub()
	ts := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	h.Broadcaster.Now = func() time.Time { return ts.Add(250 * time.Millisecond) }

	h.Publish(sig("EURUSD", model.SignalHold, ts))
	p50, _, _ := h.Latency.Percentiles()
	if p50 != 250 {
		t.Errorf("p50: got %f, want 250", p50)
	}

	// zero event time is not recorded
	h.Publish(sig("EURUSD", model.SignalHold, time.Time{}))
	if h.Latency.Count() != 1 {
		t.Errorf("count: got %d, want 1", h.Latency.Count())
	}
}

func TestInstrumentFromChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    string
		ok      bool
	}{
		{"pub:signal:EURUSD", "EURUSD", true},
		{"pub:signal:", "", false},
		{"pub:tick:EURUSD", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		got, ok := instrumentFromChannel(tt.channel)
		if got != tt.want || ok != tt.ok {
			t.Errorf("instrumentFromChannel(%q) = %q, %v", tt.channel, got, ok)
		}
	}
}

func TestNewSignalDTO_Rounds(t *testing.T) {
	stop, target := 1.0999999999, 1.10440000001
	s := sig("EURUSD", model.SignalBuy, time.Now())
	s.Confidence = 0.847812345
	s.StopLoss, s.TakeProfit = &stop, &target

	dto := NewSignalDTO("01ABC", s)
	if dto.Confidence.String() != "0.8478" {
		t.Errorf("confidence: got %s", dto.Confidence)
	}
	if dto.StopLoss.String() != "1.1" || dto.TakeProfit.String() != "1.1044" {
		t.Errorf("bracket: got %s / %s", dto.StopLoss, dto.TakeProfit)
	}

	hold := NewSignalDTO("", sig("EURUSD", model.SignalHold, time.Now()))
	b, _ := json.Marshal(hold)
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["stop_loss"]; ok {
		t.Error("HOLD DTO must omit stop_loss")
	}
	if _, ok := m["id"]; ok {
		t.Error("empty id must be omitted")
	}
}
