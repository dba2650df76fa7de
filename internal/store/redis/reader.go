package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// TickPattern is the PSUBSCRIBE pattern ticks are published on.
const TickPattern = "pub:tick:*"

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader consumes ticks from Redis Pub/Sub and reads back stored signals.
type Reader struct {
	client *goredis.Client

	// Instruments, when non-empty, restricts which ticks are forwarded.
	Instruments map[string]bool

	// OnDrop is called when a tick is dropped because out is full.
	OnDrop func(instrument string)
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := newClient(cfg.Addr, cfg.Password, cfg.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Start subscribes to pub:tick:* and feeds parsed ticks into out.
// Blocks until ctx is cancelled.
func (r *Reader) Start(ctx context.Context, out chan<- model.Tick) error {
	pubsub := r.client.PSubscribe(ctx, TickPattern)
	defer pubsub.Close()

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe %s: %w", TickPattern, err)
	}
	log.Printf("[redis-reader] subscribed to %s", TickPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			t, ok := r.parseTick(msg.Channel, msg.Payload)
			if !ok {
				continue
			}
			select {
			case out <- t:
			default:
				if r.OnDrop != nil {
					r.OnDrop(t.Instrument)
				}
			}
		}
	}
}

// parseTick decodes a tick payload. The instrument falls back to the
// channel suffix when the payload omits it.
func (r *Reader) parseTick(channel, payload string) (model.Tick, bool) {
	var t model.Tick
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		log.Printf("[redis-reader] unmarshal tick on %s: %v", channel, err)
		return t, false
	}
	if t.Instrument == "" {
		t.Instrument = strings.TrimPrefix(channel, "pub:tick:")
	}
	if t.Price <= 0 || t.Instrument == "" {
		return t, false
	}
	if len(r.Instruments) > 0 && !r.Instruments[t.Instrument] {
		return t, false
	}
	if t.TS.IsZero() {
		t.TS = time.Now().UTC()
	}
	return t, true
}

// ReadLatest loads the latest signal for an instrument.
// Returns nil if none is stored.
func (r *Reader) ReadLatest(ctx context.Context, instrument string) (*model.TradingSignal, error) {
	data, err := r.client.Get(ctx, LatestKey(instrument)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", LatestKey(instrument), err)
	}

	var sig model.TradingSignal
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	return &sig, nil
}

// ReadStream returns up to count of the most recent signals from an
// instrument's stream, oldest first.
func (r *Reader) ReadStream(ctx context.Context, instrument string, count int64) ([]model.TradingSignal, error) {
	stream := "signal:" + instrument
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}

	out := make([]model.TradingSignal, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var sig model.TradingSignal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
