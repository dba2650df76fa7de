package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// ~1 day of signals per instrument at one per minute
	signalStreamMaxLen = 1500
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes trading signals to Redis and republishes ticks.
type Writer struct {
	client *goredis.Client

	// OnWrite, when set, observes the latency of every pipeline.
	OnWrite func(d time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := newClient(cfg.Addr, cfg.Password, cfg.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

func newClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Run reads signals from in and writes them to Redis.
// Blocks until ctx is cancelled or in is closed.
func (w *Writer) Run(ctx context.Context, in <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			if err := w.WriteSignal(ctx, sig); err != nil {
				log.Printf("[redis] signal pipeline error for %s: %v", sig.Instrument, err)
			}
		}
	}
}

// WriteSignal performs the pipelined XADD + SET latest + PUBLISH for one signal.
func (w *Writer) WriteSignal(ctx context.Context, sig model.TradingSignal) error {
	jsonData := string(sig.JSON())
	start := time.Now()

	pipe := w.client.Pipeline()

	// XADD to the per-instrument signal stream
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: sig.StreamKey(),
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	// SET latest signal with TTL
	pipe.Set(ctx, LatestKey(sig.Instrument), jsonData, defaultLatestTTL)

	// PUBLISH for real-time subscribers
	pipe.Publish(ctx, sig.PubSubChannel(), jsonData)

	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return err
}

// PublishTick publishes a tick on its pub:tick channel.
func (w *Writer) PublishTick(ctx context.Context, t model.Tick) error {
	return w.client.Publish(ctx, t.PubSubChannel(), string(t.JSON())).Err()
}

// LatestKey returns the key holding the latest signal for an instrument.
func LatestKey(instrument string) string {
	return "signal:latest:" + instrument
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
