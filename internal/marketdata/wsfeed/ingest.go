// Package wsfeed provides a WebSocket ingest client that connects to a JSON
// tick server (e.g. cmd/tickserver) and feeds ticks into the signal router.
//
// The expected JSON message format on the wire is identical to model.Tick:
//
//	{"instrument":"EURUSD","price":1.0842,"high":1.0845,"low":1.0839,"ts":"..."}
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WS ingest.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// Instruments, when non-empty, restricts which ticks are forwarded.
	Instruments []string
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a plain-JSON WebSocket tick server and pushes model.Tick
// values into tickCh.
type Ingest struct {
	cfg   Config
	allow map[string]bool

	// Optional hooks.
	OnReconnect func()
	OnConnect   func(connected bool)
	OnDrop      func(instrument string)
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsfeed: unsupported scheme %q", u.Scheme)
	}
	ing := &Ingest{cfg: cfg}
	if len(cfg.Instruments) > 0 {
		ing.allow = make(map[string]bool, len(cfg.Instruments))
		for _, inst := range cfg.Instruments {
			ing.allow[inst] = true
		}
	}
	return ing, nil
}

// Start connects to the WebSocket and streams ticks into tickCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := ing.runOnce(ctx, tickCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", ing.cfg.URL)
	ing.setConnected(true)
	defer ing.setConnected(false)

	// Close the connection when ctx is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		tick, ok := ing.decode(raw)
		if !ok {
			continue
		}

		select {
		case tickCh <- tick:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop(tick.Instrument)
			} else {
				log.Println("[wsfeed] tickCh full, dropping tick")
			}
		}
	}
}

func (ing *Ingest) decode(raw []byte) (model.Tick, bool) {
	var tick model.Tick
	if err := json.Unmarshal(raw, &tick); err != nil {
		log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
		return tick, false
	}
	if tick.Instrument == "" || tick.Price <= 0 {
		return tick, false
	}
	if ing.allow != nil && !ing.allow[tick.Instrument] {
		return tick, false
	}
	if tick.TS.IsZero() {
		tick.TS = time.Now().UTC()
	}
	return tick, true
}

func (ing *Ingest) setConnected(v bool) {
	if ing.OnConnect != nil {
		ing.OnConnect(v)
	}
}
