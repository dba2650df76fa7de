// cmd/tickserver is a demo tick source. It broadcasts simulated ticks over
// WebSocket and, when TICK_REDIS_ADDR is set, publishes them on pub:tick:*.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"instrument":"EURUSD","price":1.0842,"high":1.0845,"low":1.0839,"close":1.0842,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address (default ":9001")
//	TICK_INSTRUMENTS  comma-separated NAME[:PRICE] specs (default "EURUSD,GBPUSD,USDJPY")
//	TICK_INTERVAL_MS  broadcast interval in milliseconds (default 1000)
//	TICK_SEED         random seed (default: current time)
//	TICK_REDIS_ADDR   optional Redis address to publish to
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
	redisstore "signal-systemv1/internal/store/redis"
	"signal-systemv1/internal/tickgen"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Reader goroutine notices client close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}
}

// ─── Generator loop ──────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, h *hub, gen *tickgen.Generator, interval time.Duration, rw *redisstore.Writer) {
	ticks := make(chan model.Tick, 1024)
	go gen.Run(ctx, interval, ticks)

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticks:
			h.broadcast(t.JSON())
			if rw != nil {
				if err := rw.PublishTick(ctx, t); err != nil && ctx.Err() == nil {
					log.Printf("[tickserver] redis publish %s: %v", t.Instrument, err)
				}
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 1000)
	seed := int64(envIntOrDefault("TICK_SEED", int(time.Now().UnixNano())))

	specs, err := tickgen.ParseSpecs(envOrDefault("TICK_INSTRUMENTS", "EURUSD,GBPUSD,USDJPY"))
	if err != nil {
		log.Fatalf("[tickserver] %v", err)
	}
	if len(specs) == 0 {
		log.Fatalf("[tickserver] no instruments configured via TICK_INSTRUMENTS")
	}
	log.Printf("[tickserver] instruments: %+v", specs)
	log.Printf("[tickserver] broadcast interval: %dms, seed: %d", intervalMs, seed)

	var rw *redisstore.Writer
	if redisAddr := os.Getenv("TICK_REDIS_ADDR"); redisAddr != "" {
		rw, err = redisstore.New(redisstore.WriterConfig{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err != nil {
			log.Fatalf("[tickserver] redis: %v", err)
		}
		defer rw.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHub()
	gen := tickgen.New(specs, seed)
	go runGenerator(ctx, h, gen, time.Duration(intervalMs)*time.Millisecond, rw)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutCancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[tickserver] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
