package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"signal-systemv1/internal/session"
	sqlitestore "signal-systemv1/internal/store/sqlite"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SignalStore reads the persisted signal log.
type SignalStore interface {
	ReadRecentSignals(ctx context.Context, instrument string, limit int) ([]sqlitestore.SignalRecord, error)
}

// InstrumentControl lists and resets per-instrument engine state.
type InstrumentControl interface {
	Instruments() []string
	Reset(instrument string) bool
	ResetAll()
}

// Deps are the collaborators behind the REST routes. Store, Control and
// Calendar are optional; their routes answer 503 when unset.
type Deps struct {
	Hub      *Hub
	Store    SignalStore
	Control  InstrumentControl
	Calendar *session.Calendar
	Start    time.Time
}

const maxRecentLimit = 1000

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	hub := d.Hub

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	})

	// REST: latest signal per instrument
	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		sigs := hub.LatestSignals(r.URL.Query().Get("instrument"))
		out := make([]SignalDTO, len(sigs))
		for i, s := range sigs {
			out[i] = NewSignalDTO("", s)
		}
		writeJSON(w, http.StatusOK, out)
	})

	// REST: gap backfill from the replay buffer
	mux.HandleFunc("/api/signals/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		if _, ok := instrumentFromChannel(channel); !ok {
			writeError(w, http.StatusBadRequest, "channel must be pub:signal:{instrument}")
			return
		}
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if err1 != nil || err2 != nil || from > to {
			writeError(w, http.StatusBadRequest, "from and to must be integers with from <= to")
			return
		}

		envs := hub.GetReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"channel":     channel,
			"channel_seq": hub.GetChannelSeq(channel),
			"messages":    out,
		})
	})

	// REST: persisted signal history
	mux.HandleFunc("/api/signals/recent", func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "signal store not configured")
			return
		}
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= maxRecentLimit {
				limit = l
			}
		}
		recs, err := d.Store.ReadRecentSignals(r.Context(), r.URL.Query().Get("instrument"), limit)
		if err != nil {
			log.Printf("[gateway] recent signals: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to read signals")
			return
		}
		out := make([]SignalDTO, len(recs))
		for i, rec := range recs {
			out[i] = NewSignalDTO(rec.ID, rec.Signal)
		}
		writeJSON(w, http.StatusOK, out)
	})

	// REST: registered instruments
	mux.HandleFunc("/api/instruments", func(w http.ResponseWriter, r *http.Request) {
		if d.Control == nil {
			writeError(w, http.StatusServiceUnavailable, "instrument control not configured")
			return
		}
		writeJSON(w, http.StatusOK, InstrumentsResponse{Instruments: d.Control.Instruments()})
	})

	// REST: POST /api/instruments/reset?instrument= (empty resets all)
	mux.HandleFunc("/api/instruments/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			SetCORS(w)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		if d.Control == nil {
			writeError(w, http.StatusServiceUnavailable, "instrument control not configured")
			return
		}

		inst := r.URL.Query().Get("instrument")
		if inst == "" {
			d.Control.ResetAll()
			log.Println("[gateway] reset all instruments")
			writeJSON(w, http.StatusOK, ResetResponse{Status: "ok"})
			return
		}
		if !d.Control.Reset(inst) {
			writeError(w, http.StatusNotFound, "unknown instrument "+inst)
			return
		}
		log.Printf("[gateway] reset instrument %s", inst)
		writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", Instrument: inst})
	})

	// REST: system metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		m := CollectMetrics(d.Start)
		m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		writeJSON(w, http.StatusOK, m)
	})

	// REST: trading session status
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		if d.Calendar == nil {
			writeError(w, http.StatusServiceUnavailable, "session calendar not configured")
			return
		}
		now := time.Now()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"open":      d.Calendar.IsOpen(now),
			"status":    d.Calendar.StatusString(now),
			"next_open": d.Calendar.NextOpen(now).Format(time.RFC3339),
		})
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(d.Start).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
