package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal-systemv1/internal/divergence"
	"signal-systemv1/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	TicksTotal     prometheus.Counter
	FeedReconnects prometheus.Counter
	DroppedTicks   prometheus.Counter

	// Signal router
	TicksProcessed    *prometheus.CounterVec // labels: instrument
	ProcessDur        prometheus.Histogram
	SignalsTotal      *prometheus.CounterVec // labels: kind
	SuppressedTotal   prometheus.Counter
	CandidatesTotal   *prometheus.CounterVec // labels: indicator, kind
	SignalDrops       prometheus.Counter
	ActiveInstruments prometheus.Gauge
	HistoryEvictions  *prometheus.CounterVec // labels: instrument

	// Sinks
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	NotifyTotal     *prometheus.CounterVec // labels: result

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Tick timestamp to signal emit
	E2ELatency prometheus.Histogram

	// Trading session
	SessionState       prometheus.Gauge       // 0=closed, 1=open
	SessionTransitions *prometheus.CounterVec // labels: type=open|close
}

// NewMetrics creates all metrics and registers them on reg. A nil reg uses
// the Prometheus default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fastBuckets := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005}

	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_feed_reconnects_total",
			Help: "Total tick feed reconnection attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_dropped_ticks_total",
			Help: "Ticks dropped (malformed or channel full)",
		}),

		TicksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_ticks_processed_total",
			Help: "Ticks processed by the signal engine (by instrument)",
		}, []string{"instrument"}),
		ProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_process_duration_seconds",
			Help:    "Signal engine latency per tick",
			Buckets: fastBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Signals emitted (by kind)",
		}, []string{"kind"}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_signals_suppressed_total",
			Help: "Confirmed divergences suppressed below the minimum confidence",
		}),
		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_divergence_candidates_total",
			Help: "Divergence candidates detected (by indicator and kind)",
		}, []string{"indicator", "kind"}),
		SignalDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_signal_drops_total",
			Help: "Signals dropped because the router output was full",
		}),
		ActiveInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_active_instruments",
			Help: "Instruments with a running engine",
		}),
		HistoryEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_history_evictions_total",
			Help: "Prices aged out of the rolling window (by instrument)",
		}, []string{"instrument"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_notifications_total",
			Help: "Alert deliveries (by result)",
		}, []string{"result"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_fanout_drops_total",
			Help: "Signals dropped by FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalengine_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),

		E2ELatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_e2e_latency_seconds",
			Help:    "Latency from tick timestamp to signal emission",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_session_state",
			Help: "Trading session state (0=closed, 1=open)",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_session_transitions_total",
			Help: "Trading session transitions (open, close)",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.FeedReconnects,
		m.DroppedTicks,
		m.TicksProcessed,
		m.ProcessDur,
		m.SignalsTotal,
		m.SuppressedTotal,
		m.CandidatesTotal,
		m.SignalDrops,
		m.ActiveInstruments,
		m.HistoryEvictions,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.NotifyTotal,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.E2ELatency,
		m.SessionState,
		m.SessionTransitions,
	)

	return m
}

// ── signal.Observer ──

// TickProcessed records one engine invocation.
func (m *Metrics) TickProcessed(instrument string, elapsed time.Duration) {
	m.TicksProcessed.WithLabelValues(instrument).Inc()
	m.ProcessDur.Observe(elapsed.Seconds())
}

// CandidatesDetected counts divergence candidates by indicator and kind.
func (m *Metrics) CandidatesDetected(_ string, cands []divergence.Candidate) {
	for _, c := range cands {
		m.CandidatesTotal.WithLabelValues(string(c.Indicator), string(c.Kind)).Inc()
	}
}

// SignalEmitted counts emitted signals by kind.
func (m *Metrics) SignalEmitted(sig *model.TradingSignal) {
	m.SignalsTotal.WithLabelValues(string(sig.Kind)).Inc()
	if !sig.TS.IsZero() {
		m.E2ELatency.Observe(time.Since(sig.TS).Seconds())
	}
}

// SignalSuppressed counts suppressed signals.
func (m *Metrics) SignalSuppressed(string) { m.SuppressedTotal.Inc() }

// SignalDropped counts signals lost to a full router output.
func (m *Metrics) SignalDropped(*model.TradingSignal) { m.SignalDrops.Inc() }

// InstrumentsActive sets the active instrument gauge.
func (m *Metrics) InstrumentsActive(n int) { m.ActiveInstruments.Set(float64(n)) }

// HistoryEvicted counts prices pushed out of an engine's window.
func (m *Metrics) HistoryEvicted(instrument string, n uint64) {
	m.HistoryEvictions.WithLabelValues(instrument).Add(float64(n))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	SessionOpen    bool      `json:"session_open"`
	Instruments    []string  `json:"instruments"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionOpen(v bool) {
	h.mu.Lock()
	h.SessionOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstruments(in []string) {
	h.mu.Lock()
	h.Instruments = in
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastTickTime    string   `json:"last_tick_time"`
		TickAge         string   `json:"tick_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		SessionOpen     bool     `json:"session_open"`
		Instruments     []string `json:"instruments"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		SessionOpen:     h.SessionOpen,
		Instruments:     h.Instruments,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
