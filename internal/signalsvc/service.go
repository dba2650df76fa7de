// Package signalsvc wires the signal engine together: tick feed, per-instrument
// router, signal sinks, gateway and session handling.
package signalsvc

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/marketdata/wsfeed"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/session"
	"signal-systemv1/internal/signal"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/tickgen"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	tickBufSize   = 10000
	signalBufSize = 1000
	simInterval   = time.Second
)

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg    *config.Config
	params signal.Params
	cal    *session.Calendar

	prom       *metrics.Metrics
	health     *metrics.HealthStatus
	metricsSrv *metrics.Server

	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker

	feed    model.TickSource
	router  *signal.Router
	hub     *gateway.Hub
	alerter *notification.Alerter
	httpSrv *http.Server

	wg sync.WaitGroup
}

// New creates a Service from cfg, registering metrics on reg (nil means the
// Prometheus default registerer). Redis and SQLite are optional: when they
// cannot be reached the service runs without that sink. The feed is required.
func New(cfg *config.Config, reg prometheus.Registerer) (*Service, error) {
	params, err := cfg.SignalParams()
	if err != nil {
		return nil, err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:    cfg,
		params: params,
		cal:    cal,
		prom:   metrics.NewMetrics(reg),
		health: metrics.NewHealthStatus(),
		hub:    gateway.NewHub(),
	}
	svc.hub.Calendar = cal
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.router = signal.NewRouter(params, signalBufSize, svc.prom)

	// ---- Open SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath: cfg.SQLitePath,
		OnCommit: func(_ int, d time.Duration) {
			svc.prom.SQLiteCommitDur.Observe(d.Seconds())
		},
	})
	if err != nil {
		log.Printf("[signalsvc] WARNING: sqlite writer init failed: %v (signals will not be persisted)", err)
	} else {
		svc.health.SetSQLiteOK(true)
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Printf("[signalsvc] WARNING: sqlite reader init failed: %v", err)
		}
	}

	// ---- Connect to Redis ----
	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[signalsvc] WARNING: redis writer init failed: %v (signals will not be published)", err)
	} else {
		svc.health.SetRedisConnected(true)
		svc.redisWriter.OnWrite = func(d time.Duration) {
			svc.prom.RedisWriteDur.Observe(d.Seconds())
		}
		svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
		svc.breaker.OnStateChange = func(from, to redisstore.State) {
			svc.prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				svc.prom.RedisCircuitBreakerTrips.Inc()
			}
			svc.health.SetRedisConnected(to == redisstore.StateClosed)
		}
	}

	// ---- Tick feed ----
	svc.feed, err = svc.newFeed()
	if err != nil {
		svc.closeStores()
		return nil, err
	}

	svc.alerter = svc.newAlerter()
	return svc, nil
}

func (svc *Service) newFeed() (model.TickSource, error) {
	cfg := svc.cfg
	switch cfg.FeedMode {
	case "redis":
		r, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis feed: %w", err)
		}
		r.OnDrop = func(string) { svc.prom.DroppedTicks.Inc() }
		svc.health.SetFeedConnected(true)
		return r, nil

	case "ws":
		ing, err := wsfeed.New(wsfeed.Config{URL: cfg.FeedURL})
		if err != nil {
			return nil, fmt.Errorf("ws feed: %w", err)
		}
		ing.OnConnect = svc.health.SetFeedConnected
		ing.OnReconnect = svc.prom.FeedReconnects.Inc
		ing.OnDrop = func(string) { svc.prom.DroppedTicks.Inc() }
		return ing, nil

	case "sim":
		specs, err := tickgen.ParseSpecs(cfg.Instruments)
		if err != nil {
			return nil, fmt.Errorf("sim feed: %w", err)
		}
		svc.health.SetFeedConnected(true)
		return &simFeed{gen: tickgen.New(specs, time.Now().UnixNano()), interval: simInterval}, nil
	}

	return nil, fmt.Errorf("unknown FEED_MODE %q (want redis, ws or sim)", cfg.FeedMode)
}

func (svc *Service) newAlerter() *notification.Alerter {
	cfg := svc.cfg
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	a := notification.NewAlerter(notifiers, 10*time.Second)
	a.OnResult = func(result string) { svc.prom.NotifyTotal.WithLabelValues(result).Inc() }
	return a
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	start := time.Now()
	log.Println("[signalsvc] starting Signal Engine...")

	svc.metricsSrv.Start()
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.sqlDB(), 10*time.Second)

	for _, inst := range cfg.ParseInstruments() {
		svc.router.Register(inst)
	}
	svc.health.SetInstruments(svc.router.Instruments())

	// ---- Start subsystems ----
	tickBus, sigBus := svc.startPipeline(ctx)
	svc.startSession(ctx)
	svc.startHTTP(ctx, start)
	go svc.saturationLoop(ctx, tickBus, sigBus)

	// ---- Startup banner ----
	log.Println("[signalsvc] ╔════════════════════════════════════════════════════════╗")
	log.Println("[signalsvc] ║  Divergence Signal Engine Active                      ║")
	log.Println("[signalsvc] ║                                                       ║")
	log.Println("[signalsvc] ║  [Ticks] → [Indicators] → [Divergence] → [Signals]    ║")
	log.Printf("[signalsvc] ║  Feed: %s  Timeframe: %s", cfg.FeedMode, svc.params.Timeframe)
	log.Printf("[signalsvc] ║  Instruments: %v", svc.router.Instruments())
	log.Printf("[signalsvc] ║  %s", svc.cal.StatusString(time.Now()))
	log.Println("[signalsvc] ╚════════════════════════════════════════════════════════╝")
	log.Println("[signalsvc] ✅ all systems running. Press Ctrl+C to stop.")

	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown stops the HTTP servers, waits for the sinks to flush and closes
// connections.
func (svc *Service) shutdown() {
	log.Println("[signalsvc] shutdown signal received, draining sinks...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if svc.httpSrv != nil {
		svc.httpSrv.Shutdown(shutCtx)
	}
	svc.metricsSrv.Stop(shutCtx)

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutCtx.Done():
		log.Println("[signalsvc] WARNING: sinks did not drain before timeout")
	}

	if c, ok := svc.feed.(interface{ Close() error }); ok {
		c.Close()
	}
	svc.closeStores()
	log.Println("[signalsvc] shutdown complete")
}

func (svc *Service) closeStores() {
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}
