package signalsvc

import (
	"context"
	"log"
	"net/http"
	"time"

	"signal-systemv1/internal/gateway"
	"signal-systemv1/internal/session"
)

// startHTTP launches the gateway server: WebSocket signals plus REST.
func (svc *Service) startHTTP(ctx context.Context, start time.Time) {
	go svc.hub.StartMetricsBroadcast(ctx, start, 5*time.Second)

	deps := gateway.Deps{
		Hub:      svc.hub,
		Control:  svc.router,
		Calendar: svc.cal,
		Start:    start,
	}
	// A nil *Reader must not become a non-nil interface.
	if svc.sqlReader != nil {
		deps.Store = svc.sqlReader
	}

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, deps)
	svc.httpSrv = &http.Server{Addr: svc.cfg.GatewayAddr, Handler: mux}

	go func() {
		log.Printf("[signalsvc] gateway listening on %s (ws://localhost%s/ws)", svc.cfg.GatewayAddr, svc.cfg.GatewayAddr)
		if err := svc.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[signalsvc] gateway server error: %v", err)
		}
	}()
}

// startSession resets every instrument's history when the session opens.
func (svc *Service) startSession(ctx context.Context) {
	w := session.NewWatcher(svc.cal, time.Second)
	w.OnOpen = func(at time.Time) {
		log.Printf("[signalsvc] session open at %s, resetting %d instruments",
			at.Format(time.RFC3339), len(svc.router.Instruments()))
		svc.router.ResetAll()
		svc.prom.SessionState.Set(1)
		svc.prom.SessionTransitions.WithLabelValues("open").Inc()
		svc.health.SetSessionOpen(true)
	}
	w.OnClose = func(at time.Time) {
		log.Printf("[signalsvc] session closed at %s", at.Format(time.RFC3339))
		svc.prom.SessionState.Set(0)
		svc.prom.SessionTransitions.WithLabelValues("close").Inc()
		svc.health.SetSessionOpen(false)
	}
	go w.Run(ctx)
}
