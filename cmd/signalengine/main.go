package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/signalsvc"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	_, closer := logger.Setup("signalengine", logger.Options{
		Level: logger.ParseLevel(cfg.LogLevel),
		File:  cfg.LogFile,
	})
	defer closer.Close()

	log.Printf("[signalengine] feed=%s instruments=%v timeframe=%s", cfg.FeedMode, cfg.ParseInstruments(), cfg.Timeframe)

	svc, err := signalsvc.New(cfg, nil)
	if err != nil {
		log.Fatalf("[signalengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[signalengine] fatal: %v", err)
	}
}
