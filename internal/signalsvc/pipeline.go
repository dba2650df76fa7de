package signalsvc

import (
	"context"
	"log"
	"time"

	"signal-systemv1/internal/marketdata/bus"
	"signal-systemv1/internal/model"
	redisstore "signal-systemv1/internal/store/redis"
	"signal-systemv1/internal/tickgen"
)

// simFeed adapts the in-process tick generator to model.TickSource.
type simFeed struct {
	gen      *tickgen.Generator
	interval time.Duration
}

func (f *simFeed) Start(ctx context.Context, out chan<- model.Tick) error {
	log.Printf("[signalsvc] simulated feed: %v every %s", f.gen.Instruments(), f.interval)
	f.gen.Run(ctx, f.interval, out)
	return nil
}

// startPipeline launches the data path:
//
//	feed → meter → tick bus → router → signal bus → sqlite | redis | gateway | alerts
//	                        ↘ tick archive
func (svc *Service) startPipeline(ctx context.Context) (*bus.FanOut[model.Tick], *bus.FanOut[model.TradingSignal]) {
	rawCh := make(chan model.Tick, tickBufSize)
	meteredCh := make(chan model.Tick, tickBufSize)

	go func() {
		if err := svc.feed.Start(ctx, rawCh); err != nil && ctx.Err() == nil {
			log.Printf("[signalsvc] feed stopped: %v", err)
			svc.health.SetFeedConnected(false)
		}
	}()
	go svc.meterTicks(ctx, rawCh, meteredCh)

	// ---- Tick fan-out ----
	tickBus := bus.New[model.Tick](tickBufSize)
	tickBus.OnDrop = svc.countDrop
	routerIn := tickBus.Subscribe("router")
	if svc.sqlWriter != nil && svc.cfg.ArchiveTicks {
		archiveIn := tickBus.Subscribe("tick_archive")
		svc.goSink(func() { svc.sqlWriter.RunTicks(ctx, archiveIn) })
	}
	go tickBus.Run(ctx, meteredCh)
	go svc.router.Run(ctx, routerIn)

	// ---- Signal fan-out ----
	sigBus := bus.New[model.TradingSignal](signalBufSize)
	sigBus.OnDrop = svc.countDrop

	if svc.sqlWriter != nil {
		in := sigBus.Subscribe("sqlite")
		svc.goSink(func() { svc.sqlWriter.Run(ctx, in) })
	}
	if svc.redisWriter != nil {
		bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, svc.breaker, 10000)
		bw.OnBuffer = svc.prom.RedisBufferedWrites.Inc
		bw.OnFlush = func(n int) { log.Printf("[signalsvc] flushed %d buffered signals to redis", n) }
		in := sigBus.Subscribe("redis")
		svc.goSink(func() { bw.Run(ctx, in) })
	}
	gwIn := sigBus.Subscribe("gateway")
	svc.goSink(func() { svc.hub.Run(ctx, gwIn) })
	alertIn := sigBus.Subscribe("alerter")
	svc.goSink(func() { svc.alerter.Run(ctx, alertIn) })

	go sigBus.Run(ctx, svc.router.Signals())
	return tickBus, sigBus
}

func (svc *Service) goSink(fn func()) {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		fn()
	}()
}

func (svc *Service) countDrop(subscriber string) {
	svc.prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
}

// meterTicks counts ticks and tracks feed freshness before handing them on.
func (svc *Service) meterTicks(ctx context.Context, in <-chan model.Tick, out chan<- model.Tick) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-in:
			svc.prom.TicksTotal.Inc()
			svc.health.SetLastTickTime(t.TS)
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}
}

// saturationLoop publishes fan-out channel fill levels every 5 seconds.
func (svc *Service) saturationLoop(ctx context.Context, tickBus *bus.FanOut[model.Tick], sigBus *bus.FanOut[model.TradingSignal]) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := append(tickBus.ChannelStats(), sigBus.ChannelStats()...)
			for _, st := range stats {
				if st.Cap == 0 {
					continue
				}
				pct := float64(st.Len) / float64(st.Cap) * 100
				svc.prom.ChannelSaturationPct.WithLabelValues(st.Name).Set(pct)
				if pct > 80 {
					log.Printf("[signalsvc] WARNING: channel %s at %.0f%% capacity", st.Name, pct)
				}
			}
		}
	}
}
