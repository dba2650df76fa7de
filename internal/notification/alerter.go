package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"
)

// HighConfidence is the confidence at or above which alerts are CRITICAL.
const HighConfidence = 0.8

// Alerter turns actionable signals into alerts. HOLD signals are ignored.
type Alerter struct {
	n       Notifier
	timeout time.Duration

	// OnResult, when set, observes each delivery ("sent" or "failed").
	OnResult func(result string)
}

// NewAlerter wraps a Notifier. Each delivery gets its own timeout.
func NewAlerter(n Notifier, timeout time.Duration) *Alerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{n: n, timeout: timeout}
}

// Run reads signals until ctx is cancelled or in is closed.
func (a *Alerter) Run(ctx context.Context, in <-chan model.TradingSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			if !sig.Kind.Actionable() {
				continue
			}
			a.deliver(ctx, sig)
		}
	}
}

func (a *Alerter) deliver(ctx context.Context, sig model.TradingSignal) {
	sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result := "sent"
	if err := a.n.Send(sendCtx, AlertFor(sig)); err != nil {
		log.Printf("[alerter] %s %s: %v", sig.Kind, sig.Instrument, err)
		result = "failed"
	}
	if a.OnResult != nil {
		a.OnResult(result)
	}
}

// AlertFor formats a signal as an alert.
func AlertFor(sig model.TradingSignal) Alert {
	level := AlertWarning
	if sig.Confidence >= HighConfidence {
		level = AlertCritical
	}

	msg := fmt.Sprintf("%s @ %.5f (confidence %.2f)", sig.Reason, sig.EntryPrice, sig.Confidence)
	if sig.StopLoss != nil && sig.TakeProfit != nil {
		msg += fmt.Sprintf("\nstop %.5f, target %.5f, horizon %dm", *sig.StopLoss, *sig.TakeProfit, sig.HorizonMinutes)
	}

	s := sig
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s [%s]", sig.Kind, sig.Instrument, sig.Timeframe),
		Message: msg,
		Signal:  &s,
	}
}
