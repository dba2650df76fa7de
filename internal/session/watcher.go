package session

import (
	"context"
	"log"
	"time"
)

// Watcher polls a Calendar and reports open/close transitions.
type Watcher struct {
	cal      *Calendar
	interval time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	OnOpen  func(at time.Time)
	OnClose func(at time.Time)
}

// NewWatcher creates a Watcher polling every interval (default 1s).
func NewWatcher(cal *Calendar, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{cal: cal, interval: interval, Now: time.Now}
}

// Run polls until ctx is cancelled. The state at startup is reported as a
// transition only when the session is open, so a service started mid-session
// begins with fresh histories.
func (w *Watcher) Run(ctx context.Context) {
	open := false
	w.poll(&open)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(&open)
		}
	}
}

func (w *Watcher) poll(open *bool) {
	now := w.Now()
	isOpen := w.cal.IsOpen(now)
	if isOpen == *open {
		return
	}
	*open = isOpen

	if isOpen {
		log.Printf("[session] open at %s", now.In(w.cal.Loc).Format(time.RFC3339))
		if w.OnOpen != nil {
			w.OnOpen(now)
		}
		return
	}
	log.Printf("[session] closed at %s", now.In(w.cal.Loc).Format(time.RFC3339))
	if w.OnClose != nil {
		w.OnClose(now)
	}
}
