package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-systemv1/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func buySignal(conf float64) model.TradingSignal {
	stop, target := 99.8, 100.4
	return model.TradingSignal{
		Instrument: "EURUSD", Timeframe: "1m", Kind: model.SignalBuy,
		Confidence: conf, Reason: "Bullish RSI divergence", EntryPrice: 100,
		StopLoss: &stop, TakeProfit: &target, HorizonMinutes: 5,
	}
}

func TestAlertFor(t *testing.T) {
	a := AlertFor(buySignal(0.85))
	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "BUY EURUSD [1m]", a.Title)
	assert.Contains(t, a.Message, "stop 99.80000, target 100.40000, horizon 5m")
	require.NotNil(t, a.Signal)

	assert.Equal(t, AlertWarning, AlertFor(buySignal(0.65)).Level)
}

func TestAlerter_SkipsHold(t *testing.T) {
	rec := &recorder{}
	al := NewAlerter(rec, time.Second)
	var results []string
	al.OnResult = func(r string) { results = append(results, r) }

	in := make(chan model.TradingSignal, 3)
	in <- model.TradingSignal{Instrument: "EURUSD", Kind: model.SignalHold}
	in <- buySignal(0.7)
	close(in)
	al.Run(context.Background(), in)

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "BUY EURUSD [1m]", rec.alerts[0].Title)
	assert.Equal(t, []string{"sent"}, results)
}

func TestAlerter_ReportsFailures(t *testing.T) {
	rec := &recorder{err: errors.New("down")}
	al := NewAlerter(rec, time.Second)
	var results []string
	al.OnResult = func(r string) { results = append(results, r) }

	in := make(chan model.TradingSignal, 1)
	in <- buySignal(0.7)
	close(in)
	al.Run(context.Background(), in)

	assert.Equal(t, []string{"failed"}, results)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok, bad := &recorder{}, &recorder{err: errors.New("boom")}
	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, ok.alerts, 1)
	assert.Len(t, bad.alerts, 1)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), AlertFor(buySignal(0.9)))
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", got["level"])
	sig, ok := got["signal"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "BUY", sig["kind"])
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), AlertFor(buySignal(0.7))))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	text, _ := body["text"].(string)
	assert.True(t, strings.Contains(text, "📈"))
	assert.Contains(t, text, `BUY EURUSD \[1m\]`)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c`, escapeMarkdown("a_b.c"))
}
