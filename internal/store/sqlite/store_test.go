package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signal-systemv1/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signals.db")

	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

var t0 = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func TestTickArchiveRoundTrip(t *testing.T) {
	w, r := openPair(t)

	in := make(chan model.Tick, 8)
	in <- model.Tick{Instrument: "GBPUSD", Price: 1.27, TS: t0.Add(time.Second)}
	in <- model.Tick{Instrument: "EURUSD", Price: 1.08, High: 1.081, Low: 1.079, Close: 1.08, TS: t0}
	in <- model.Tick{Instrument: "EURUSD", Price: 1.09, TS: t0.Add(time.Second)}
	close(in)
	w.RunTicks(context.Background(), in)

	all, err := r.ReadTicks(context.Background(), "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "EURUSD", all[0].Instrument)
	assert.Equal(t, 1.081, all[0].High)
	assert.Equal(t, t0, all[0].TS)
	// same timestamp orders by instrument
	assert.Equal(t, "EURUSD", all[1].Instrument)
	assert.Equal(t, "GBPUSD", all[2].Instrument)
	assert.Zero(t, all[1].High)

	eur, err := r.ReadTicks(context.Background(), "EURUSD", t0.Add(time.Millisecond), time.Time{})
	require.NoError(t, err)
	require.Len(t, eur, 1)
	assert.Equal(t, 1.09, eur[0].Price)

	last, err := w.GetLastTickTime("EURUSD")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Second), last)

	none, err := w.GetLastTickTime("USDJPY")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestSignalLog(t *testing.T) {
	commits := 0
	path := filepath.Join(t.TempDir(), "signals.db")
	w, err := New(WriterConfig{DBPath: path, OnCommit: func(rows int, _ time.Duration) { commits += rows }})
	require.NoError(t, err)
	defer w.Close()
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	stop, target := 1.0978, 1.1044
	buy := model.TradingSignal{
		Instrument: "EURUSD", Timeframe: "1m", Kind: model.SignalBuy,
		Confidence: 0.82, Reason: "Bullish RSI divergence", EntryPrice: 1.1,
		StopLoss: &stop, TakeProfit: &target, HorizonMinutes: 5, ExpectedMovePct: 0.3,
		Indicators: model.IndicatorSnapshot{RSI: 41.5, ADX: 27},
		TS:         t0,
	}
	hold := model.TradingSignal{
		Instrument: "GBPUSD", Timeframe: "1m", Kind: model.SignalHold,
		Confidence: 0.45, Reason: "No divergence detected", EntryPrice: 1.27,
		TS: t0.Add(time.Minute),
	}

	in := make(chan model.TradingSignal, 2)
	in <- buy
	in <- hold
	close(in)
	w.Run(context.Background(), in)
	assert.Equal(t, 2, commits)

	recs, err := r.ReadRecentSignals(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// newest first
	assert.Equal(t, model.SignalHold, recs[0].Signal.Kind)
	assert.Nil(t, recs[0].Signal.StopLoss)
	assert.Nil(t, recs[0].Signal.TakeProfit)

	got := recs[1].Signal
	assert.Equal(t, model.SignalBuy, got.Kind)
	require.NotNil(t, got.StopLoss)
	require.NotNil(t, got.TakeProfit)
	assert.Equal(t, stop, *got.StopLoss)
	assert.Equal(t, target, *got.TakeProfit)
	assert.Equal(t, 41.5, got.Indicators.RSI)
	assert.Equal(t, t0, got.TS)
	assert.Len(t, recs[1].ID, 26)
	assert.Less(t, recs[1].ID, recs[0].ID)

	only, err := r.ReadRecentSignals(context.Background(), "EURUSD", 10)
	require.NoError(t, err)
	require.Len(t, only, 1)

	counts, err := r.CountSignals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.SignalKind]int{model.SignalBuy: 1, model.SignalHold: 1}, counts)
}

func TestRunFlushesOnCancel(t *testing.T) {
	w, r := openPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan model.TradingSignal, 1)
	done := make(chan struct{})
	go func() {
		w.Run(ctx, in)
		close(done)
	}()

	in <- model.TradingSignal{Instrument: "EURUSD", Kind: model.SignalHold, TS: t0}
	// timer flush
	require.Eventually(t, func() bool {
		recs, err := r.ReadRecentSignals(context.Background(), "", 10)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
