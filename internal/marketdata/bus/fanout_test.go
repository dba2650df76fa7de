package bus

import (
	"context"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.TradingSignal](10)
	out1 := fo.Subscribe("sqlite")
	out2 := fo.Subscribe("gateway")

	input := make(chan model.TradingSignal, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.TradingSignal{Instrument: "EURUSD", Kind: model.SignalBuy}

	for i, out := range []<-chan model.TradingSignal{out1, out2} {
		select {
		case s := <-out:
			if s.Instrument != "EURUSD" {
				t.Errorf("out%d: expected EURUSD, got %s", i+1, s.Instrument)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for signal", i+1)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[int](1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	dropped := make(chan string, 10)
	fo.OnDrop = func(name string) { dropped <- name }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	input <- 1
	if v := <-fast; v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
	input <- 2
	if v := <-fast; v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	close(input)
	<-done

	select {
	case name := <-dropped:
		if name != "slow" {
			t.Errorf("expected drop for slow, got %s", name)
		}
	default:
		t.Fatal("expected a drop")
	}
}

func TestFanOut_ClosesOutputsOnInputClose(t *testing.T) {
	fo := New[int](4)
	out := fo.Subscribe("only")

	input := make(chan int, 1)
	input <- 7
	close(input)
	fo.Run(context.Background(), input)

	if v, ok := <-out; !ok || v != 7 {
		t.Fatalf("expected buffered 7, got %d ok=%v", v, ok)
	}
	if _, ok := <-out; ok {
		t.Fatal("expected output closed")
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New[int](4)
	fo.Subscribe("a")
	fo.Subscribe("b")

	stats := fo.ChannelStats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats, got %d", len(stats))
	}
	if stats[0].Name != "a" || stats[1].Cap != 4 || stats[1].Len != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
