package broadcast

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := NewFanOut(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	ev := model.Event{
		Type:   model.EventSignalOpened,
		Symbol: "frxEURUSD",
		Signal: &model.Signal{ID: "sig_frxEURUSD_H1_1", Symbol: "frxEURUSD"},
	}

	input <- ev
	time.Sleep(50 * time.Millisecond)

	for i, out := range []<-chan model.Event{out1, out2} {
		select {
		case got := <-out:
			if got.Type != model.EventSignalOpened || got.Symbol != "frxEURUSD" {
				t.Errorf("out%d: got %s/%s", i+1, got.Type, got.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for event", i+1)
		}
	}

	cancel()
}

func TestFanOut_DropsOnFullSubscriber(t *testing.T) {
	fo := NewFanOut(1)
	var drops atomic.Int64
	fo.OnDrop = func(int) { drops.Add(1) }

	slow := fo.Subscribe()
	_ = slow // never drained

	input := make(chan model.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- model.Event{Type: model.EventSignalClosed, Symbol: "frxEURUSD"}
	}

	deadline := time.After(time.Second)
	for drops.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("drops = %d, want 2 (buffer of 1, 3 events)", drops.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFanOut_ClosesOutputsOnCancel(t *testing.T) {
	fo := NewFanOut(1)
	out := fo.Subscribe()

	input := make(chan model.Event)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("output channel not closed after cancel")
	}
}
