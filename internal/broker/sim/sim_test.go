package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"mytradingsignal/internal/ticks"
	"mytradingsignal/internal/types"
)

func newSim(fail bool) *Upstream {
	return New(Params{
		Instruments:   []types.Instrument{{Symbol: "NIFTY 50", Token: 256265}, {Symbol: "NIFTY BANK", Token: 260105}},
		BasePrice:     22000,
		Step:          5 * time.Millisecond,
		Volatility:    0.001,
		VolumeMin:     10,
		VolumeMax:     50,
		Seed:          42,
		FailHandshake: fail,
	})
}

func TestPollProducesNormalizableTicks(t *testing.T) {
	u := newSim(false)
	var lastVol int64
	for i := 0; i < 50; i++ {
		raws, err := u.Poll(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(raws) != 2 {
			t.Fatalf("got %d ticks, want 2", len(raws))
		}
		for _, r := range raws {
			if _, err := ticks.Normalize(r, time.Now()); err != nil {
				t.Fatalf("tick %d not normalizable: %v", i, err)
			}
		}
		if raws[0].Volume <= lastVol {
			t.Fatalf("cumulative volume went from %d to %d", lastVol, raws[0].Volume)
		}
		lastVol = raws[0].Volume
	}
}

func TestStreamEmitsConnectedThenTicks(t *testing.T) {
	u := newSim(false)
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan types.StreamEvent, 16)
	done := make(chan error, 1)
	go func() { done <- u.Stream(ctx, events) }()

	if ev := <-events; ev.Kind != types.EventConnected {
		t.Fatalf("first event %s, want connected", ev.Kind)
	}
	if ev := <-events; ev.Kind != types.EventTick {
		t.Fatalf("second event %s, want tick", ev.Kind)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Stream returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stream did not stop on cancel")
	}
}

func TestFailHandshakeIsAuthError(t *testing.T) {
	u := newSim(true)
	err := u.Stream(context.Background(), make(chan types.StreamEvent, 1))
	if types.Classify(err) != types.ClassAuth {
		t.Fatalf("classified %v as %s", err, types.Classify(err))
	}
	if err := u.CheckCredential(context.Background()); err != nil {
		t.Errorf("credential rejected: %v", err)
	}
}
