package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"mytradingsignal/internal/store"
	"mytradingsignal/internal/types"
)

type recorder struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (r *recorder) Publish(msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) byType(kind string) []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Message
	for _, m := range r.msgs {
		if m.MessageType() == kind {
			out = append(out, m)
		}
	}
	return out
}

func newEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e, err := New(store.Default(), rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, rec
}

var base = time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC)

func raw(i int, price float64) types.RawTick {
	return types.RawTick{
		Token:     256265,
		Symbol:    "NIFTY 50",
		LastPrice: price,
		Open:      22000,
		High:      math.Max(22000, price),
		Low:       math.Min(22000, price),
		Volume:    int64(1000 + i*50),
		Timestamp: base.Add(time.Duration(i) * 20 * time.Second),
	}
}

func TestIngestPublishesTickSignalsAndOutlook(t *testing.T) {
	e, rec := newEngine(t)
	ctx := context.Background()

	if err := e.Ingest(ctx, raw(0, 22010)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	for _, kind := range []string{types.MsgTick, types.MsgSignalUpdate, types.MsgOutlookUpdate} {
		if got := len(rec.byType(kind)); got != 1 {
			t.Errorf("%s published %d times, want 1", kind, got)
		}
	}

	su := rec.byType(types.MsgSignalUpdate)[0].(types.SignalUpdateMessage)
	if len(su.Signals) != 14 {
		t.Errorf("signal update carries %d signals, want 14", len(su.Signals))
	}

	o, ok := e.Latest("NIFTY 50")
	if !ok {
		t.Fatal("no outlook stored")
	}
	if o.Total != 14 || o.Bullish+o.Bearish+o.NeutralCount != o.Total {
		t.Errorf("counts %d/%d/%d of %d", o.Bullish, o.Bearish, o.NeutralCount, o.Total)
	}
}

func TestIngestDropsMalformedTick(t *testing.T) {
	e, rec := newEngine(t)

	bad := raw(0, 22010)
	bad.LastPrice = math.NaN()
	err := e.Ingest(context.Background(), bad)
	if !errors.Is(err, types.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
	if len(rec.msgs) != 0 {
		t.Errorf("published %d messages for a malformed tick", len(rec.msgs))
	}
	if _, ok := e.Latest("NIFTY 50"); ok {
		t.Error("outlook stored for a malformed tick")
	}
}

func TestOutlookStaysBoundedOverSession(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	price := 22000.0
	for i := 0; i < 700; i++ {
		// zig-zag uptrend
		if i%7 < 5 {
			price += 3.5
		} else {
			price -= 4
		}
		if err := e.Ingest(ctx, raw(i, price)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		o, _ := e.Latest("NIFTY 50")
		if o.Confidence < 0 || o.Confidence > 100 || o.RiskScore < 0 || o.RiskScore > 100 {
			t.Fatalf("tick %d: outlook out of range %+v", i, o)
		}
	}

	if n := e.candles.Len("NIFTY 50"); n != e.candles.MaxSize() {
		t.Errorf("candle history %d, want bound %d", n, e.candles.MaxSize())
	}
}

func TestResetSessionKeepsLastOutlook(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := e.Ingest(ctx, raw(i, 22000+float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	e.ResetSession(ctx)

	if n := e.candles.Len("NIFTY 50"); n != 0 {
		t.Errorf("candles after reset = %d", n)
	}
	if _, ok := e.Latest("NIFTY 50"); !ok {
		t.Error("last outlook dropped by session reset")
	}
}

type memRecorder struct{ outlooks []types.Outlook }

func (m *memRecorder) Record(_ context.Context, o types.Outlook) error {
	m.outlooks = append(m.outlooks, o)
	return nil
}

func TestRecorderSeesOnlyChanges(t *testing.T) {
	e, _ := newEngine(t)
	rec := &memRecorder{}
	e.SetRecorder(rec)
	ctx := context.Background()

	// identical ticks inside one candle leave the outlook unchanged
	for i := 0; i < 3; i++ {
		r := raw(0, 22010)
		if err := e.Ingest(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if len(rec.outlooks) != 1 {
		t.Fatalf("recorded %d outlooks, want 1", len(rec.outlooks))
	}
	if rec.outlooks[0].Symbol != "NIFTY 50" {
		t.Errorf("recorded %q", rec.outlooks[0].Symbol)
	}
}
