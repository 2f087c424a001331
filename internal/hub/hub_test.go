package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mytradingsignal/internal/types"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func outlook(symbol string, dir types.Direction) types.Message {
	return types.NewOutlookMessage(types.Outlook{Symbol: symbol, Direction: dir, Time: now})
}

func decodeType(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("bad json %s: %v", b, err)
	}
	return m
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := New(2, 0)
	slow := h.Register()
	fast := h.Register()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(types.NewTickMessage(types.Tick{Symbol: "NIFTY", LastPrice: float64(i)}))
			<-fast.C()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if got := len(slow.C()); got != 2 {
		t.Errorf("slow subscriber should hold exactly its buffer, got %d", got)
	}
	if got := h.Dropped(); got != 98 {
		t.Errorf("expected 98 drops, got %d", got)
	}
}

func TestRegisterReplaysLastValues(t *testing.T) {
	h := New(8, 0)
	h.Publish(outlook("NIFTY", types.Buy))
	h.Publish(outlook("NIFTY", types.StrongSell))
	h.Publish(outlook("BANKNIFTY", types.Neutral))
	h.Publish(types.NewConnectionStatus(types.StateDegradedPolling, types.QualityPoor, "feed down", false, now))
	h.Publish(h.Heartbeat(now))

	sub := h.Register()
	if got := len(sub.C()); got != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", got)
	}

	first := decodeType(t, <-sub.C())
	if first["type"] != types.MsgConnectionStatus || first["mode"] != string(types.StateDegradedPolling) {
		t.Errorf("connection status should replay first, got %v", first)
	}
	seen := map[string]string{}
	for i := 0; i < 2; i++ {
		m := decodeType(t, <-sub.C())
		seen[m["instrument"].(string)] = m["direction"].(string)
	}
	if seen["NIFTY"] != string(types.StrongSell) {
		t.Errorf("replay should carry the latest NIFTY outlook, got %s", seen["NIFTY"])
	}
	if seen["BANKNIFTY"] != string(types.Neutral) {
		t.Errorf("missing BANKNIFTY outlook: %v", seen)
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := New(1, 0)
	sub := h.Register()
	h.Unregister(sub.ID)
	h.Unregister(sub.ID)

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed")
	}
	if h.Count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Count())
	}
	h.Publish(outlook("NIFTY", types.Buy))
}

type fakeHealth struct{ snap types.ConnectionSnapshot }

func (f fakeHealth) Snapshot() types.ConnectionSnapshot { return f.snap }

type fakeSession struct{ phase types.SessionPhase }

func (f fakeSession) Phase() types.SessionPhase          { return f.phase }
func (f fakeSession) Changes() <-chan types.SessionPhase { return nil }

func TestHeartbeatCarriesHealth(t *testing.T) {
	h := New(4, time.Second)
	h.SetHealth(fakeHealth{types.ConnectionSnapshot{State: types.StateLive, Quality: types.QualityExcellent}})
	h.SetSession(fakeSession{types.PhaseLive})
	h.Register()

	hb := h.Heartbeat(h.started.Add(90 * time.Second))
	if hb.Connections != 1 || hb.Phase != types.PhaseLive || hb.Health.State != types.StateLive {
		t.Errorf("unexpected heartbeat %+v", hb)
	}
	if hb.Uptime != "1m30s" {
		t.Errorf("unexpected uptime %s", hb.Uptime)
	}
}

func TestServeWSStreamsMessages(t *testing.T) {
	h := New(8, 0)
	h.Publish(outlook("NIFTY", types.Buy))

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if m := decodeType(t, b); m["type"] != types.MsgOutlookUpdate {
		t.Errorf("expected replayed outlook, got %v", m)
	}

	h.Publish(types.NewTickMessage(types.Tick{Symbol: "NIFTY", LastPrice: 22000}))
	_, b, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read tick: %v", err)
	}
	m := decodeType(t, b)
	if m["type"] != types.MsgTick || m["last_price"] != 22000.0 {
		t.Errorf("unexpected tick message %v", m)
	}
}
