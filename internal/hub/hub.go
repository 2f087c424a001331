// Package hub fans pipeline output out to subscribers without ever blocking
// the ingestion path.
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/types"
)

// Subscriber receives encoded messages on a bounded channel. The channel is
// closed on Unregister.
type Subscriber struct {
	ID  string
	out chan []byte
}

// C returns the receive side of the subscriber's queue.
func (s *Subscriber) C() <-chan []byte { return s.out }

type Hub struct {
	buffer    int
	heartbeat time.Duration
	started   time.Time

	health  interfaces.HealthSource
	session interfaces.SessionSource

	mu    sync.RWMutex
	subs  map[string]*Subscriber
	cache map[string][]byte

	dropped atomic.Uint64
}

func New(buffer int, heartbeat time.Duration) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		buffer:    buffer,
		heartbeat: heartbeat,
		started:   time.Now(),
		subs:      make(map[string]*Subscriber),
		cache:     make(map[string][]byte),
	}
}

// SetHealth attaches the connection health source reported in heartbeats.
func (h *Hub) SetHealth(hs interfaces.HealthSource) { h.health = hs }

// SetSession attaches the session phase reported in heartbeats.
func (h *Hub) SetSession(ss interfaces.SessionSource) { h.session = ss }

// Register adds a subscriber and queues the last-value cache for it, latest
// connection status first.
func (h *Hub) Register() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:  uuid.NewString(),
		out: make(chan []byte, h.buffer+len(h.cache)),
	}
	for _, key := range h.replayOrder() {
		sub.out <- h.cache[key]
	}
	h.subs[sub.ID] = sub
	metrics.HubSubscribers.Set(float64(len(h.subs)))
	logger.Info(context.Background(), "Subscriber registered", "id", sub.ID, "replayed", len(h.cache), "subscribers", len(h.subs))
	return sub
}

func (h *Hub) replayOrder() []string {
	keys := make([]string, 0, len(h.cache))
	for k := range h.cache {
		if k != types.MsgConnectionStatus {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := h.cache[types.MsgConnectionStatus]; ok {
		keys = append([]string{types.MsgConnectionStatus}, keys...)
	}
	return keys
}

// Unregister removes the subscriber and closes its channel. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.out)
	metrics.HubSubscribers.Set(float64(len(h.subs)))
	logger.Info(context.Background(), "Subscriber unregistered", "id", id, "subscribers", len(h.subs))
}

// Publish encodes msg once, stores it in the last-value cache and offers it to
// every subscriber. Full subscribers lose the message.
func (h *Hub) Publish(msg types.Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to encode broadcast message", err, "type", msg.MessageType())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if key := msg.CacheKey(); key != "" {
		h.cache[key] = b
	}
	for _, sub := range h.subs {
		select {
		case sub.out <- b:
		default:
			h.dropped.Add(1)
			metrics.HubDropped.Inc()
			logger.Debug(context.Background(), "Dropped message for slow subscriber", "id", sub.ID, "type", msg.MessageType())
		}
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the total number of messages dropped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Heartbeat builds the periodic status message.
func (h *Hub) Heartbeat(now time.Time) types.HeartbeatMessage {
	hb := types.HeartbeatMessage{
		Type:        types.MsgHeartbeat,
		Connections: h.Count(),
		Dropped:     h.Dropped(),
		Uptime:      now.Sub(h.started).Truncate(time.Second).String(),
		Time:        now,
	}
	if h.health != nil {
		hb.Health = h.health.Snapshot()
	}
	if h.session != nil {
		hb.Phase = h.session.Phase()
	}
	return hb
}

// Run publishes heartbeats until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.heartbeat <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Publish(h.Heartbeat(now))
		}
	}
}

// Close unregisters every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Unregister(id)
	}
}
