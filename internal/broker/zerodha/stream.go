package zerodha

import (
	"context"
	"fmt"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/types"
)

// Stream opens a kiteticker connection and relays its callbacks as stream
// events. Auto-reconnect is disabled; reconnection policy belongs to the
// connection manager.
func (u *Upstream) Stream(ctx context.Context, events chan<- types.StreamEvent) error {
	token := u.auth.Token()
	if token == "" {
		return fmt.Errorf("%w: no access token", types.ErrAuthExpired)
	}
	// levels arrive on later ticks; the handshake does not wait for them
	go u.ensureLevels(ctx)

	ticker := kiteticker.New(u.apiKey, token)
	ticker.SetAutoReconnect(false)
	ticker.SetConnectTimeout(u.connTimeout)

	h := &streamHandler{
		ctx:    ctx,
		events: events,
		ticker: ticker,
		mapper: u.mapper,
		day:    u.today(),
		failed: make(chan struct{}, 1),
	}
	h.setupEventHandlers()

	logger.Info(ctx, "Opening Kite ticker", "instruments", len(u.instruments))
	ticker.ServeWithContext(ctx)

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-h.failed:
		// the classified error was already delivered as an event
		return nil
	default:
	}
	return fmt.Errorf("%w: ticker stopped", types.ErrTransientNetwork)
}

// streamHandler translates kiteticker callbacks for one connection attempt.
type streamHandler struct {
	ctx    context.Context
	events chan<- types.StreamEvent
	ticker *kiteticker.Ticker
	mapper *instrumentMapper
	day    string
	failed chan struct{}
}

func (h *streamHandler) setupEventHandlers() {
	h.ticker.OnConnect(h.onConnect)
	h.ticker.OnError(h.onError)
	h.ticker.OnClose(h.onClose)
	h.ticker.OnReconnect(h.onReconnect)
	h.ticker.OnNoReconnect(h.onNoReconnect)
	h.ticker.OnTick(h.onTick)
}

func (h *streamHandler) emit(ev types.StreamEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *streamHandler) fail(err error) {
	select {
	case h.failed <- struct{}{}:
	default:
	}
	h.emit(types.StreamEvent{Kind: types.EventError, Err: classify(err)})
}

func (h *streamHandler) onConnect() {
	tokens := h.mapper.getAllTokens()
	if err := h.ticker.Subscribe(tokens); err != nil {
		logger.ErrorWithErr(h.ctx, "Failed to subscribe to instruments", err, "count", len(tokens))
		h.fail(err)
		return
	}
	if err := h.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		logger.ErrorWithErr(h.ctx, "Failed to set ticker mode", err)
		h.fail(err)
		return
	}
	logger.Info(h.ctx, "Kite ticker connected", "subscribed", len(tokens))
	h.emit(types.StreamEvent{Kind: types.EventConnected})
}

func (h *streamHandler) onError(err error) {
	if h.ctx.Err() != nil {
		return
	}
	logger.Warn(h.ctx, "Kite ticker error", "error", err)
	h.fail(err)
}

func (h *streamHandler) onClose(code int, reason string) {
	logger.Info(h.ctx, "Kite ticker closed", "code", code, "reason", reason)
	h.emit(types.StreamEvent{Kind: types.EventClosed})
}

func (h *streamHandler) onReconnect(attempt int, delay time.Duration) {
	logger.Debug(h.ctx, "Kite ticker reconnecting", "attempt", attempt, "delay", delay)
}

func (h *streamHandler) onNoReconnect(attempt int) {
	logger.Debug(h.ctx, "Kite ticker gave up reconnecting", "attempt", attempt)
}

func (h *streamHandler) onTick(tick models.Tick) {
	raw, ok := h.mapper.toRaw(tick, h.day)
	if !ok {
		logger.Debug(h.ctx, "Tick for unknown instrument", "token", tick.InstrumentToken)
		return
	}
	h.emit(types.StreamEvent{Kind: types.EventTick, Tick: raw})
}
