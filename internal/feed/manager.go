// Package feed keeps exactly one upstream market-data subscription healthy and
// degrades to REST polling when the live channel is unavailable.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/types"
)

// silenceFactor is how many staleness windows of total silence force a reconnect.
const silenceFactor = 4

// Manager is the connection state machine. All state below the snapshot lock
// is owned by the goroutine started in Start.
type Manager struct {
	cfg     Config
	up      interfaces.Upstream
	auth    interfaces.AuthSource
	session interfaces.SessionSource
	sink    interfaces.TickSink
	pub     interfaces.Publisher

	backoff      *backoff.ExponentialBackOff
	pollLimiter  *rate.Limiter
	checkLimiter *rate.Limiter

	state             types.ConnectionState
	quality           types.Quality
	loginRequired     bool
	authFailures      int
	transientFailures int
	authHalted        bool
	handshakes        int
	lastSuccess       time.Time
	lastTickAt        time.Time
	lastTick          map[string]time.Time
	stale             []string
	since             time.Time

	snapMu sync.RWMutex
	snap   types.ConnectionSnapshot

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, up interfaces.Upstream, auth interfaces.AuthSource, session interfaces.SessionSource,
	sink interfaces.TickSink, pub interfaces.Publisher) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:          cfg,
		up:           up,
		auth:         auth,
		session:      session,
		sink:         sink,
		pub:          pub,
		backoff:      cfg.newBackoff(),
		pollLimiter:  rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		checkLimiter: rate.NewLimiter(rate.Every(cfg.BackoffInitial), 3),
		state:        types.StateUnvalidated,
		quality:      types.QualityExcellent,
		lastTick:     make(map[string]time.Time),
		since:        time.Now(),
	}
	m.syncSnapshot()
	return m
}

// Start launches the manager goroutine. Calling it twice is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels any in-flight stream or poll and waits for STOPPED.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Snapshot returns a copy of the current connection state.
func (m *Manager) Snapshot() types.ConnectionSnapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	s := m.snap
	s.StaleInstruments = append([]string(nil), m.snap.StaleInstruments...)
	return s
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	metrics.ConnectionState.Set(m.state.Ordinal())
	m.publishStatus("starting market data feed")

	for {
		if ctx.Err() != nil {
			m.transition(ctx, types.StateStopped, "shutting down", false)
			return
		}
		switch m.state {
		case types.StateUnvalidated:
			if !m.session.Phase().Active() {
				m.transition(ctx, types.StateStopped, "market session closed", false)
				continue
			}
			m.validate(ctx)
		case types.StateAuthExpired:
			m.awaitLogin(ctx)
		case types.StateConnecting, types.StateLive:
			m.stream(ctx)
		case types.StateDegradedPolling:
			m.poll(ctx)
		case types.StateStopped:
			m.awaitSession(ctx)
		}
	}
}

// validate runs the lightweight credential check before any handshake.
func (m *Manager) validate(ctx context.Context) {
	if !m.auth.Valid() {
		m.transition(ctx, types.StateAuthExpired, "access token missing or expired, login required", true)
		return
	}
	if err := m.checkLimiter.Wait(ctx); err != nil {
		return
	}

	err := m.up.CheckCredential(ctx)
	if err == nil {
		m.transition(ctx, types.StateConnecting, "credential verified", false)
		return
	}

	cls := m.recordError(ctx, err, "credential check")
	switch cls {
	case types.ClassCanceled:
	case types.ClassAuth:
		m.auth.Invalidate(ctx)
		m.transition(ctx, types.StateAuthExpired, "credential rejected by upstream, login required", true)
	default:
		m.wait(ctx, m.backoff.NextBackOff())
	}
}

func (m *Manager) awaitLogin(ctx context.Context) {
	select {
	case <-ctx.Done():
	case p := <-m.session.Changes():
		m.onSessionChange(ctx, p)
	case <-m.auth.Revalidated():
		m.revalidated(ctx)
	}
}

func (m *Manager) revalidated(ctx context.Context) {
	m.authFailures = 0
	m.authHalted = false
	m.backoff.Reset()
	m.transition(ctx, types.StateConnecting, "credentials revalidated, reconnecting", false)
}

// awaitSession parks the manager after the session closed until the next
// active phase.
func (m *Manager) awaitSession(ctx context.Context) {
	if m.session.Phase().Active() {
		m.transition(ctx, types.StateUnvalidated, "market session open", false)
		return
	}
	select {
	case <-ctx.Done():
	case p := <-m.session.Changes():
		if p.Active() {
			m.transition(ctx, types.StateUnvalidated, "market session "+string(p), false)
		}
	}
}

// onSessionChange reports whether the caller should stop its loop.
func (m *Manager) onSessionChange(ctx context.Context, p types.SessionPhase) bool {
	if p != types.PhaseClosed {
		return false
	}
	m.transition(ctx, types.StateStopped, "market session closed", false)
	return true
}

// stream performs one handshake and consumes events until the stream fails,
// the session closes or ctx is cancelled.
func (m *Manager) stream(ctx context.Context) {
	m.handshakes++
	m.syncSnapshot()
	logger.Info(ctx, "Opening live stream", "handshake", m.handshakes, "auth_failures", m.authFailures, "transient_failures", m.transientFailures)

	sctx, cancel := context.WithCancel(ctx)
	events := make(chan types.StreamEvent, m.cfg.EventBuffer)
	errc := make(chan error, 1)
	go func() { errc <- m.up.Stream(sctx, events) }()

	finished := false
	teardown := func() {
		cancel()
		if !finished {
			<-errc
			finished = true
		}
	}
	defer teardown()

	started := time.Now()
	grace := time.NewTimer(m.cfg.Grace)
	defer grace.Stop()
	staleTicker := time.NewTicker(m.staleInterval())
	defer staleTicker.Stop()

	var failure error
loop:
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.session.Changes():
			if m.onSessionChange(ctx, p) {
				return
			}
		case ev := <-events:
			switch ev.Kind {
			case types.EventConnected:
				logger.Info(ctx, "Live stream connected", "handshake", m.handshakes)
			case types.EventTick:
				m.onTick(ctx, ev.Tick, "live")
				if m.state == types.StateConnecting {
					grace.Stop()
					m.authFailures, m.transientFailures = 0, 0
					m.backoff.Reset()
					m.transition(ctx, types.StateLive, "live stream receiving ticks", false)
				}
			case types.EventError:
				failure = ev.Err
				break loop
			case types.EventClosed:
				failure = fmt.Errorf("%w: stream closed by upstream", types.ErrTransientNetwork)
				break loop
			}
		case err := <-errc:
			finished = true
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				err = fmt.Errorf("%w: stream ended", types.ErrTransientNetwork)
			}
			failure = err
			break loop
		case <-grace.C:
			if m.state == types.StateConnecting {
				failure = fmt.Errorf("%w: no tick within %s of handshake", types.ErrTransientNetwork, m.cfg.Grace)
				break loop
			}
		case <-staleTicker.C:
			if m.checkStale(ctx, started) && m.state == types.StateLive {
				failure = fmt.Errorf("%w: all instruments silent for %s", types.ErrTransientNetwork, silenceFactor*m.cfg.Stale)
				break loop
			}
		}
	}

	teardown()
	m.fail(ctx, failure, "live stream")
}

// fail classifies a live-channel failure, escalates when a limit is reached and
// otherwise schedules the next handshake after backoff.
func (m *Manager) fail(ctx context.Context, err error, where string) {
	cls := m.recordError(ctx, err, where)
	switch cls {
	case types.ClassCanceled:
		return
	case types.ClassAuth:
		m.authFailures++
		m.transientFailures = 0
		if m.authFailures >= m.cfg.AuthThreshold {
			m.authHalted = true
			m.auth.Invalidate(ctx)
			m.transition(ctx, types.StateDegradedPolling,
				fmt.Sprintf("%d consecutive auth failures, live retries halted until login", m.authFailures), true)
			return
		}
	default:
		// rate limiting counts here too; it never escalates to auth
		m.transientFailures++
		m.authFailures = 0
		if m.transientFailures >= m.cfg.MaxTransient {
			m.transition(ctx, types.StateDegradedPolling,
				fmt.Sprintf("%d consecutive connection failures, polling REST", m.transientFailures), false)
			return
		}
	}

	m.transition(ctx, types.StateConnecting, "reconnecting after "+cls.String()+" error", false)
	m.syncSnapshot()
	m.wait(ctx, m.backoff.NextBackOff())
}

// wait sleeps for d unless ctx ends or the session closes first.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		d = m.cfg.BackoffMax
	}
	logger.Info(ctx, "Retrying upstream", "in", d.String(), "state", string(m.state))

	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case p := <-m.session.Changes():
			if m.onSessionChange(ctx, p) {
				return false
			}
		case <-t.C:
			return true
		}
	}
}

// poll serves DEGRADED_POLLING: REST snapshots while the session is active,
// a periodic live retry unless auth halted it, and an immediate reconnect on
// revalidation.
func (m *Manager) poll(ctx context.Context) {
	entered := time.Now()
	pollTicker := time.NewTicker(m.cfg.PollInterval)
	defer pollTicker.Stop()
	staleTicker := time.NewTicker(m.staleInterval())
	defer staleTicker.Stop()

	var retry <-chan time.Time
	if !m.authHalted {
		rt := time.NewTimer(m.cfg.LiveRetry)
		defer rt.Stop()
		retry = rt.C
	}

	if !m.pollOnce(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.session.Changes():
			if m.onSessionChange(ctx, p) {
				return
			}
		case <-m.auth.Revalidated():
			m.revalidated(ctx)
			return
		case <-retry:
			m.backoff.Reset()
			m.transition(ctx, types.StateConnecting, "retrying live stream", false)
			return
		case <-pollTicker.C:
			if !m.pollOnce(ctx) {
				return
			}
		case <-staleTicker.C:
			m.checkStale(ctx, entered)
		}
	}
}

// pollOnce reports whether polling should continue.
func (m *Manager) pollOnce(ctx context.Context) bool {
	if !m.session.Phase().Active() {
		return true
	}
	if err := m.pollLimiter.Wait(ctx); err != nil {
		return false
	}

	raws, err := m.up.Poll(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		switch m.recordError(ctx, err, "rest poll") {
		case types.ClassCanceled:
			return false
		case types.ClassAuth:
			m.auth.Invalidate(ctx)
			m.transition(ctx, types.StateAuthExpired, "REST poll rejected credential, login required", true)
			return false
		}
		return true
	}

	metrics.PollsTotal.WithLabelValues("ok").Inc()
	for _, raw := range raws {
		m.onTick(ctx, raw, "poll")
	}
	return true
}

func (m *Manager) onTick(ctx context.Context, raw types.RawTick, source string) {
	now := time.Now()
	key := raw.Symbol
	if key == "" {
		key = strconv.FormatUint(uint64(raw.Token), 10)
	}
	m.lastTick[key] = now
	m.lastTickAt = now
	m.lastSuccess = now
	metrics.TicksTotal.WithLabelValues(key, source).Inc()

	if err := m.sink.Ingest(ctx, raw); err != nil {
		logger.Debug(ctx, "Tick rejected by pipeline", "symbol", key, "source", source, "error", err)
	}

	m.snapMu.Lock()
	m.snap.LastTick = now
	m.snap.LastSuccess = now
	m.snapMu.Unlock()
}

func (m *Manager) recordError(ctx context.Context, err error, where string) types.ErrorClass {
	cls := types.Classify(err)
	if cls == types.ClassCanceled {
		return cls
	}
	metrics.UpstreamErrors.WithLabelValues(cls.String()).Inc()
	logger.Warn(ctx, "Upstream error", "where", where, "class", cls.String(), "error", err,
		"auth_failures", m.authFailures, "transient_failures", m.transientFailures)
	return cls
}

func (m *Manager) transition(ctx context.Context, to types.ConnectionState, reason string, loginRequired bool) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.since = time.Now()
	m.loginRequired = loginRequired

	metrics.ConnectionState.Set(to.Ordinal())
	metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	logger.Connection(ctx, string(from), string(to), reason,
		"auth_failures", m.authFailures,
		"transient_failures", m.transientFailures,
		"quality", string(m.quality),
		"login_required", loginRequired)

	m.syncSnapshot()
	m.publishStatus(reason)
}

func (m *Manager) publishStatus(msg string) {
	m.pub.Publish(types.NewConnectionStatus(m.state, m.quality, msg, m.loginRequired, time.Now()))
}

func (m *Manager) syncSnapshot() {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	m.snap = types.ConnectionSnapshot{
		State:             m.state,
		Quality:           m.quality,
		AuthFailures:      m.authFailures,
		TransientFailures: m.transientFailures,
		LastSuccess:       m.lastSuccess,
		LastTick:          m.lastTickAt,
		StaleInstruments:  append([]string(nil), m.stale...),
		Handshakes:        m.handshakes,
		Since:             m.since,
	}
}
