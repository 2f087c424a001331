package feed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mytradingsignal/internal/auth"
	"mytradingsignal/internal/types"
)

type fakeUpstream struct {
	checkErr    error
	stream      func(ctx context.Context, n int, events chan<- types.StreamEvent) error
	pollErr     atomic.Value // error
	instruments []types.Instrument

	checks     atomic.Int32
	handshakes atomic.Int32
	polls      atomic.Int32
}

func (f *fakeUpstream) CheckCredential(ctx context.Context) error {
	f.checks.Add(1)
	return f.checkErr
}

func (f *fakeUpstream) Stream(ctx context.Context, events chan<- types.StreamEvent) error {
	n := int(f.handshakes.Add(1))
	if f.stream == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.stream(ctx, n, events)
}

func (f *fakeUpstream) Poll(ctx context.Context) ([]types.RawTick, error) {
	f.polls.Add(1)
	if err, ok := f.pollErr.Load().(error); ok && err != nil {
		return nil, err
	}
	return []types.RawTick{{Symbol: "NIFTY", LastPrice: 22000}}, nil
}

func (f *fakeUpstream) Instruments() []types.Instrument {
	if f.instruments != nil {
		return f.instruments
	}
	return []types.Instrument{{Symbol: "NIFTY"}}
}

type fakeAuth struct {
	valid       atomic.Bool
	invalidated atomic.Int32
	ch          chan struct{}
}

func newAuth(valid bool) *fakeAuth {
	a := &fakeAuth{ch: make(chan struct{}, 1)}
	a.valid.Store(valid)
	return a
}

func (a *fakeAuth) Valid() bool                  { return a.valid.Load() }
func (a *fakeAuth) Age() time.Duration           { return time.Minute }
func (a *fakeAuth) Token() string                { return "token" }
func (a *fakeAuth) Revalidated() <-chan struct{} { return a.ch }

func (a *fakeAuth) Invalidate(ctx context.Context) {
	a.invalidated.Add(1)
	a.valid.Store(false)
}

func (a *fakeAuth) revalidate() {
	a.valid.Store(true)
	a.ch <- struct{}{}
}

type fakeSession struct {
	mu    sync.Mutex
	phase types.SessionPhase
	ch    chan types.SessionPhase
}

func newSession(p types.SessionPhase) *fakeSession {
	return &fakeSession{phase: p, ch: make(chan types.SessionPhase, 4)}
}

func (s *fakeSession) Phase() types.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *fakeSession) Changes() <-chan types.SessionPhase { return s.ch }

func (s *fakeSession) set(p types.SessionPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.ch <- p
}

type countingSink struct{ n atomic.Int32 }

func (c *countingSink) Ingest(ctx context.Context, raw types.RawTick) error {
	c.n.Add(1)
	return nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []types.ConnectionStatusMessage
}

func (r *recorder) Publish(msg types.Message) {
	if cs, ok := msg.(types.ConnectionStatusMessage); ok {
		r.mu.Lock()
		r.msgs = append(r.msgs, cs)
		r.mu.Unlock()
	}
}

func (r *recorder) modes() []types.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ConnectionState, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Mode
	}
	return out
}

func (r *recorder) last() types.ConnectionStatusMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1]
}

func testConfig() Config {
	return Config{
		Grace:          200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		LiveRetry:      time.Hour,
		Stale:          time.Hour,
		AuthThreshold:  3,
		MaxTransient:   8,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		EventBuffer:    16,
	}
}

type harness struct {
	up      *fakeUpstream
	auth    *fakeAuth
	session *fakeSession
	sink    *countingSink
	pub     *recorder
	m       *Manager
}

func start(t *testing.T, cfg Config, up *fakeUpstream, auth *fakeAuth, session *fakeSession) *harness {
	t.Helper()
	h := &harness{up: up, auth: auth, session: session, sink: &countingSink{}, pub: &recorder{}}
	h.m = New(cfg, up, auth, session, h.sink, h.pub)
	h.m.Start(context.Background())
	t.Cleanup(h.m.Stop)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) inState(s types.ConnectionState) func() bool {
	return func() bool { return h.m.Snapshot().State == s }
}

// tickForever emits one tick immediately and then every few milliseconds.
func tickForever(ctx context.Context, events chan<- types.StreamEvent, symbols ...string) error {
	if len(symbols) == 0 {
		symbols = []string{"NIFTY"}
	}
	send := func() bool {
		for _, s := range symbols {
			select {
			case events <- types.StreamEvent{Kind: types.EventTick, Tick: types.RawTick{Symbol: s, LastPrice: 100}}:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}
	if !send() {
		return ctx.Err()
	}
	t := time.NewTicker(3 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !send() {
				return ctx.Err()
			}
		}
	}
}

func TestRejectedCredentialNeverHandshakes(t *testing.T) {
	up := &fakeUpstream{checkErr: types.ErrAuthExpired}
	h := start(t, testConfig(), up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "AUTH_EXPIRED", h.inState(types.StateAuthExpired))
	time.Sleep(50 * time.Millisecond)

	if n := up.handshakes.Load(); n != 0 {
		t.Fatalf("expected zero handshakes, got %d", n)
	}
	if !h.pub.last().LoginRequired {
		t.Error("status should flag login required")
	}
}

func TestInvalidTokenSkipsCredentialCheck(t *testing.T) {
	up := &fakeUpstream{}
	h := start(t, testConfig(), up, newAuth(false), newSession(types.PhaseLive))

	waitFor(t, "AUTH_EXPIRED", h.inState(types.StateAuthExpired))
	if up.checks.Load() != 0 || up.handshakes.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d checks %d handshakes", up.checks.Load(), up.handshakes.Load())
	}

	h.auth.revalidate()
	waitFor(t, "LIVE after revalidation", func() bool { return up.handshakes.Load() >= 1 })
}

func TestRepeatedAuthErrorsDegradeUntilRevalidated(t *testing.T) {
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return types.ErrAuthExpired
		},
	}
	h := start(t, testConfig(), up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "DEGRADED_POLLING", h.inState(types.StateDegradedPolling))
	if n := up.handshakes.Load(); n != 3 {
		t.Fatalf("expected 3 handshakes before degrading, got %d", n)
	}

	time.Sleep(100 * time.Millisecond)
	if n := up.handshakes.Load(); n != 3 {
		t.Fatalf("handshake attempted while auth halted: %d", n)
	}
	if up.polls.Load() == 0 || h.sink.n.Load() == 0 {
		t.Error("degraded mode should poll and forward ticks")
	}
	if !h.pub.last().LoginRequired {
		t.Error("auth-halted polling should flag login required")
	}
	if h.auth.invalidated.Load() != 1 || h.auth.Valid() {
		t.Error("auth halt should invalidate the token")
	}

	began := time.Now()
	h.auth.revalidate()
	waitFor(t, "handshake after revalidation", func() bool { return up.handshakes.Load() >= 4 })
	if time.Since(began) > time.Second {
		t.Error("revalidation should reconnect immediately")
	}
}

func writeTokenFile(t *testing.T, path, token string) {
	t.Helper()
	b, _ := json.Marshal(map[string]any{"access_token": token, "login_time": time.Now()})
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestNewLoginAfterAuthHaltReconnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, "A")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	w := auth.NewWatcher(path, 20*time.Hour, 5*time.Millisecond, "")
	w.Refresh(ctx)
	go w.Run(ctx)

	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			if w.Token() != "B" {
				return types.ErrAuthExpired
			}
			return tickForever(ctx, events)
		},
	}
	m := New(testConfig(), up, w, newSession(types.PhaseLive), &countingSink{}, &recorder{})
	m.Start(context.Background())
	t.Cleanup(m.Stop)

	waitFor(t, "DEGRADED_POLLING", func() bool { return m.Snapshot().State == types.StateDegradedPolling })
	if w.Valid() {
		t.Error("rejected token should no longer be valid")
	}

	// rewriting the refused token is not a new login
	writeTokenFile(t, path, "A")
	time.Sleep(50 * time.Millisecond)
	if n := up.handshakes.Load(); n != 3 {
		t.Fatalf("handshake attempted with the refused token: %d", n)
	}

	writeTokenFile(t, path, "B")
	waitFor(t, "LIVE after new login", func() bool { return m.Snapshot().State == types.StateLive })
	if n := up.handshakes.Load(); n != 4 {
		t.Errorf("expected exactly one handshake after login, got %d total", n)
	}
}

func TestTransientErrorReconnects(t *testing.T) {
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			if n == 1 {
				events <- types.StreamEvent{Kind: types.EventTick, Tick: types.RawTick{Symbol: "NIFTY", LastPrice: 1}}
				time.Sleep(20 * time.Millisecond)
				return types.ErrTransientNetwork
			}
			return tickForever(ctx, events)
		},
	}
	h := start(t, testConfig(), up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "second handshake", func() bool { return up.handshakes.Load() == 2 })
	waitFor(t, "LIVE", h.inState(types.StateLive))

	modes := h.pub.modes()
	want := []types.ConnectionState{
		types.StateUnvalidated, types.StateConnecting, types.StateLive, types.StateConnecting, types.StateLive,
	}
	if len(modes) < len(want) {
		t.Fatalf("expected at least %v, got %v", want, modes)
	}
	for i, s := range want {
		if modes[i] != s {
			t.Fatalf("transition %d: got %s, want %s (all %v)", i, modes[i], s, modes)
		}
	}
	if snap := h.m.Snapshot(); snap.TransientFailures != 0 || snap.AuthFailures != 0 {
		t.Errorf("failures should reset on tick, got %+v", snap)
	}
}

func TestGraceExpiryDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Grace = 15 * time.Millisecond
	cfg.MaxTransient = 2
	up := &fakeUpstream{} // handshakes succeed but never tick
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "DEGRADED_POLLING", h.inState(types.StateDegradedPolling))
	if n := up.handshakes.Load(); n != 2 {
		t.Errorf("expected 2 handshakes, got %d", n)
	}
	if h.pub.last().LoginRequired {
		t.Error("transient degradation must not ask for login")
	}
}

func TestRateLimitNeverExpiresAuth(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTransient = 1000
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return types.ErrRateLimited
		},
	}
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "several retries", func() bool { return up.handshakes.Load() >= 5 })
	for _, s := range h.pub.modes() {
		if s == types.StateAuthExpired || s == types.StateDegradedPolling {
			t.Fatalf("rate limiting escalated to %s", s)
		}
	}
}

func TestLiveRetryFromDegraded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTransient = 1
	cfg.LiveRetry = 30 * time.Millisecond
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			if n == 1 {
				return types.ErrTransientNetwork
			}
			return tickForever(ctx, events)
		},
	}
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "LIVE after retry", h.inState(types.StateLive))
	if n := up.handshakes.Load(); n != 2 {
		t.Errorf("expected 2 handshakes, got %d", n)
	}
	seen := false
	for _, s := range h.pub.modes() {
		if s == types.StateDegradedPolling {
			seen = true
		}
	}
	if !seen {
		t.Error("expected to pass through DEGRADED_POLLING")
	}
}

func TestPollAuthErrorRequiresLogin(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTransient = 1
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return types.ErrTransientNetwork
		},
	}
	up.pollErr.Store(types.ErrAuthExpired)
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "AUTH_EXPIRED", h.inState(types.StateAuthExpired))
	if !h.pub.last().LoginRequired {
		t.Error("expected login_required")
	}
}

func TestNoPollingOutsideActiveSession(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTransient = 1
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return types.ErrTransientNetwork
		},
	}
	session := newSession(types.PhaseLive)
	h := start(t, cfg, up, newAuth(true), session)

	waitFor(t, "DEGRADED_POLLING", h.inState(types.StateDegradedPolling))
	waitFor(t, "first poll", func() bool { return up.polls.Load() > 0 })

	// flip the phase without announcing it; polling should go quiet
	session.mu.Lock()
	session.phase = types.PhaseClosed
	session.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	before := up.polls.Load()
	time.Sleep(60 * time.Millisecond)
	if after := up.polls.Load(); after != before {
		t.Errorf("polled %d times outside the session", after-before)
	}
}

func TestSessionCloseStopsAndResumes(t *testing.T) {
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return tickForever(ctx, events)
		},
	}
	session := newSession(types.PhaseLive)
	h := start(t, testConfig(), up, newAuth(true), session)

	waitFor(t, "LIVE", h.inState(types.StateLive))
	session.set(types.PhaseClosed)
	waitFor(t, "STOPPED", h.inState(types.StateStopped))

	session.set(types.PhasePreOpen)
	waitFor(t, "second handshake", func() bool { return up.handshakes.Load() == 2 })
	waitFor(t, "LIVE again", h.inState(types.StateLive))
}

func TestStopMovesToStopped(t *testing.T) {
	var streamCancelled atomic.Bool
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			err := tickForever(ctx, events)
			streamCancelled.Store(true)
			return err
		},
	}
	h := start(t, testConfig(), up, newAuth(true), newSession(types.PhaseLive))
	waitFor(t, "LIVE", h.inState(types.StateLive))

	h.m.Stop()
	if s := h.m.Snapshot().State; s != types.StateStopped {
		t.Fatalf("expected STOPPED, got %s", s)
	}
	if !streamCancelled.Load() {
		t.Error("stream should be torn down before Stop returns")
	}
	h.m.Stop()
}

func TestStalenessDegradesQuality(t *testing.T) {
	cfg := testConfig()
	cfg.Stale = 40 * time.Millisecond
	up := &fakeUpstream{
		instruments: []types.Instrument{{Symbol: "NIFTY"}, {Symbol: "BANKNIFTY"}},
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			return tickForever(ctx, events, "NIFTY")
		},
	}
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "DEGRADED quality", func() bool { return h.m.Snapshot().Quality == types.QualityDegraded })
	snap := h.m.Snapshot()
	if len(snap.StaleInstruments) != 1 || snap.StaleInstruments[0] != "BANKNIFTY" {
		t.Errorf("unexpected stale list %v", snap.StaleInstruments)
	}
	if snap.State != types.StateLive {
		t.Errorf("partial staleness must not reconnect, state %s", snap.State)
	}
}

func TestTotalSilenceForcesReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Stale = 10 * time.Millisecond
	up := &fakeUpstream{
		stream: func(ctx context.Context, n int, events chan<- types.StreamEvent) error {
			if n == 1 {
				select {
				case events <- types.StreamEvent{Kind: types.EventTick, Tick: types.RawTick{Symbol: "NIFTY", LastPrice: 1}}:
				case <-ctx.Done():
				}
				<-ctx.Done()
				return ctx.Err()
			}
			return tickForever(ctx, events)
		},
	}
	h := start(t, cfg, up, newAuth(true), newSession(types.PhaseLive))

	waitFor(t, "reconnect", func() bool { return up.handshakes.Load() >= 2 })
	waitFor(t, "LIVE", h.inState(types.StateLive))
}
