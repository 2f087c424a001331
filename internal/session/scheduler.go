// Package session tracks the exchange trading phase on a cron schedule.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/types"
)

// Scheduler moves between PRE_OPEN, LIVE and CLOSED at the configured cron
// times in the exchange timezone.
type Scheduler struct {
	loc   *time.Location
	specs []phaseSpec
	cron  *cron.Cron

	mu      sync.RWMutex
	phase   types.SessionPhase
	changes chan types.SessionPhase
	hooks   map[types.SessionPhase][]func()
}

type phaseSpec struct {
	expr     string
	phase    types.SessionPhase
	schedule cron.Schedule
}

// New parses the three standard five-field cron expressions and derives the
// current phase from now.
func New(preOpen, open, close string, loc *time.Location, now time.Time) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		loc:     loc,
		cron:    cron.New(cron.WithLocation(loc)),
		changes: make(chan types.SessionPhase, 8),
		hooks:   make(map[types.SessionPhase][]func()),
	}
	for _, ps := range []phaseSpec{
		{expr: preOpen, phase: types.PhasePreOpen},
		{expr: open, phase: types.PhaseLive},
		{expr: close, phase: types.PhaseClosed},
	} {
		sched, err := cron.ParseStandard(ps.expr)
		if err != nil {
			return nil, fmt.Errorf("session %s schedule %q: %w", ps.phase, ps.expr, err)
		}
		ps.schedule = sched
		s.specs = append(s.specs, ps)

		phase := ps.phase
		if _, err := s.cron.AddFunc(ps.expr, func() { s.Set(phase) }); err != nil {
			return nil, fmt.Errorf("session %s schedule %q: %w", ps.phase, ps.expr, err)
		}
	}
	s.phase = s.PhaseAt(now)
	return s, nil
}

// PhaseAt returns the phase whose schedule fired most recently before t.
func (s *Scheduler) PhaseAt(t time.Time) types.SessionPhase {
	t = t.In(s.loc)
	var (
		latest time.Time
		phase  = types.PhaseClosed
	)
	for _, ps := range s.specs {
		if last, ok := lastFire(ps.schedule, t); ok && last.After(latest) {
			latest, phase = last, ps.phase
		}
	}
	return phase
}

// lastFire walks the schedule forward from a week back to find the last
// activation at or before t.
func lastFire(sched cron.Schedule, t time.Time) (time.Time, bool) {
	var last time.Time
	found := false
	for next := sched.Next(t.Add(-8 * 24 * time.Hour)); !next.IsZero() && !next.After(t); next = sched.Next(next) {
		last, found = next, true
	}
	return last, found
}

func (s *Scheduler) Phase() types.SessionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Scheduler) Changes() <-chan types.SessionPhase { return s.changes }

// OnPhase registers fn to run synchronously whenever the phase changes to p.
func (s *Scheduler) OnPhase(p types.SessionPhase, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[p] = append(s.hooks[p], fn)
}

// Set forces the phase; a change is announced on Changes.
func (s *Scheduler) Set(p types.SessionPhase) {
	s.mu.Lock()
	prev := s.phase
	s.phase = p
	hooks := append([]func(){}, s.hooks[p]...)
	s.mu.Unlock()
	if prev == p {
		return
	}
	for _, fn := range hooks {
		fn()
	}

	logger.Info(context.Background(), "Session phase changed", "from", string(prev), "to", string(p))
	select {
	case s.changes <- p:
	default:
		logger.Warn(context.Background(), "Session change dropped, listener is behind", "phase", string(p))
	}
}

// Start runs the cron scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
