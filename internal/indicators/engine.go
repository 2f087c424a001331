// Package indicators keeps per-instrument indicator state and computes an
// indicator Set for every tick.
package indicators

import (
	"math"
	"sync"
	"time"

	"mytradingsignal/internal/candles"
	"mytradingsignal/internal/store"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

// momentumSensitivity converts one percent of ROC into score points.
const momentumSensitivity = 25.0

type Engine struct {
	cfg store.IndicatorConfig
	loc *time.Location

	mu    sync.Mutex
	state map[string]*symbolState
}

type symbolState struct {
	session string // YYYY-MM-DD in exchange time

	// VWAP accumulators over candles frozen in this session.
	cumPV float64
	cumV  float64

	levelsKey [3]float64
	pivots    ta.Pivots
	camarilla ta.Camarilla
}

func New(cfg store.IndicatorConfig, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{cfg: cfg, loc: loc, state: make(map[string]*symbolState)}
}

// Compute derives the indicator set from the latest tick, the candle snapshot
// (frozen history plus the forming candle) and the candle closed by this tick.
func (e *Engine) Compute(t types.Tick, snap []types.Candle, closed *types.Candle) Set {
	e.mu.Lock()
	st := e.sessionState(t)
	if closed != nil && e.sessionOf(closed.Start) == st.session {
		st.cumPV += closed.Typical() * closed.Vol
		st.cumV += closed.Vol
	}
	pivots, cam := e.levels(st, t)
	cumPV, cumV := st.cumPV, st.cumV
	e.mu.Unlock()

	set := Set{
		Symbol:    t.Symbol,
		Tick:      t,
		EMA:       make(map[int]float64, len(e.cfg.EMAPeriods)),
		Pivots:    pivots,
		Camarilla: cam,
		Candles:   snap,
	}

	closes := candles.Closes(snap)
	highs, lows, _ := candles.HLC(snap)

	for _, p := range e.cfg.EMAPeriods {
		v, err := ta.EMA(closes, p)
		if err != nil {
			set.Missing = append(set.Missing, EMAName(p))
			continue
		}
		set.EMA[p] = v
	}

	// VWAP includes the forming candle when it belongs to this session.
	if n := len(snap); n > 0 {
		open := snap[n-1]
		if e.sessionOf(open.Start) == e.sessionOf(t.Timestamp) {
			cumPV += open.Typical() * open.Vol
			cumV += open.Vol
		}
	}
	if cumV > 0 {
		set.VWAP = cumPV / cumV
	} else {
		set.Missing = append(set.Missing, NameVWAP)
	}

	if v := ta.RSI(closes, e.cfg.RSIPeriod); !math.IsNaN(v) {
		set.RSI = v
	} else {
		set.Missing = append(set.Missing, NameRSI)
	}

	if v := ta.ATR(highs, lows, closes, e.cfg.ATRPeriod); !math.IsNaN(v) {
		set.ATR = v
	} else {
		set.Missing = append(set.Missing, NameATR)
	}

	if roc, err := ta.ROC(closes, e.cfg.MomentumPeriod); err == nil {
		set.Momentum = ta.MomentumScore(roc, momentumSensitivity)
	} else {
		set.Missing = append(set.Missing, NameMomentum)
	}

	frozen := set.Frozen()
	if w := e.cfg.VolumeAvgWindow; w > 0 && len(frozen) >= w {
		set.AvgVolume = ta.Mean(candles.Volumes(frozen[len(frozen)-w:]))
	} else {
		set.Missing = append(set.Missing, NameAvgVolume)
	}

	if pivots.P == 0 {
		set.Missing = append(set.Missing, NamePivots, NameCamarilla)
	}

	return set
}

// ResetSession clears session-scoped state (VWAP, reference levels) for symbol.
func (e *Engine) ResetSession(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.state, symbol)
}

// ResetAll clears session state for every symbol.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = make(map[string]*symbolState)
}

func (e *Engine) sessionOf(ts time.Time) string {
	return ts.In(e.loc).Format("2006-01-02")
}

// sessionState returns the state for t's symbol, resetting it when the
// exchange-local date has moved on.
func (e *Engine) sessionState(t types.Tick) *symbolState {
	day := e.sessionOf(t.Timestamp)
	st, ok := e.state[t.Symbol]
	if !ok || st.session != day {
		st = &symbolState{session: day}
		e.state[t.Symbol] = st
	}
	return st
}

// levels computes reference levels once per distinct previous-session H/L/C
// within a session; with real upstream data those inputs are constant intraday.
func (e *Engine) levels(st *symbolState, t types.Tick) (ta.Pivots, ta.Camarilla) {
	key := [3]float64{t.PrevHigh, t.PrevLow, t.PrevClose}
	if key == st.levelsKey {
		return st.pivots, st.camarilla
	}
	st.levelsKey = key
	if t.PrevHigh <= 0 || t.PrevLow <= 0 || t.PrevClose <= 0 {
		st.pivots, st.camarilla = ta.Pivots{}, ta.Camarilla{}
		return st.pivots, st.camarilla
	}
	st.pivots = ta.ClassicPivots(t.PrevHigh, t.PrevLow, t.PrevClose, e.cfg.TickSize)
	st.camarilla = ta.CamarillaBands(t.PrevHigh, t.PrevLow, t.PrevClose, e.cfg.TickSize)
	return st.pivots, st.camarilla
}
