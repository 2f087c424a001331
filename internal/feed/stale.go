package feed

import (
	"context"
	"fmt"
	"time"

	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/types"
)

func (m *Manager) staleInterval() time.Duration {
	d := m.cfg.Stale / 3
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// checkStale recomputes quality from per-instrument tick age during the LIVE
// session phase. Instruments that have not ticked since `since` are aged from
// it. It reports whether every instrument has been silent for silenceFactor
// staleness windows.
func (m *Manager) checkStale(ctx context.Context, since time.Time) bool {
	if m.session.Phase() != types.PhaseLive {
		return false
	}
	instruments := m.up.Instruments()
	if len(instruments) == 0 {
		return false
	}

	now := time.Now()
	var stale []string
	silent := true
	for _, in := range instruments {
		last, ok := m.lastTick[in.Symbol]
		if !ok || last.Before(since) {
			last = since
		}
		age := now.Sub(last)
		if age > m.cfg.Stale {
			stale = append(stale, in.Symbol)
		}
		if age <= silenceFactor*m.cfg.Stale {
			silent = false
		}
	}

	q := types.QualityExcellent
	switch {
	case len(stale) == len(instruments):
		q = types.QualityPoor
	case len(stale) > 0:
		q = types.QualityDegraded
	}
	m.stale = stale

	if q != m.quality {
		prev := m.quality
		m.quality = q
		logger.Warn(ctx, "Feed quality changed", "from", string(prev), "to", string(q), "stale", stale)
		m.publishStatus(fmt.Sprintf("feed quality %s, %d of %d instruments stale", q, len(stale), len(instruments)))
	}
	m.syncSnapshot()
	return silent
}
