// Package sim is an offline upstream producing random-walk ticks.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/types"
)

type Params struct {
	Instruments   []types.Instrument
	BasePrice     float64
	Step          time.Duration
	Volatility    float64 // per-step stddev as a fraction of price
	VolumeMin     int64
	VolumeMax     int64
	Seed          int64 // zero seeds from the clock
	FailHandshake bool  // every stream attempt is rejected as an auth failure
}

type walk struct {
	price, open, high, low float64
	prevClose, prevHigh    float64
	prevLow                float64
	volume                 int64
}

// Upstream always accepts the credential and streams a random walk per
// instrument.
type Upstream struct {
	p   Params
	now func() time.Time

	mu    sync.Mutex
	rng   *rand.Rand
	walks map[string]*walk
}

var _ interfaces.Upstream = (*Upstream)(nil)

func New(p Params) *Upstream {
	if p.BasePrice <= 0 {
		p.BasePrice = 1000
	}
	if p.Step <= 0 {
		p.Step = 500 * time.Millisecond
	}
	if p.VolumeMax < p.VolumeMin {
		p.VolumeMax = p.VolumeMin
	}
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	u := &Upstream{
		p:     p,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(seed)),
		walks: make(map[string]*walk, len(p.Instruments)),
	}
	for i, in := range p.Instruments {
		// spread instruments apart so they do not move in lockstep
		base := p.BasePrice * (1 + float64(i)*0.1)
		u.walks[in.Symbol] = &walk{
			price: base, open: base, high: base, low: base,
			prevClose: base * (1 + (u.rng.Float64()-0.5)*0.01),
			prevHigh:  base * 1.006,
			prevLow:   base * 0.994,
		}
	}
	return u
}

func (u *Upstream) Instruments() []types.Instrument {
	return append([]types.Instrument(nil), u.p.Instruments...)
}

func (u *Upstream) CheckCredential(ctx context.Context) error {
	return ctx.Err()
}

func (u *Upstream) Stream(ctx context.Context, events chan<- types.StreamEvent) error {
	if u.p.FailHandshake {
		return fmt.Errorf("%w: simulated handshake rejection", types.ErrAuthExpired)
	}

	select {
	case events <- types.StreamEvent{Kind: types.EventConnected}:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info(ctx, "Simulated stream started", "instruments", len(u.p.Instruments), "step", u.p.Step)

	ticker := time.NewTicker(u.p.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, raw := range u.step() {
				select {
				case events <- types.StreamEvent{Kind: types.EventTick, Tick: raw}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Poll advances the walk once and returns a snapshot.
func (u *Upstream) Poll(ctx context.Context) ([]types.RawTick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u.step(), nil
}

func (u *Upstream) step() []types.RawTick {
	u.mu.Lock()
	defer u.mu.Unlock()

	ts := u.now()
	out := make([]types.RawTick, 0, len(u.p.Instruments))
	for _, in := range u.p.Instruments {
		w := u.walks[in.Symbol]
		w.price = math.Max(0.05, w.price*(1+u.rng.NormFloat64()*u.p.Volatility))
		w.high = math.Max(w.high, w.price)
		w.low = math.Min(w.low, w.price)
		w.volume += u.p.VolumeMin
		if span := u.p.VolumeMax - u.p.VolumeMin; span > 0 {
			w.volume += u.rng.Int63n(span + 1)
		}

		pc, ph, pl := w.prevClose, w.prevHigh, w.prevLow
		out = append(out, types.RawTick{
			Token:     in.Token,
			Symbol:    in.Symbol,
			LastPrice: math.Round(w.price*100) / 100,
			Open:      w.open,
			High:      w.high,
			Low:       w.low,
			PrevClose: &pc,
			PrevHigh:  &ph,
			PrevLow:   &pl,
			Volume:    w.volume,
			Timestamp: ts,
		})
	}
	return out
}
