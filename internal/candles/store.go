// Package candles builds fixed-interval OHLCV bars from ticks and keeps a
// bounded per-instrument history.
package candles

import (
	"sync"
	"time"

	"mytradingsignal/internal/types"
)

// Store holds one ring of frozen candles plus the forming candle per symbol.
// The ingestion path is the only writer; readers get copies.
type Store struct {
	interval time.Duration
	maxSize  int

	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	ring  []types.Candle
	head  int // index of the oldest frozen candle
	count int
	open  *types.Candle

	lastCumVol int64
	hasCumVol  bool
}

// New creates a store. maxSize bounds frozen plus forming candles per symbol.
func New(interval time.Duration, maxSize int) *Store {
	if maxSize < 2 {
		maxSize = 2
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Store{
		interval: interval,
		maxSize:  maxSize,
		series:   make(map[string]*series),
	}
}

// Interval returns the candle width.
func (s *Store) Interval() time.Duration { return s.interval }

// MaxSize returns the per-symbol bound.
func (s *Store) MaxSize() int { return s.maxSize }

// Update folds a tick into the forming candle. When the tick opens a new
// interval the previous candle is frozen into history and returned.
func (s *Store) Update(t types.Tick) *types.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[t.Symbol]
	if !ok {
		sr = &series{ring: make([]types.Candle, s.maxSize-1)}
		s.series[t.Symbol] = sr
	}

	vol := sr.volumeDelta(t.Volume)
	start := t.Timestamp.Truncate(s.interval)

	if sr.open != nil && start.Before(sr.open.Start) {
		// late tick for an interval that is already frozen
		return nil
	}

	if sr.open != nil && start.Equal(sr.open.Start) {
		c := sr.open
		if t.LastPrice > c.High {
			c.High = t.LastPrice
		}
		if t.LastPrice < c.Low {
			c.Low = t.LastPrice
		}
		c.Close = t.LastPrice
		c.Vol += vol
		c.Ticks++
		return nil
	}

	var closed *types.Candle
	if sr.open != nil {
		frozen := *sr.open
		sr.push(frozen)
		closed = &frozen
	}
	sr.open = &types.Candle{
		Symbol: t.Symbol,
		Start:  start,
		Open:   t.LastPrice,
		High:   t.LastPrice,
		Low:    t.LastPrice,
		Close:  t.LastPrice,
		Vol:    vol,
		Ticks:  1,
	}
	return closed
}

// volumeDelta converts cumulative day volume into per-tick traded volume.
// The first tick of a series, or a cumulative reset, contributes zero.
func (sr *series) volumeDelta(cum int64) float64 {
	if !sr.hasCumVol || cum < sr.lastCumVol {
		sr.lastCumVol = cum
		sr.hasCumVol = true
		return 0
	}
	d := cum - sr.lastCumVol
	sr.lastCumVol = cum
	return float64(d)
}

func (sr *series) push(c types.Candle) {
	capacity := len(sr.ring)
	if sr.count < capacity {
		sr.ring[(sr.head+sr.count)%capacity] = c
		sr.count++
		return
	}
	// full: overwrite the oldest
	sr.ring[sr.head] = c
	sr.head = (sr.head + 1) % capacity
}

// Snapshot returns a copy of the frozen history, oldest first, followed by the
// forming candle if there is one.
func (s *Store) Snapshot(symbol string) []types.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok {
		return nil
	}
	n := sr.count
	if sr.open != nil {
		n++
	}
	out := make([]types.Candle, 0, n)
	for i := 0; i < sr.count; i++ {
		out = append(out, sr.ring[(sr.head+i)%len(sr.ring)])
	}
	if sr.open != nil {
		out = append(out, *sr.open)
	}
	return out
}

// Len returns frozen plus forming candles for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[symbol]
	if !ok {
		return 0
	}
	if sr.open != nil {
		return sr.count + 1
	}
	return sr.count
}

// Reset drops all candles for symbol.
func (s *Store) Reset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.series, symbol)
}

// ResetAll drops every series.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make(map[string]*series)
}

// Closes extracts close prices.
func Closes(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// HLC extracts highs, lows and closes.
func HLC(cs []types.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(cs))
	lows = make([]float64, len(cs))
	closes = make([]float64, len(cs))
	for i, c := range cs {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return highs, lows, closes
}

// Volumes extracts volumes.
func Volumes(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Vol
	}
	return out
}
