// Package ticks turns upstream payloads into canonical ticks.
package ticks

import (
	"fmt"
	"math"
	"time"

	"mytradingsignal/internal/types"
)

// Normalize validates raw and fills optional fields.
// Previous-session levels fall back to the current session's open/high/low,
// missing day levels fall back to the last price and a zero timestamp is
// replaced with receivedAt.
func Normalize(raw types.RawTick, receivedAt time.Time) (types.Tick, error) {
	if raw.Symbol == "" {
		return types.Tick{}, fmt.Errorf("%w: missing symbol (token %d)", types.ErrMalformedPayload, raw.Token)
	}
	if !validPrice(raw.LastPrice) {
		return types.Tick{}, fmt.Errorf("%w: %s last price %v", types.ErrMalformedPayload, raw.Symbol, raw.LastPrice)
	}
	if raw.Volume < 0 {
		return types.Tick{}, fmt.Errorf("%w: %s negative volume %d", types.ErrMalformedPayload, raw.Symbol, raw.Volume)
	}
	for _, v := range []float64{raw.Open, raw.High, raw.Low} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return types.Tick{}, fmt.Errorf("%w: %s day level %v", types.ErrMalformedPayload, raw.Symbol, v)
		}
	}

	open := orElse(raw.Open, raw.LastPrice)
	high := orElse(raw.High, raw.LastPrice)
	low := orElse(raw.Low, raw.LastPrice)
	if high < low {
		return types.Tick{}, fmt.Errorf("%w: %s high %.2f below low %.2f", types.ErrMalformedPayload, raw.Symbol, high, low)
	}

	prevClose, err := optional(raw.PrevClose, open, raw.Symbol, "prev close")
	if err != nil {
		return types.Tick{}, err
	}
	prevHigh, err := optional(raw.PrevHigh, high, raw.Symbol, "prev high")
	if err != nil {
		return types.Tick{}, err
	}
	prevLow, err := optional(raw.PrevLow, low, raw.Symbol, "prev low")
	if err != nil {
		return types.Tick{}, err
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	return types.Tick{
		Symbol:    raw.Symbol,
		Token:     raw.Token,
		LastPrice: raw.LastPrice,
		Open:      open,
		High:      high,
		Low:       low,
		PrevClose: prevClose,
		PrevHigh:  prevHigh,
		PrevLow:   prevLow,
		Volume:    raw.Volume,
		Timestamp: ts,
	}, nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

func orElse(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func optional(p *float64, fallback float64, symbol, field string) (float64, error) {
	if p == nil || *p == 0 {
		return fallback, nil
	}
	if !validPrice(*p) {
		return 0, fmt.Errorf("%w: %s %s %v", types.ErrMalformedPayload, symbol, field, *p)
	}
	return *p, nil
}
