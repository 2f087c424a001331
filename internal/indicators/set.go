package indicators

import (
	"fmt"

	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

// Names used in Set.Missing.
const (
	NameVWAP      = "vwap"
	NameRSI       = "rsi"
	NameATR       = "atr"
	NameMomentum  = "momentum"
	NameAvgVolume = "avg_volume"
	NamePivots    = "pivots"
	NameCamarilla = "camarilla"
)

// EMAName is the Missing entry for an undefined EMA period.
func EMAName(period int) string { return fmt.Sprintf("ema_%d", period) }

// Set is the indicator snapshot for one instrument after one tick. Quantities
// that could not be computed hold zero and are listed in Missing.
type Set struct {
	Symbol    string
	Tick      types.Tick
	EMA       map[int]float64
	VWAP      float64
	RSI       float64
	ATR       float64
	Momentum  float64
	AvgVolume float64
	Pivots    ta.Pivots
	Camarilla ta.Camarilla
	// Candles is the snapshot the set was computed from, oldest first.
	Candles []types.Candle
	Missing []string
}

// Has reports whether name was computed.
func (s Set) Has(name string) bool {
	for _, m := range s.Missing {
		if m == name {
			return false
		}
	}
	return true
}

// EMAAt returns the EMA for period when it is defined.
func (s Set) EMAAt(period int) (float64, bool) {
	v, ok := s.EMA[period]
	return v, ok
}

// Count is the number of candles behind the set.
func (s Set) Count() int { return len(s.Candles) }

// Frozen returns the closed candles, excluding the forming one.
func (s Set) Frozen() []types.Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	return s.Candles[:len(s.Candles)-1]
}
