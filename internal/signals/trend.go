package signals

import (
	"fmt"
	"math"

	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

const (
	structureChunk = 5
	breakoutWindow = 15
)

// marketStructure compares highs and lows across three consecutive blocks of
// closed candles.
type marketStructure struct {
	chunk int
}

func (marketStructure) Name() string         { return "market_structure" }
func (marketStructure) Family() types.Family { return types.FamilyTrend }

func (s marketStructure) Evaluate(in indicators.Set) types.SignalResult {
	frozen := in.Frozen()
	need := 3 * s.chunk
	if len(frozen) < need {
		return insufficient(s, fmt.Sprintf("%d closed candles", need))
	}
	frozen = frozen[len(frozen)-need:]

	var highs, lows [3]float64
	for b := 0; b < 3; b++ {
		highs[b], lows[b] = math.Inf(-1), math.Inf(1)
		for _, c := range frozen[b*s.chunk : (b+1)*s.chunk] {
			highs[b] = math.Max(highs[b], c.High)
			lows[b] = math.Min(lows[b], c.Low)
		}
	}

	hh := highs[2] > highs[1]
	hl := lows[2] > lows[1]
	lh := highs[2] < highs[1]
	ll := lows[2] < lows[1]
	switch {
	case hh && hl && highs[1] > highs[0] && lows[1] > lows[0]:
		return result(s, types.StrongBuy, 80, "consistent higher highs and higher lows")
	case hh && hl:
		return result(s, types.Buy, 65, "higher high and higher low")
	case lh && ll && highs[1] < highs[0] && lows[1] < lows[0]:
		return result(s, types.StrongSell, 80, "consistent lower highs and lower lows")
	case lh && ll:
		return result(s, types.Sell, 65, "lower high and lower low")
	}
	return neutral(s, 35, "no clear structure")
}

// rangeBreakout measures how far price has left the recent consolidation range
// in units of ATR.
type rangeBreakout struct {
	window int
}

func (rangeBreakout) Name() string         { return "range_breakout" }
func (rangeBreakout) Family() types.Family { return types.FamilyTrend }

func (s rangeBreakout) Evaluate(in indicators.Set) types.SignalResult {
	frozen := in.Frozen()
	if len(frozen) < s.window || !in.Has(indicators.NameATR) || in.ATR <= 0 {
		return insufficient(s, fmt.Sprintf("%d closed candles and ATR", s.window))
	}
	frozen = frozen[len(frozen)-s.window:]
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range frozen {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	price := in.Tick.LastPrice

	switch {
	case price > hi:
		k := (price - hi) / in.ATR
		conf := ta.Clamp(55+k*20, 55, 90)
		if k >= 1 {
			return result(s, types.StrongBuy, conf, fmt.Sprintf("breakout %.1f ATR above %.2f", k, hi))
		}
		return result(s, types.Buy, conf, fmt.Sprintf("breakout above %.2f", hi))
	case price < lo:
		k := (lo - price) / in.ATR
		conf := ta.Clamp(55+k*20, 55, 90)
		if k >= 1 {
			return result(s, types.StrongSell, conf, fmt.Sprintf("breakdown %.1f ATR below %.2f", k, lo))
		}
		return result(s, types.Sell, conf, fmt.Sprintf("breakdown below %.2f", lo))
	}
	return neutral(s, 30, fmt.Sprintf("inside range %.2f-%.2f", lo, hi))
}
