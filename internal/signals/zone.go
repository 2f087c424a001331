package signals

import (
	"fmt"
	"math"

	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/types"
)

type pivotPosition struct{}

func (pivotPosition) Name() string         { return "pivot_position" }
func (pivotPosition) Family() types.Family { return types.FamilyZone }

func (s pivotPosition) Evaluate(in indicators.Set) types.SignalResult {
	if !in.Has(indicators.NamePivots) {
		return insufficient(s, "previous session levels")
	}
	p, price := in.Pivots, in.Tick.LastPrice
	switch {
	case price > p.R2:
		return result(s, types.StrongBuy, 85, fmt.Sprintf("above R2 %.2f", p.R2))
	case price > p.R1:
		return result(s, types.Buy, 70, fmt.Sprintf("above R1 %.2f", p.R1))
	case price > p.P:
		return result(s, types.Buy, 55, fmt.Sprintf("above pivot %.2f", p.P))
	case price < p.S2:
		return result(s, types.StrongSell, 85, fmt.Sprintf("below S2 %.2f", p.S2))
	case price < p.S1:
		return result(s, types.Sell, 70, fmt.Sprintf("below S1 %.2f", p.S1))
	case price < p.P:
		return result(s, types.Sell, 55, fmt.Sprintf("below pivot %.2f", p.P))
	}
	return neutral(s, 40, "at pivot")
}

// camarilla treats H3/L3 as reversal levels and H4/L4 as breakout levels.
type camarilla struct{}

func (camarilla) Name() string         { return "camarilla" }
func (camarilla) Family() types.Family { return types.FamilyZone }

func (s camarilla) Evaluate(in indicators.Set) types.SignalResult {
	if !in.Has(indicators.NameCamarilla) {
		return insufficient(s, "previous session levels")
	}
	c, price := in.Camarilla, in.Tick.LastPrice
	switch {
	case price > c.H4:
		return result(s, types.StrongBuy, 85, fmt.Sprintf("breakout above H4 %.2f", c.H4))
	case price < c.L4:
		return result(s, types.StrongSell, 85, fmt.Sprintf("breakdown below L4 %.2f", c.L4))
	case price >= c.H3:
		return result(s, types.Sell, 60, fmt.Sprintf("reversal zone H3 %.2f to H4", c.H3))
	case price <= c.L3:
		return result(s, types.Buy, 60, fmt.Sprintf("reversal zone L3 %.2f to L4", c.L3))
	}
	return neutral(s, 40, "inside L3-H3")
}

// supportResistance uses swing extremes of recent closed candles.
type supportResistance struct {
	lookback int
}

const minSwingCandles = 5

func (supportResistance) Name() string         { return "support_resistance" }
func (supportResistance) Family() types.Family { return types.FamilyZone }

func (s supportResistance) Evaluate(in indicators.Set) types.SignalResult {
	frozen := in.Frozen()
	if len(frozen) < minSwingCandles {
		return insufficient(s, fmt.Sprintf("%d closed candles", minSwingCandles))
	}
	if s.lookback > 0 && len(frozen) > s.lookback {
		frozen = frozen[len(frozen)-s.lookback:]
	}
	res, sup := math.Inf(-1), math.Inf(1)
	for _, c := range frozen {
		res = math.Max(res, c.High)
		sup = math.Min(sup, c.Low)
	}
	price := in.Tick.LastPrice
	span := res - sup

	switch {
	case price > res:
		return result(s, types.Buy, 75, fmt.Sprintf("broke resistance %.2f", res))
	case price < sup:
		return result(s, types.Sell, 75, fmt.Sprintf("broke support %.2f", sup))
	case span == 0:
		return neutral(s, 20, "flat range")
	}
	pos := (price - sup) / span
	switch {
	case pos <= 0.2:
		return result(s, types.Buy, 55, fmt.Sprintf("near support %.2f", sup))
	case pos >= 0.8:
		return result(s, types.Sell, 55, fmt.Sprintf("near resistance %.2f", res))
	}
	return neutral(s, 35, "mid range")
}

type previousDayLevels struct{}

func (previousDayLevels) Name() string         { return "previous_day_levels" }
func (previousDayLevels) Family() types.Family { return types.FamilyZone }

func (s previousDayLevels) Evaluate(in indicators.Set) types.SignalResult {
	t := in.Tick
	if t.PrevHigh <= 0 || t.PrevLow <= 0 || t.PrevClose <= 0 {
		return insufficient(s, "previous session levels")
	}
	price := t.LastPrice
	switch {
	case price > t.PrevHigh:
		if pct(price, t.PrevHigh) >= 0.5 {
			return result(s, types.StrongBuy, 80, fmt.Sprintf("well above previous high %.2f", t.PrevHigh))
		}
		return result(s, types.Buy, 70, fmt.Sprintf("above previous high %.2f", t.PrevHigh))
	case price < t.PrevLow:
		if pct(price, t.PrevLow) <= -0.5 {
			return result(s, types.StrongSell, 80, fmt.Sprintf("well below previous low %.2f", t.PrevLow))
		}
		return result(s, types.Sell, 70, fmt.Sprintf("below previous low %.2f", t.PrevLow))
	case price > t.PrevClose:
		return result(s, types.Buy, 45, "above previous close")
	case price < t.PrevClose:
		return result(s, types.Sell, 45, "below previous close")
	}
	return neutral(s, 30, "at previous close")
}
