package signals

import (
	"fmt"
	"sort"

	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

// emaTrend compares price against the two shortest configured EMAs.
type emaTrend struct {
	fast, slow int
}

func newEMATrend(periods []int) emaTrend {
	ps := make([]int, 0, len(periods))
	for _, p := range periods {
		if p > 0 {
			ps = append(ps, p)
		}
	}
	sort.Ints(ps)
	s := emaTrend{fast: 20, slow: 50}
	if len(ps) > 0 {
		s.fast = ps[0]
	}
	for _, p := range ps {
		if p > s.fast {
			s.slow = p
			break
		}
	}
	return s
}

func (emaTrend) Name() string         { return "ema_trend" }
func (emaTrend) Family() types.Family { return types.FamilyTechnical }

func (s emaTrend) Evaluate(in indicators.Set) types.SignalResult {
	fast, ok1 := in.EMAAt(s.fast)
	slow, ok2 := in.EMAAt(s.slow)
	if !ok1 || !ok2 {
		return insufficient(s, fmt.Sprintf("EMA%d/EMA%d", s.fast, s.slow))
	}
	price := in.Tick.LastPrice
	dist := pct(price, slow)

	switch {
	case price > fast && fast > slow:
		conf := ta.Clamp(60+dist*20, 60, 95)
		if dist >= 1 {
			return result(s, types.StrongBuy, conf, fmt.Sprintf("price %.2f%% above EMA%d, EMA%d over EMA%d", dist, s.slow, s.fast, s.slow))
		}
		return result(s, types.Buy, conf, fmt.Sprintf("price above EMA%d > EMA%d", s.fast, s.slow))
	case price < fast && fast < slow:
		conf := ta.Clamp(60-dist*20, 60, 95)
		if dist <= -1 {
			return result(s, types.StrongSell, conf, fmt.Sprintf("price %.2f%% below EMA%d, EMA%d under EMA%d", -dist, s.slow, s.fast, s.slow))
		}
		return result(s, types.Sell, conf, fmt.Sprintf("price below EMA%d < EMA%d", s.fast, s.slow))
	}
	return neutral(s, 40, fmt.Sprintf("price between EMA%d and EMA%d", s.fast, s.slow))
}

// emaAlignment checks whether every defined EMA is stacked in order.
type emaAlignment struct{}

func (emaAlignment) Name() string         { return "ema_alignment" }
func (emaAlignment) Family() types.Family { return types.FamilyTechnical }

func (s emaAlignment) Evaluate(in indicators.Set) types.SignalResult {
	periods := make([]int, 0, len(in.EMA))
	for p := range in.EMA {
		periods = append(periods, p)
	}
	if len(periods) < 2 {
		return insufficient(s, "fewer than two EMAs defined")
	}
	sort.Ints(periods)

	up, down := 0, 0
	for i := 1; i < len(periods); i++ {
		short, long := in.EMA[periods[i-1]], in.EMA[periods[i]]
		switch {
		case short > long:
			up++
		case short < long:
			down++
		}
	}
	pairs := len(periods) - 1
	switch {
	case up == pairs && len(periods) >= 3:
		return result(s, types.StrongBuy, 85, fmt.Sprintf("%d EMAs in bullish order", len(periods)))
	case up == pairs:
		return result(s, types.Buy, 65, "EMAs in bullish order")
	case down == pairs && len(periods) >= 3:
		return result(s, types.StrongSell, 85, fmt.Sprintf("%d EMAs in bearish order", len(periods)))
	case down == pairs:
		return result(s, types.Sell, 65, "EMAs in bearish order")
	}
	return neutral(s, 30, fmt.Sprintf("mixed EMA order (%d up, %d down)", up, down))
}

type rsiSignal struct{}

func (rsiSignal) Name() string         { return "rsi" }
func (rsiSignal) Family() types.Family { return types.FamilyTechnical }

func (s rsiSignal) Evaluate(in indicators.Set) types.SignalResult {
	if !in.Has(indicators.NameRSI) {
		return insufficient(s, "RSI")
	}
	r := in.RSI
	switch {
	case r >= 70:
		return result(s, types.Sell, 50+(r-70)*1.5, fmt.Sprintf("overbought RSI %.1f", r))
	case r <= 30:
		return result(s, types.Buy, 50+(30-r)*1.5, fmt.Sprintf("oversold RSI %.1f", r))
	case r > 55:
		return result(s, types.Buy, 50+(r-55)*2, fmt.Sprintf("bullish RSI %.1f", r))
	case r < 45:
		return result(s, types.Sell, 50+(45-r)*2, fmt.Sprintf("bearish RSI %.1f", r))
	}
	return neutral(s, 40, fmt.Sprintf("RSI %.1f in neutral band", r))
}
