package signals

import (
	"fmt"
	"math"

	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

type momentumScore struct{}

func (momentumScore) Name() string         { return "momentum_score" }
func (momentumScore) Family() types.Family { return types.FamilyMomentum }

func (s momentumScore) Evaluate(in indicators.Set) types.SignalResult {
	if !in.Has(indicators.NameMomentum) {
		return insufficient(s, "momentum")
	}
	m := in.Momentum
	status := fmt.Sprintf("momentum %.0f", m)
	switch {
	case m >= 80:
		return result(s, types.StrongBuy, m, status)
	case m >= 60:
		return result(s, types.Buy, m, status)
	case m <= 20:
		return result(s, types.StrongSell, 100-m, status)
	case m <= 40:
		return result(s, types.Sell, 100-m, status)
	}
	return neutral(s, 40, status)
}

// livePriceAction combines the day change with where price sits in the day's
// range.
type livePriceAction struct{}

func (livePriceAction) Name() string         { return "live_price_action" }
func (livePriceAction) Family() types.Family { return types.FamilyMomentum }

func (s livePriceAction) Evaluate(in indicators.Set) types.SignalResult {
	t := in.Tick
	if len(in.Candles) == 0 || t.PrevClose <= 0 {
		return insufficient(s, "live candle")
	}
	change := t.Change()
	pos := 0.5
	if t.High > t.Low {
		pos = (t.LastPrice - t.Low) / (t.High - t.Low)
	}
	conf := ta.Clamp(50+math.Abs(change)*25, 50, 90)
	status := fmt.Sprintf("%+.2f%% on day, at %.0f%% of range", change, pos*100)

	switch {
	case change > 1 && pos >= 0.9:
		return result(s, types.StrongBuy, conf, status)
	case change > 0.25 && pos >= 0.6:
		return result(s, types.Buy, conf, status)
	case change < -1 && pos <= 0.1:
		return result(s, types.StrongSell, conf, status)
	case change < -0.25 && pos <= 0.4:
		return result(s, types.Sell, conf, status)
	}
	return neutral(s, 35, status)
}
