package signals

import (
	"fmt"
	"math"

	"mytradingsignal/internal/candles"
	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

const obvWindow = 10

type vwapPosition struct{}

func (vwapPosition) Name() string         { return "vwap_position" }
func (vwapPosition) Family() types.Family { return types.FamilyVolume }

func (s vwapPosition) Evaluate(in indicators.Set) types.SignalResult {
	if !in.Has(indicators.NameVWAP) {
		return insufficient(s, "session volume")
	}
	dev := pct(in.Tick.LastPrice, in.VWAP)
	switch {
	case math.Abs(dev) < 0.05:
		return neutral(s, 40, fmt.Sprintf("at VWAP %.2f", in.VWAP))
	case dev > 0:
		return result(s, types.Buy, ta.Clamp(55+dev*40, 55, 90), fmt.Sprintf("%.2f%% above VWAP", dev))
	}
	return result(s, types.Sell, ta.Clamp(55-dev*40, 55, 90), fmt.Sprintf("%.2f%% below VWAP", -dev))
}

// volumeSurge compares the last closed candle's volume to the rolling average
// and takes its direction from that candle's body.
type volumeSurge struct{}

func (volumeSurge) Name() string         { return "volume_surge" }
func (volumeSurge) Family() types.Family { return types.FamilyVolume }

func (s volumeSurge) Evaluate(in indicators.Set) types.SignalResult {
	frozen := in.Frozen()
	if !in.Has(indicators.NameAvgVolume) || len(frozen) == 0 {
		return insufficient(s, "average volume")
	}
	if in.AvgVolume <= 0 {
		return neutral(s, 0, "no traded volume")
	}
	last := frozen[len(frozen)-1]
	ratio := last.Vol / in.AvgVolume
	if ratio < 1.5 {
		return neutral(s, 30, fmt.Sprintf("volume %.1fx average", ratio))
	}
	conf := ta.Clamp(50+(ratio-1.5)*20, 50, 90)
	strong := ratio >= 3
	switch {
	case last.Close > last.Open && strong:
		return result(s, types.StrongBuy, conf, fmt.Sprintf("%.1fx volume on up candle", ratio))
	case last.Close > last.Open:
		return result(s, types.Buy, conf, fmt.Sprintf("%.1fx volume on up candle", ratio))
	case last.Close < last.Open && strong:
		return result(s, types.StrongSell, conf, fmt.Sprintf("%.1fx volume on down candle", ratio))
	case last.Close < last.Open:
		return result(s, types.Sell, conf, fmt.Sprintf("%.1fx volume on down candle", ratio))
	}
	return neutral(s, 35, fmt.Sprintf("%.1fx volume on doji", ratio))
}

// obvTrend reads the slope of on-balance volume scaled by average volume.
type obvTrend struct {
	window int
}

func (obvTrend) Name() string         { return "obv_trend" }
func (obvTrend) Family() types.Family { return types.FamilyVolume }

func (s obvTrend) Evaluate(in indicators.Set) types.SignalResult {
	if len(in.Candles) < s.window {
		return insufficient(s, fmt.Sprintf("%d candles", s.window))
	}
	vols := candles.Volumes(in.Candles)
	obv := ta.OBV(candles.Closes(in.Candles), vols)
	avg := ta.Mean(vols[len(vols)-s.window:])
	if avg <= 0 {
		return neutral(s, 0, "no traded volume")
	}
	slope := ta.Slope(obv, s.window) / avg
	switch {
	case slope > 0.1:
		return result(s, types.Buy, ta.Clamp(50+slope*50, 50, 85), "OBV rising")
	case slope < -0.1:
		return result(s, types.Sell, ta.Clamp(50-slope*50, 50, 85), "OBV falling")
	}
	return neutral(s, 35, "OBV flat")
}
