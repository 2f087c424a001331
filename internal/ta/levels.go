package ta

import "github.com/shopspring/decimal"

// Pivots are the classic floor-trader levels from the previous session.
type Pivots struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// Camarilla bands: H3/L3 is the narrow reversal band, H4/L4 the wide breakout band.
type Camarilla struct {
	H3 float64 `json:"h3"`
	H4 float64 `json:"h4"`
	L3 float64 `json:"l3"`
	L4 float64 `json:"l4"`
}

func ClassicPivots(high, low, close, tick float64) Pivots {
	p := (high + low + close) / 3
	r := high - low
	return Pivots{
		P:  RoundToTick(p, tick),
		R1: RoundToTick(2*p-low, tick),
		R2: RoundToTick(p+r, tick),
		R3: RoundToTick(high+2*(p-low), tick),
		S1: RoundToTick(2*p-high, tick),
		S2: RoundToTick(p-r, tick),
		S3: RoundToTick(low-2*(high-p), tick),
	}
}

func CamarillaBands(high, low, close, tick float64) Camarilla {
	r := (high - low) * 1.1
	return Camarilla{
		H3: RoundToTick(close+r/4, tick),
		H4: RoundToTick(close+r/2, tick),
		L3: RoundToTick(close-r/4, tick),
		L4: RoundToTick(close-r/2, tick),
	}
}

// RoundToTick rounds v to the nearest multiple of tick in decimal arithmetic so
// levels compare exactly against exchange prices.
func RoundToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(v).Div(t).Round(0).Mul(t).InexactFloat64()
}
