package ta

import (
	"math"

	"mytradingsignal/internal/types"
)

// ErrInsufficientHistory is returned instead of a price fallback when a series
// is shorter than the indicator period.
var ErrInsufficientHistory = types.ErrInsufficientHistory

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// EMA seeds with the simple average of the first period closes and then applies
// ema = (close-ema)*k + ema with k = 2/(period+1) over the remainder.
func EMA(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period {
		return 0, ErrInsufficientHistory
	}
	ema := 0.0
	for _, c := range closes[:period] {
		ema += c
	}
	ema /= float64(period)
	k := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		ema = (c-ema)*k + ema
	}
	return ema, nil
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if n <= 0 || len(closes) < n+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(n)
}

// ROC is the percentage rate of change over n periods.
func ROC(closes []float64, n int) (float64, error) {
	if n <= 0 || len(closes) < n+1 {
		return 0, ErrInsufficientHistory
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0, ErrInsufficientHistory
	}
	return (closes[len(closes)-1] - base) / base * 100, nil
}

// MomentumScore maps a rate of change onto [0,100]; 50 is flat and each 1%
// move shifts the score by sensitivity points.
func MomentumScore(roc, sensitivity float64) float64 {
	return Clamp(50+roc*sensitivity, 0, 100)
}

// OBV returns the on-balance-volume series.
func OBV(closes, vols []float64) []float64 {
	if len(closes) == 0 || len(closes) != len(vols) {
		return nil
	}
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + vols[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - vols[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// Slope is the least-squares slope of the last n values.
func Slope(vals []float64, n int) float64 {
	if n < 2 || len(vals) < n {
		return math.NaN()
	}
	vals = vals[len(vals)-n:]
	var sx, sy, sxy, sxx float64
	for i, v := range vals {
		x := float64(i)
		sx += x
		sy += v
		sxy += x * v
		sxx += x * x
	}
	fn := float64(n)
	den := fn*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (fn*sxy - sx*sy) / den
}

func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
