// Package outlook folds signal results into the weighted overall outlook.
package outlook

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"mytradingsignal/internal/store"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

// Aggregator is stateless across calls; the same results always yield the
// same outlook.
type Aggregator struct {
	cfg      store.AggregationConfig
	families map[string]types.Family
	// structural weight total used to normalise breakdown risk
	structural float64
}

// New checks that the configured weight table covers exactly the registered
// signal names.
func New(cfg store.AggregationConfig, families map[string]types.Family) (*Aggregator, error) {
	var missing, unknown []string
	for name := range families {
		if _, ok := cfg.Weights[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range cfg.Weights {
		if _, ok := families[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(missing)
		sort.Strings(unknown)
		return nil, fmt.Errorf("weight table does not match signals: missing [%s], unknown [%s]",
			strings.Join(missing, ","), strings.Join(unknown, ","))
	}

	a := &Aggregator{cfg: cfg, families: families}
	for name, f := range families {
		if structural(f) {
			a.structural += cfg.Weights[name]
		}
	}
	return a, nil
}

func structural(f types.Family) bool {
	return f == types.FamilyZone || f == types.FamilyTrend
}

// Score maps a direction onto its signed aggregation score.
func (a *Aggregator) Score(d types.Direction) float64 {
	switch d {
	case types.StrongBuy:
		return a.cfg.StrongScore
	case types.Buy:
		return a.cfg.DirectionScore
	case types.Sell:
		return -a.cfg.DirectionScore
	case types.StrongSell:
		return -a.cfg.StrongScore
	}
	return a.cfg.NeutralScore
}

// Aggregate computes the outlook for one instrument.
func (a *Aggregator) Aggregate(symbol string, results []types.SignalResult, at time.Time) types.Outlook {
	o := types.Outlook{Symbol: symbol, Total: len(results), Time: at}

	var weighted, breakdown float64
	confs := make([]float64, 0, len(results))
	for _, r := range results {
		w := a.cfg.Weights[r.Name]
		conf := ta.Clamp(r.Confidence, 0, 100)
		weighted += a.Score(r.Direction) * (conf / 100) * w
		confs = append(confs, conf)

		switch {
		case r.Direction.Bullish():
			o.Bullish++
		case r.Direction.Bearish():
			o.Bearish++
			if structural(a.families[r.Name]) {
				breakdown += w * conf
			}
		default:
			o.NeutralCount++
		}
	}
	o.WeightedScore = round2(weighted / 100)
	o.Direction = a.direction(o.WeightedScore)
	o.Confidence = round2(ta.Clamp(math.Abs(o.WeightedScore), 0, 100))

	if o.Total > 0 {
		o.TrendPct = round2(float64(o.Bullish-o.Bearish) / float64(o.Total) * 100)
	}

	breakdownRisk := 0.0
	if a.structural > 0 {
		breakdownRisk = ta.Clamp(breakdown/a.structural, 0, 100)
	}
	spread := ta.Clamp(popStdDev(confs)*2, 0, 100)
	disagreement := 0.0
	if o.Total > 0 {
		disagreement = ta.Clamp(float64(min(o.Bullish, o.Bearish))/float64(o.Total)*200, 0, 100)
	}
	rc := a.cfg.Risk
	o.RiskScore = round2(ta.Clamp(rc.BreakdownWeight*breakdownRisk+rc.SpreadWeight*spread+rc.DisagreementWeight*disagreement, 0, 100))
	o.Risk = a.riskLevel(o.RiskScore)
	o.Recommendation = recommendation(o.Direction, o.Risk)
	return o
}

func (a *Aggregator) direction(score float64) types.Direction {
	switch {
	case score >= a.cfg.StrongBuyAbove:
		return types.StrongBuy
	case score >= a.cfg.BuyAbove:
		return types.Buy
	case score <= a.cfg.StrongSellBelow:
		return types.StrongSell
	case score <= a.cfg.SellBelow:
		return types.Sell
	}
	return types.Neutral
}

func (a *Aggregator) riskLevel(score float64) types.RiskLevel {
	switch {
	case score < a.cfg.Risk.LowBelow:
		return types.RiskLow
	case score > a.cfg.Risk.HighAbove:
		return types.RiskHigh
	}
	return types.RiskMedium
}

func recommendation(d types.Direction, r types.RiskLevel) string {
	var base string
	switch d {
	case types.StrongBuy:
		base = "Strong bullish alignment across signals"
	case types.Buy:
		base = "Bullish bias"
	case types.StrongSell:
		base = "Strong bearish alignment across signals"
	case types.Sell:
		base = "Bearish bias"
	default:
		base = "No clear edge, wait for confirmation"
	}
	switch r {
	case types.RiskHigh:
		return base + "; high risk, signals conflict"
	case types.RiskMedium:
		return base + "; moderate risk"
	}
	return base
}

func popStdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := ta.Mean(vals)
	s := 0.0
	for _, v := range vals {
		s += (v - m) * (v - m)
	}
	return math.Sqrt(s / float64(len(vals)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
