// Package signals holds the closed set of independent signal generators and the
// registry that runs them.
package signals

import (
	"context"
	"fmt"

	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/store"
	"mytradingsignal/internal/ta"
	"mytradingsignal/internal/types"
)

// Signal evaluates one independent reading from an indicator set.
// Implementations must be pure.
type Signal interface {
	Name() string
	Family() types.Family
	Evaluate(in indicators.Set) types.SignalResult
}

// All returns every signal in registry order.
func All(cfg store.IndicatorConfig) []Signal {
	return []Signal{
		newEMATrend(cfg.EMAPeriods),
		emaAlignment{},
		rsiSignal{},
		pivotPosition{},
		camarilla{},
		supportResistance{lookback: cfg.SwingLookback},
		previousDayLevels{},
		vwapPosition{},
		volumeSurge{},
		obvTrend{window: obvWindow},
		marketStructure{chunk: structureChunk},
		rangeBreakout{window: breakoutWindow},
		momentumScore{},
		livePriceAction{},
	}
}

type Registry struct {
	signals []Signal
}

// NewRegistry builds a registry; names must be unique.
func NewRegistry(signals []Signal) (*Registry, error) {
	seen := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate signal %q", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}
	return &Registry{signals: signals}, nil
}

// Names returns signal names in registry order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.signals))
	for i, s := range r.signals {
		out[i] = s.Name()
	}
	return out
}

// Families maps signal name to family.
func (r *Registry) Families() map[string]types.Family {
	out := make(map[string]types.Family, len(r.signals))
	for _, s := range r.signals {
		out[s.Name()] = s.Family()
	}
	return out
}

// Evaluate runs every signal in order. A panicking signal yields NEUTRAL/0 and
// does not affect the others.
func (r *Registry) Evaluate(ctx context.Context, in indicators.Set) []types.SignalResult {
	out := make([]types.SignalResult, 0, len(r.signals))
	for _, s := range r.signals {
		out = append(out, r.evaluateOne(ctx, s, in))
	}
	return out
}

func (r *Registry) evaluateOne(ctx context.Context, s Signal, in indicators.Set) (res types.SignalResult) {
	defer func() {
		if p := recover(); p != nil {
			logger.Warn(ctx, "Signal panicked", "signal", s.Name(), "symbol", in.Symbol, "panic", fmt.Sprint(p))
			res = neutral(s, 0, "evaluation failed")
		}
	}()

	res = s.Evaluate(in)
	res.Name = s.Name()
	res.Family = s.Family()
	res.Confidence = ta.Clamp(res.Confidence, 0, 100)
	if res.Direction == "" {
		res.Direction = types.Neutral
	}
	return res
}

func result(s Signal, d types.Direction, conf float64, status string) types.SignalResult {
	return types.SignalResult{
		Name:       s.Name(),
		Family:     s.Family(),
		Direction:  d,
		Confidence: ta.Clamp(conf, 0, 100),
		Status:     status,
	}
}

func neutral(s Signal, conf float64, status string) types.SignalResult {
	return result(s, types.Neutral, conf, status)
}

// insufficient is the result for a signal whose inputs are not defined yet.
func insufficient(s Signal, what string) types.SignalResult {
	return neutral(s, 0, "insufficient history: "+what)
}

// pct is the percentage distance of a from b.
func pct(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - b) / b * 100
}
