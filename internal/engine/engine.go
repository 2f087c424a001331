// Package engine is the ingestion pipeline: every raw tick is normalized,
// folded into candles, run through the indicator engine and signal registry,
// aggregated into an outlook and broadcast.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mytradingsignal/internal/candles"
	"mytradingsignal/internal/indicators"
	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/outlook"
	"mytradingsignal/internal/signals"
	"mytradingsignal/internal/store"
	"mytradingsignal/internal/ticks"
	"mytradingsignal/internal/types"
)

type Engine struct {
	candles    *candles.Store
	indicators *indicators.Engine
	registry   *signals.Registry
	aggregator *outlook.Aggregator
	pub        interfaces.Publisher
	recorder   interfaces.OutlookRecorder
	now        func() time.Time

	// mu serializes ingestion with session resets
	mu sync.Mutex

	latestMu sync.RWMutex
	latest   map[string]types.Outlook
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg *store.Config, pub interfaces.Publisher) (*Engine, error) {
	reg, err := signals.NewRegistry(signals.All(cfg.Indicators))
	if err != nil {
		return nil, fmt.Errorf("signal registry: %w", err)
	}
	agg, err := outlook.New(cfg.Aggregation, reg.Families())
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	return &Engine{
		candles:    candles.New(store.Seconds(cfg.Candles.IntervalSeconds), cfg.Candles.MaxPerInstrument),
		indicators: indicators.New(cfg.Indicators, cfg.Location()),
		registry:   reg,
		aggregator: agg,
		pub:        pub,
		now:        time.Now,
		latest:     make(map[string]types.Outlook),
	}, nil
}

// SetRecorder journals every outlook whose direction or risk level changes.
// r runs on the ingestion path; slow recorders belong behind journal.Writer.
func (e *Engine) SetRecorder(r interfaces.OutlookRecorder) { e.recorder = r }

// Ingest runs one raw tick through the pipeline. A malformed payload is
// dropped and returned as an error; nothing partial is published.
func (e *Engine) Ingest(ctx context.Context, raw types.RawTick) error {
	began := time.Now()

	tick, err := ticks.Normalize(raw, e.now())
	if err != nil {
		metrics.MalformedTotal.Inc()
		logger.Warn(ctx, "Dropping malformed tick", "symbol", raw.Symbol, "token", raw.Token, "error", err)
		return err
	}

	e.mu.Lock()
	closed := e.candles.Update(tick)
	snap := e.candles.Snapshot(tick.Symbol)
	set := e.indicators.Compute(tick, snap, closed)
	results := e.registry.Evaluate(ctx, set)
	o := e.aggregator.Aggregate(tick.Symbol, results, tick.Timestamp)
	e.mu.Unlock()

	if closed != nil {
		logger.Debug(ctx, "Candle closed", "symbol", tick.Symbol, "start", closed.Start,
			"open", closed.Open, "high", closed.High, "low", closed.Low, "close", closed.Close,
			"volume", closed.Vol, "indicators_missing", len(set.Missing))
	}

	prev, seen := e.remember(o)
	if !seen || prev.Direction != o.Direction || prev.Risk != o.Risk {
		logger.Outlook(ctx, o.Symbol, string(o.Direction), o.Confidence, string(o.Risk),
			"weighted_score", o.WeightedScore,
			"bullish", o.Bullish,
			"bearish", o.Bearish,
			"neutral", o.NeutralCount,
			"recommendation", o.Recommendation)
		if e.recorder != nil {
			if err := e.recorder.Record(ctx, o); err != nil {
				logger.Warn(ctx, "Failed to journal outlook", "symbol", o.Symbol, "error", err)
			}
		}
	}

	e.pub.Publish(types.NewTickMessage(tick))
	e.pub.Publish(types.NewSignalUpdate(tick.Symbol, results, tick.Timestamp))
	e.pub.Publish(types.NewOutlookMessage(o))

	metrics.PipelineSeconds.Observe(time.Since(began).Seconds())
	return nil
}

func (e *Engine) remember(o types.Outlook) (types.Outlook, bool) {
	e.latestMu.Lock()
	defer e.latestMu.Unlock()
	prev, ok := e.latest[o.Symbol]
	e.latest[o.Symbol] = o
	return prev, ok
}

// ResetSession drops candles and session aggregates for every instrument. The
// last outlook is kept so subscribers still see it until new ticks arrive.
func (e *Engine) ResetSession(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candles.ResetAll()
	e.indicators.ResetAll()
	logger.Info(ctx, "Session aggregates reset")
}

func (e *Engine) Latest(symbol string) (types.Outlook, bool) {
	e.latestMu.RLock()
	defer e.latestMu.RUnlock()
	o, ok := e.latest[symbol]
	return o, ok
}
