package engineobs

import (
	"context"
	"time"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/trace"
	"mytradingsignal/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Ingest(ctx context.Context, raw types.RawTick) error {
	ctx, span := trace.StartSpan(ctx, "engine.Ingest")
	defer span.End()

	start := time.Now()

	err := oe.engine.Ingest(ctx, raw)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Tick ingestion failed", err,
			"symbol", raw.Symbol,
			"token", raw.Token,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	if logger.IsDebugEnabled() {
		logger.DebugSkip(ctx, 1, "Tick ingested",
			"symbol", raw.Symbol,
			"price", raw.LastPrice,
			"duration_us", time.Since(start).Microseconds(),
		)
	}
	return nil
}

func (oe *observableEngine) ResetSession(ctx context.Context) {
	op := logger.StartOperation(ctx, "engine.ResetSession")
	ctx = op.GetContext()
	defer op.End()

	logger.InfoSkip(ctx, 1, "Resetting session aggregates")
	oe.engine.ResetSession(ctx)
}

func (oe *observableEngine) Latest(symbol string) (types.Outlook, bool) {
	return oe.engine.Latest(symbol)
}
