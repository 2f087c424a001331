package interfaces

import (
	"context"

	"mytradingsignal/internal/types"
)

// TickSink receives raw upstream ticks from the connection manager.
type TickSink interface {
	Ingest(ctx context.Context, raw types.RawTick) error
}

// Engine is the ingestion pipeline: normalize, aggregate, evaluate, broadcast.
type Engine interface {
	TickSink

	// ResetSession clears session-scoped aggregates (VWAP, pivots, candles).
	ResetSession(ctx context.Context)

	// Latest returns the last computed outlook for a symbol.
	Latest(symbol string) (types.Outlook, bool)
}
