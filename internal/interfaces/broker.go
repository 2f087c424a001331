package interfaces

import (
	"context"

	"mytradingsignal/internal/types"
)

// Upstream is the market-data provider behind the connection manager.
type Upstream interface {
	// CheckCredential is a lightweight call that validates the credential
	// without opening the streaming connection.
	CheckCredential(ctx context.Context) error

	// Stream performs the streaming handshake and delivers events until ctx is
	// cancelled. It returns once the stream has been torn down. Sends on
	// events must also select on ctx.
	Stream(ctx context.Context, events chan<- types.StreamEvent) error

	// Poll fetches one REST snapshot of every tracked instrument.
	Poll(ctx context.Context) ([]types.RawTick, error)

	// Instruments lists the tracked instruments.
	Instruments() []types.Instrument
}
