package interfaces

import (
	"context"
	"time"

	"mytradingsignal/internal/types"
)

// AuthSource exposes the validity of the upstream access token.
type AuthSource interface {
	Valid() bool
	Age() time.Duration
	Token() string

	// Revalidated fires once per invalid -> valid transition.
	Revalidated() <-chan struct{}

	// Invalidate marks the current token as rejected by the upstream. It stays
	// invalid until a different token is loaded.
	Invalidate(ctx context.Context)
}

// SessionSource reports the market session phase decided by an external scheduler.
type SessionSource interface {
	Phase() types.SessionPhase
	Changes() <-chan types.SessionPhase
}

// Publisher fans messages out to subscribers. Publish must never block.
type Publisher interface {
	Publish(msg types.Message)
}

// HealthSource supplies the connection state carried by heartbeats.
type HealthSource interface {
	Snapshot() types.ConnectionSnapshot
}

// OutlookRecorder persists outlook changes.
type OutlookRecorder interface {
	Record(ctx context.Context, o types.Outlook) error
}
