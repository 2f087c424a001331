package types

import "time"

type ConnectionState string

const (
	StateUnvalidated     ConnectionState = "UNVALIDATED"
	StateAuthExpired     ConnectionState = "AUTH_EXPIRED"
	StateConnecting      ConnectionState = "CONNECTING"
	StateLive            ConnectionState = "LIVE"
	StateDegradedPolling ConnectionState = "DEGRADED_POLLING"
	StateStopped         ConnectionState = "STOPPED"
)

// Ordinal gives each state a stable number for gauges.
func (s ConnectionState) Ordinal() float64 {
	switch s {
	case StateUnvalidated:
		return 0
	case StateAuthExpired:
		return 1
	case StateConnecting:
		return 2
	case StateLive:
		return 3
	case StateDegradedPolling:
		return 4
	case StateStopped:
		return 5
	}
	return -1
}

type Quality string

const (
	QualityExcellent Quality = "EXCELLENT"
	QualityDegraded  Quality = "DEGRADED"
	QualityPoor      Quality = "POOR"
)

type SessionPhase string

const (
	PhasePreOpen SessionPhase = "PRE_OPEN"
	PhaseLive    SessionPhase = "LIVE"
	PhaseClosed  SessionPhase = "CLOSED"
)

// Active reports whether upstream data is expected in this phase.
func (p SessionPhase) Active() bool { return p == PhasePreOpen || p == PhaseLive }

// ConnectionSnapshot is a read-only copy of the connection manager's state.
type ConnectionSnapshot struct {
	State             ConnectionState `json:"state"`
	Quality           Quality         `json:"quality"`
	AuthFailures      int             `json:"auth_failures"`
	TransientFailures int             `json:"transient_failures"`
	LastSuccess       time.Time       `json:"last_success,omitempty"`
	LastTick          time.Time       `json:"last_tick,omitempty"`
	StaleInstruments  []string        `json:"stale_instruments,omitempty"`
	Handshakes        int             `json:"handshakes"`
	Since             time.Time       `json:"since"`
}
