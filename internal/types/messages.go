package types

import "time"

// Broadcast message discriminators.
const (
	MsgTick             = "tick"
	MsgSignalUpdate     = "signal_update"
	MsgOutlookUpdate    = "outlook_update"
	MsgConnectionStatus = "connection_status"
	MsgHeartbeat        = "heartbeat"
)

// Message is anything the broadcast hub can fan out.
type Message interface {
	MessageType() string
	// CacheKey identifies the last-value slot; empty means not cached.
	CacheKey() string
}

type TickMessage struct {
	Type string `json:"type"`
	Tick
}

func NewTickMessage(t Tick) TickMessage { return TickMessage{Type: MsgTick, Tick: t} }

func (m TickMessage) MessageType() string { return m.Type }
func (m TickMessage) CacheKey() string    { return m.Type + ":" + m.Symbol }

type SignalUpdateMessage struct {
	Type    string         `json:"type"`
	Symbol  string         `json:"instrument"`
	Signals []SignalResult `json:"signals"`
	Time    time.Time      `json:"timestamp"`
}

func NewSignalUpdate(symbol string, results []SignalResult, at time.Time) SignalUpdateMessage {
	return SignalUpdateMessage{Type: MsgSignalUpdate, Symbol: symbol, Signals: results, Time: at}
}

func (m SignalUpdateMessage) MessageType() string { return m.Type }
func (m SignalUpdateMessage) CacheKey() string    { return m.Type + ":" + m.Symbol }

type OutlookMessage struct {
	Type string `json:"type"`
	Outlook
}

func NewOutlookMessage(o Outlook) OutlookMessage {
	return OutlookMessage{Type: MsgOutlookUpdate, Outlook: o}
}

func (m OutlookMessage) MessageType() string { return m.Type }
func (m OutlookMessage) CacheKey() string    { return m.Type + ":" + m.Symbol }

type ConnectionStatusMessage struct {
	Type          string          `json:"type"`
	Mode          ConnectionState `json:"mode"`
	Quality       Quality         `json:"quality"`
	Message       string          `json:"message"`
	LoginRequired bool            `json:"login_required"`
	Time          time.Time       `json:"timestamp"`
}

func NewConnectionStatus(mode ConnectionState, q Quality, msg string, loginRequired bool, at time.Time) ConnectionStatusMessage {
	return ConnectionStatusMessage{
		Type:          MsgConnectionStatus,
		Mode:          mode,
		Quality:       q,
		Message:       msg,
		LoginRequired: loginRequired,
		Time:          at,
	}
}

func (m ConnectionStatusMessage) MessageType() string { return m.Type }
func (m ConnectionStatusMessage) CacheKey() string    { return m.Type }

type HeartbeatMessage struct {
	Type        string             `json:"type"`
	Connections int                `json:"connections"`
	Phase       SessionPhase       `json:"market_phase"`
	Health      ConnectionSnapshot `json:"health"`
	Dropped     uint64             `json:"dropped_messages"`
	Uptime      string             `json:"uptime"`
	Time        time.Time          `json:"timestamp"`
}

func (m HeartbeatMessage) MessageType() string { return m.Type }
func (m HeartbeatMessage) CacheKey() string    { return "" }
