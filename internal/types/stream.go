package types

type StreamEventKind int

const (
	EventTick StreamEventKind = iota
	EventConnected
	EventError
	EventClosed
)

func (k StreamEventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventConnected:
		return "connected"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return "unknown"
}

// StreamEvent carries either a tick or a classified error from the live channel.
// Upstream adapters translate their callbacks into these so a single goroutine
// can own the connection state.
type StreamEvent struct {
	Kind StreamEventKind
	Tick RawTick
	Err  error
}
