package engine

// Status is the connection lifecycle state of one engine session.
// Exactly one value is active at a time; transitions are driven by
// transport events, server messages and the reconnect timer.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusConnecting       Status = "connecting"
	StatusHandshake        Status = "handshake"
	StatusAwaitingSnapshot Status = "awaiting_snapshot"
	StatusLive             Status = "live"
	StatusError            Status = "error"
	StatusDisconnected     Status = "disconnected"
)

// Connected reports whether the transport under this status is usable
// for sending commands.
func (s Status) Connected() bool {
	switch s {
	case StatusHandshake, StatusAwaitingSnapshot, StatusLive, StatusError:
		return true
	}
	return false
}
