package transcription

import "time"

// ConnectionState is the lifecycle of one logical session. A session never
// skips Connecting or HandshakePending on its way to Connected; Closing is
// reachable from every non-Disconnected state.
type ConnectionState string

const (
	StateDisconnected     ConnectionState = "disconnected"
	StateConnecting       ConnectionState = "connecting"
	StateHandshakePending ConnectionState = "handshake-pending"
	StateConnected        ConnectionState = "connected"
	StateClosing          ConnectionState = "closing"
)

// session holds all mutable per-stream state. It is owned exclusively by the
// controller and only touched under the controller's lock.
type session struct {
	id           string
	state        ConnectionState
	retryCount   int
	lastOutbound time.Time
}
