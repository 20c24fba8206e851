package transcription

import (
	"context"
	"time"

	"github.com/koscakluka/scribe-core/core/connection"
	"github.com/koscakluka/scribe-core/core/protocol"
)

const (
	defaultFinalizeTimeout   = 1500 * time.Millisecond
	defaultHandshakeTimeout  = 5 * time.Second
	defaultWatchdogThreshold = 10 * time.Second
	defaultSilenceWindow     = 5 * time.Second
)

// Transport is the session link the controller drives. The default is the
// websocket transport in [connection]; tests substitute their own.
type Transport interface {
	SetHandlers(handlers connection.Handlers)
	Connect(ctx context.Context) error
	Send(msg protocol.Message) error
	Close() error
	StartWatchdog()
	StopWatchdog()
}

type controllerOptions struct {
	serverURL      string
	authToken      string
	tokenPlacement connection.TokenPlacement
	transport      Transport

	finalizeTimeout   time.Duration
	handshakeTimeout  time.Duration
	watchdogThreshold time.Duration
	silenceWindow     time.Duration
	maxRetries        int

	onUtterance    func(utterance Utterance)
	onWord         func(word Word)
	onStateChanged func(state ConnectionState)
	onError        func(err *connection.ConnectionError)
}

type ControllerOption func(*controllerOptions)

// WithServerURL sets the websocket endpoint of the transcription server.
func WithServerURL(url string) ControllerOption {
	return func(o *controllerOptions) { o.serverURL = url }
}

// WithAuthToken attaches an opaque bearer credential to the connection. The
// controller never inspects or refreshes it.
func WithAuthToken(token string, placement connection.TokenPlacement) ControllerOption {
	return func(o *controllerOptions) {
		o.authToken = token
		o.tokenPlacement = placement
	}
}

// WithTransport substitutes the session transport, mostly for tests.
func WithTransport(transport Transport) ControllerOption {
	return func(o *controllerOptions) { o.transport = transport }
}

// WithFinalizeTimeout overrides the quiet period after an end-of-word signal
// before the pending utterance is considered complete (default 1.5s).
func WithFinalizeTimeout(timeout time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.finalizeTimeout = timeout }
}

// WithHandshakeTimeout overrides how long to wait for the server handshake
// after the physical connect (default 5s).
func WithHandshakeTimeout(timeout time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.handshakeTimeout = timeout }
}

// WithWatchdogThreshold overrides the inactivity span after which the
// transport force-closes the connection (default 10s).
func WithWatchdogThreshold(threshold time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.watchdogThreshold = threshold }
}

// WithSilenceWindow overrides the outbound-silence span after which a
// keepalive ping is sent (default 5s). Keepalive is best-effort; the
// watchdog is the authoritative liveness check.
func WithSilenceWindow(window time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.silenceWindow = window }
}

// WithMaxRetries bounds automatic reconnect attempts. Zero means unbounded.
func WithMaxRetries(maxRetries int) ControllerOption {
	return func(o *controllerOptions) { o.maxRetries = maxRetries }
}

// WithUtteranceCallback registers a callback for finalized utterances. Each
// finalized utterance is delivered exactly once.
func WithUtteranceCallback(callback func(utterance Utterance)) ControllerOption {
	return func(o *controllerOptions) { o.onUtterance = callback }
}

// WithWordCallback registers a callback for individual words as they stream
// in, before their utterance finalizes.
func WithWordCallback(callback func(word Word)) ControllerOption {
	return func(o *controllerOptions) { o.onWord = callback }
}

// WithStateChangedCallback registers a callback for connection state
// transitions.
func WithStateChangedCallback(callback func(state ConnectionState)) ControllerOption {
	return func(o *controllerOptions) { o.onStateChanged = callback }
}

// WithErrorCallback registers a callback for classified connection errors,
// both transient (a reconnect is already scheduled) and terminal.
func WithErrorCallback(callback func(err *connection.ConnectionError)) ControllerOption {
	return func(o *controllerOptions) { o.onError = callback }
}
