package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/scribe-core/core/protocol"
)

// ErrNotConnected is returned by Send when no session link is open. It is a
// caller bug, not a transient condition.
var ErrNotConnected = errors.New("transport not connected")

const (
	watchdogPollInterval     = 500 * time.Millisecond
	defaultWatchdogThreshold = 10 * time.Second
)

// TokenPlacement selects how the opaque bearer credential is attached to the
// connection. The transport never inspects the credential itself.
type TokenPlacement string

const (
	TokenInHeader TokenPlacement = "header"
	TokenInCookie TokenPlacement = "cookie"
	TokenInQuery  TokenPlacement = "query"
)

// Handlers receives transport events. All handlers are invoked from the
// single read loop goroutine, so they see messages in arrival order.
type Handlers struct {
	// OnMessage is invoked for every decoded inbound message, after
	// last-activity has been stamped.
	OnMessage func(msg protocol.Message)
	// OnClose is invoked when the peer closes the connection. A deliberate
	// local Close does not trigger it.
	OnClose func(code int, reason string)
	// OnFailure is invoked for read or decode failures that were not close
	// frames. The transport is already closed when it fires.
	OnFailure func(err error)
	// OnInactive is invoked when the watchdog force-closes the connection
	// after prolonged silence, instead of OnClose.
	OnInactive func(idle time.Duration)
}

// Transport owns the physical websocket connection exclusively. Sends are
// serialized against each other; the receive path runs independently.
type Transport struct {
	url       string
	token     string
	placement TokenPlacement
	dialer    *websocket.Dialer
	threshold time.Duration

	handlers Handlers

	mu           sync.Mutex // guards conn, closed, lastActivity, watchdog
	conn         *websocket.Conn
	closed       bool
	lastActivity time.Time
	stopWatchdog chan struct{}

	writeMu sync.Mutex // serializes writes so frames never interleave
}

type TransportOption func(*Transport)

// WithAuthToken attaches an opaque bearer credential at connect time.
func WithAuthToken(token string, placement TokenPlacement) TransportOption {
	return func(t *Transport) {
		t.token = token
		t.placement = placement
	}
}

// WithWatchdogThreshold overrides the inactivity threshold (default 10s).
func WithWatchdogThreshold(threshold time.Duration) TransportOption {
	return func(t *Transport) { t.threshold = threshold }
}

func WithDialer(dialer *websocket.Dialer) TransportOption {
	return func(t *Transport) { t.dialer = dialer }
}

func NewTransport(rawURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		url:       rawURL,
		placement: TokenInHeader,
		dialer:    websocket.DefaultDialer,
		threshold: defaultWatchdogThreshold,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetHandlers wires the event sinks. Must be called before Connect.
func (t *Transport) SetHandlers(handlers Handlers) {
	t.handlers = handlers
}

// Connect opens the physical connection and starts the read loop. It does
// not imply a ready session; only a completed handshake does, and that is
// the controller's business.
func (t *Transport) Connect(ctx context.Context) error {
	dialURL, header, err := t.dialTarget()
	if err != nil {
		return err
	}

	conn, _, err := t.dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		return fmt.Errorf("failed to open websocket to %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.lastActivity = time.Now()
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *Transport) dialTarget() (string, http.Header, error) {
	parsed, err := url.Parse(t.url)
	if err != nil {
		return "", nil, fmt.Errorf("invalid websocket url %q: %w", t.url, err)
	}

	header := http.Header{}
	if t.token != "" {
		switch t.placement {
		case TokenInHeader:
			header.Set("Authorization", "Bearer "+t.token)
		case TokenInCookie:
			header.Set("Cookie", "token="+t.token)
		case TokenInQuery:
			query := parsed.Query()
			query.Set("token", t.token)
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.String(), header, nil
}

// Send encodes and writes one message. Concurrent senders are serialized;
// partial writes never interleave.
func (t *Transport) Send(msg protocol.Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(msg)); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msg.Type, err)
	}
	return nil
}

// Close tears down the connection and cancels the watchdog. It is
// idempotent and safe to call from any state.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed && t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.stopWatchdogLocked()
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	return conn.Close()
}

// LastActivity reports when the last inbound payload arrived.
func (t *Transport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// StartWatchdog begins the periodic inactivity check. A silence longer than
// the threshold force-closes the connection and reports it through
// OnInactive, distinct from a server-initiated close.
func (t *Transport) StartWatchdog() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopWatchdog != nil || t.conn == nil {
		return
	}

	stop := make(chan struct{})
	t.stopWatchdog = stop
	t.lastActivity = time.Now()

	go func() {
		ticker := time.NewTicker(watchdogPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				idle := time.Since(t.lastActivity)
				tripped := idle > t.threshold && t.conn != nil
				t.mu.Unlock()

				if !tripped {
					continue
				}

				logger.Warn("Inactivity watchdog tripped, force-closing connection", "idle", idle)
				_ = t.Close()
				if t.handlers.OnInactive != nil {
					t.handlers.OnInactive(idle)
				}
				return
			}
		}
	}()
}

// StopWatchdog cancels the periodic check without touching the connection.
func (t *Transport) StopWatchdog() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopWatchdogLocked()
}

func (t *Transport) stopWatchdogLocked() {
	if t.stopWatchdog != nil {
		close(t.stopWatchdog)
		t.stopWatchdog = nil
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			t.dispatchReadFailure(err)
			return
		}

		if msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			// Malformed wire data means the stream can no longer be
			// trusted; drop the connection.
			logger.Error("Failed to decode inbound message, closing connection", "error", err)
			_ = t.Close()
			if t.handlers.OnFailure != nil {
				t.handlers.OnFailure(err)
			}
			return
		}

		t.mu.Lock()
		t.lastActivity = time.Now()
		t.mu.Unlock()

		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(msg)
		}
	}
}

func (t *Transport) dispatchReadFailure(err error) {
	t.mu.Lock()
	deliberate := t.closed
	t.closed = true
	t.conn = nil
	t.stopWatchdogLocked()
	t.mu.Unlock()

	// A read error after a local Close (or watchdog trip) is expected
	// teardown noise, not an event.
	if deliberate {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if t.handlers.OnClose != nil {
			t.handlers.OnClose(closeErr.Code, closeErr.Text)
		}
		return
	}

	if t.handlers.OnFailure != nil {
		t.handlers.OnFailure(err)
	}
}
