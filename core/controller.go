package transcription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/scribe-core/core/audio"
	"github.com/koscakluka/scribe-core/core/connection"
	"github.com/koscakluka/scribe-core/core/protocol"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Controller drives one logical transcription session across physical
// connections. It owns the connect/handshake/reconnect lifecycle and turns
// the inbound word stream into utterances; callers only push audio and
// receive callbacks.
type Controller struct {
	opts      controllerOptions
	transport Transport
	assembler *utteranceAssembler
	chunker   *audio.FrameChunker

	mu             sync.Mutex
	sess           session
	handshakeTimer *time.Timer
	reconnectTimer *time.Timer
	stopKeepalive  chan struct{}
}

func NewController(opts ...ControllerOption) *Controller {
	options := controllerOptions{
		tokenPlacement:    connection.TokenInHeader,
		finalizeTimeout:   defaultFinalizeTimeout,
		handshakeTimeout:  defaultHandshakeTimeout,
		watchdogThreshold: defaultWatchdogThreshold,
		silenceWindow:     defaultSilenceWindow,
	}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Controller{
		opts:    options,
		chunker: &audio.FrameChunker{},
		sess: session{
			id:    uuid.NewString(),
			state: StateDisconnected,
		},
	}

	c.assembler = newUtteranceAssembler(options.finalizeTimeout, func(utterance Utterance) {
		if c.opts.onUtterance != nil {
			c.opts.onUtterance(utterance)
		}
	})

	if options.transport != nil {
		c.transport = options.transport
	} else {
		transportOpts := []connection.TransportOption{
			connection.WithWatchdogThreshold(options.watchdogThreshold),
		}
		if options.authToken != "" {
			transportOpts = append(transportOpts,
				connection.WithAuthToken(options.authToken, options.tokenPlacement))
		}
		c.transport = connection.NewTransport(options.serverURL, transportOpts...)
	}

	c.transport.SetHandlers(connection.Handlers{
		OnMessage:  c.handleMessage,
		OnClose:    c.handleClose,
		OnFailure:  c.handleFailure,
		OnInactive: c.handleInactive,
	})

	return c
}

// ID returns the logical session identifier, stable across reconnects.
func (c *Controller) ID() string {
	return c.sess.id
}

// State returns the current connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.state
}

// Connect opens the physical connection and waits for the server handshake
// in the background. It only runs from the disconnected state; Connected is
// reported through the state callback once the handshake lands.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sess.state != StateDisconnected {
		state := c.sess.state
		c.mu.Unlock()
		return fmt.Errorf("cannot connect while %s", state)
	}
	c.cancelReconnectLocked()
	c.sess.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	logger.Info("Connecting to transcription server", "url", c.opts.serverURL, "session", c.sess.id)

	if err := c.transport.Connect(ctx); err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		c.handleDisconnect(connection.ClassifyFailure(err, c.retryCount()))
		return err
	}

	c.mu.Lock()
	if c.sess.state != StateConnecting {
		// Stop arrived mid-dial; tear the fresh connection back down.
		c.mu.Unlock()
		_ = c.transport.Close()
		return nil
	}
	c.sess.state = StateHandshakePending
	c.handshakeTimer = time.AfterFunc(c.opts.handshakeTimeout, c.handshakeTimedOut)
	c.mu.Unlock()
	c.notifyState(StateHandshakePending)

	return nil
}

// SendAudio buffers raw samples and sends every complete frame immediately.
// A trailing partial frame is held until more samples or a Flush arrive.
func (c *Controller) SendAudio(samples []float32) error {
	c.mu.Lock()
	state := c.sess.state
	c.mu.Unlock()

	if state != StateConnected && state != StateHandshakePending {
		return connection.ErrNotConnected
	}

	for _, frame := range c.chunker.Push(samples) {
		if err := c.sendTracked(protocol.NewAudioChunk(frame)); err != nil {
			return err
		}
	}
	return nil
}

// Flush sends any buffered partial frame zero-padded to full length, asks
// the server to finalize, and force-finalizes the pending utterance locally.
func (c *Controller) Flush() error {
	if frame, ok := c.chunker.Flush(); ok {
		if err := c.sendTracked(protocol.NewAudioChunk(frame)); err != nil {
			return err
		}
	}
	if err := c.sendTracked(protocol.NewFlush()); err != nil {
		return err
	}
	c.assembler.flush()
	return nil
}

// Stop ends the logical session deliberately. No reconnect follows, the
// pending utterance is flushed, and any scheduled retry is cancelled.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.cancelHandshakeTimerLocked()
	c.stopKeepaliveLocked()
	if c.sess.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.sess.state = StateClosing
	c.mu.Unlock()
	c.notifyState(StateClosing)

	c.transport.StopWatchdog()

	// Give the server a chance to finalize whatever it still holds: trailing
	// audio is padded out and a flush is requested before the close frame.
	if frame, ok := c.chunker.Flush(); ok {
		if err := c.sendTracked(protocol.NewAudioChunk(frame)); err != nil {
			logger.Warn("Failed to send trailing audio before closing", "error", err)
		}
	}
	if err := c.sendTracked(protocol.NewFlush()); err != nil {
		logger.Warn("Failed to send flush before closing", "error", err)
	}

	err := c.transport.Close()

	c.mu.Lock()
	c.sess.state = StateDisconnected
	c.mu.Unlock()
	c.assembler.flush()
	c.notifyState(StateDisconnected)

	return err
}

// RetryConnection forces an immediate reconnect attempt, resetting the retry
// budget and skipping any scheduled backoff wait.
func (c *Controller) RetryConnection(ctx context.Context) error {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.sess.retryCount = 0
	state := c.sess.state
	c.mu.Unlock()

	if state != StateDisconnected {
		if err := c.Stop(); err != nil {
			logger.Warn("Failed to stop cleanly before retrying", "error", err)
		}
	}
	return c.Connect(ctx)
}

func (c *Controller) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeHandshake:
		c.completeHandshake()

	case protocol.TypeWord:
		word := Word{Text: msg.Text, StartTime: msg.StartTime, Confidence: msg.Confidence}
		if c.opts.onWord != nil {
			c.opts.onWord(word)
		}
		if err := c.assembler.pushWord(word); err != nil {
			// The session degrades but survives a misordered stream.
			logger.Warn("Dropped out-of-order word event", "error", err)
		}

	case protocol.TypeEndWord:
		c.assembler.pushEndWord(msg.Time)

	case protocol.TypeFlush:
		c.assembler.flush()

	case protocol.TypePing:
		if err := c.sendTracked(protocol.NewPong()); err != nil {
			logger.Warn("Failed to answer server ping", "error", err)
		}

	case protocol.TypePong:
		// Liveness was already stamped by the transport.

	case protocol.TypeServerError:
		logger.Error("Server reported an error", "code", msg.Code, "text", msg.Text)
		if c.opts.onError != nil {
			c.opts.onError(connection.ClassifyServerNotice(msg.Code, msg.Text))
		}

	default:
		logger.Warn("Ignoring unexpected message", "type", msg.Type.String())
	}
}

func (c *Controller) completeHandshake() {
	c.mu.Lock()
	if c.sess.state != StateHandshakePending {
		c.mu.Unlock()
		logger.Warn("Ignoring handshake outside of the handshake-pending state")
		return
	}
	c.cancelHandshakeTimerLocked()
	c.sess.state = StateConnected
	c.sess.retryCount = 0
	c.sess.lastOutbound = time.Now()
	stop := make(chan struct{})
	c.stopKeepalive = stop
	c.mu.Unlock()

	c.transport.StartWatchdog()
	go c.keepaliveLoop(stop)

	logger.Info("Session established", "session", c.sess.id)
	c.notifyState(StateConnected)
}

func (c *Controller) handshakeTimedOut() {
	c.mu.Lock()
	if c.sess.state != StateHandshakePending {
		c.mu.Unlock()
		return
	}
	c.handshakeTimer = nil
	retryCount := c.sess.retryCount
	c.mu.Unlock()

	logger.Warn("Handshake timed out", "timeout", c.opts.handshakeTimeout)
	_ = c.transport.Close()
	c.handleDisconnect(&connection.ConnectionError{
		Category:    connection.CategoryConnection,
		Message:     fmt.Sprintf("no handshake within %s", c.opts.handshakeTimeout),
		Description: "Server accepted the connection but never sent a handshake",
		Retryable:   true,
		RetryDelay:  connection.BackoffDelay(retryCount),
		Timestamp:   time.Now(),
	})
}

func (c *Controller) handleClose(code int, reason string) {
	c.handleDisconnect(connection.ClassifyCloseCode(code, reason, c.retryCount()))
}

func (c *Controller) handleFailure(err error) {
	c.handleDisconnect(connection.ClassifyFailure(err, c.retryCount()))
}

func (c *Controller) handleInactive(idle time.Duration) {
	c.handleDisconnect(connection.ClassifyInactivity(idle, c.retryCount()))
}

// handleDisconnect is the single funnel for every involuntary connection
// loss. It flushes the pending utterance, reports the classified error, and
// schedules a reconnect when the failure allows one.
func (c *Controller) handleDisconnect(connErr *connection.ConnectionError) {
	c.mu.Lock()
	if c.sess.state == StateDisconnected || c.sess.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.cancelHandshakeTimerLocked()
	c.stopKeepaliveLocked()
	c.sess.state = StateClosing

	scheduled := false
	if connErr.Retryable && (c.opts.maxRetries == 0 || c.sess.retryCount < c.opts.maxRetries) {
		delay := connErr.RetryDelay
		if delay <= 0 {
			delay = connection.BackoffDelay(c.sess.retryCount)
		}
		c.sess.retryCount++
		attempt := c.sess.retryCount
		c.reconnectTimer = time.AfterFunc(delay, c.reconnectTimerFired)
		scheduled = true
		logger.Info("Scheduling reconnect", "delay", delay, "attempt", attempt)
	}
	c.mu.Unlock()
	c.notifyState(StateClosing)

	_ = c.transport.Close()
	c.assembler.flush()

	c.mu.Lock()
	c.sess.state = StateDisconnected
	c.mu.Unlock()

	if !scheduled {
		logger.Error("Connection lost", "category", string(connErr.Category), "error", connErr.Message)
	}
	if c.opts.onError != nil {
		c.opts.onError(connErr)
	}
	c.notifyState(StateDisconnected)
}

func (c *Controller) reconnectTimerFired() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.sess.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		logger.Warn("Reconnect attempt failed", "error", err)
	}
}

// keepaliveLoop pings after a window of outbound silence so the server's own
// idle timers never fire while the session sits quiet. Best-effort only; the
// watchdog is the authoritative liveness check.
func (c *Controller) keepaliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			quiet := time.Since(c.sess.lastOutbound)
			connected := c.sess.state == StateConnected
			c.mu.Unlock()

			if !connected {
				return
			}
			if quiet < c.opts.silenceWindow {
				continue
			}
			if err := c.sendTracked(protocol.NewPing()); err != nil {
				logger.Warn("Keepalive ping failed", "error", err)
			}
		}
	}
}

func (c *Controller) sendTracked(msg protocol.Message) error {
	if err := c.transport.Send(msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.sess.lastOutbound = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Controller) retryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.retryCount
}

func (c *Controller) notifyState(state ConnectionState) {
	if c.opts.onStateChanged != nil {
		c.opts.onStateChanged(state)
	}
}

func (c *Controller) cancelHandshakeTimerLocked() {
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
}

func (c *Controller) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Controller) stopKeepaliveLocked() {
	if c.stopKeepalive != nil {
		close(c.stopKeepalive)
		c.stopKeepalive = nil
	}
}
