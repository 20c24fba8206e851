package connection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/koscakluka/scribe-core/core/protocol"
)

// Category is a coarse classification of a connection failure used to decide
// retry behavior and presentation.
type Category string

const (
	CategoryConnection     Category = "connection"
	CategoryAuthentication Category = "authentication"
	CategoryCapacity       Category = "capacity"
	CategoryTimeout        Category = "timeout"
	CategoryProtocol       Category = "protocol"
	CategoryServer         Category = "server"
	CategoryUnknown        Category = "unknown"
)

// ConnectionError is the unified failure value surfaced by the session. Code
// is the close code that produced it, or 0 when the failure carried none.
// RetryDelay is 0 when no retry is suggested.
type ConnectionError struct {
	Category    Category
	Code        int
	Message     string
	Description string
	Retryable   bool
	RetryDelay  time.Duration
	Timestamp   time.Time
}

func (e *ConnectionError) Error() string { return e.Message }

const (
	// Application close codes the server uses alongside the standard
	// 1000-1015 range.
	CloseServerAtCapacity     = 4000
	CloseAuthenticationFailed = 4001
	CloseSessionTimeout       = 4002
	CloseInvalidMessage       = 4003
	CloseRateLimited          = 4004
	CloseResourceUnavailable  = 4005
	CloseClientTimeout        = 4006
)

const (
	backoffBaseDelay = time.Second
	backoffMaxDelay  = 30 * time.Second

	// conservativeRetryDelay is used when the failure gives no better hint.
	conservativeRetryDelay = 5 * time.Second
)

// BackoffDelay returns the reconnect delay for the given retry count:
// exponential from a 1s base, capped at 30s.
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := backoffBaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= backoffMaxDelay {
			return backoffMaxDelay
		}
	}
	return delay
}

// ClassifyCloseCode maps a close code received from the peer to a structured
// error. retryCount scales the suggested delay for capacity-style failures.
//
// A deliberate close initiated locally is never classified; only peer-sent
// codes reach this function, so 1000/1001 count as retryable interruptions.
func ClassifyCloseCode(code int, reason string, retryCount int) *ConnectionError {
	e := &ConnectionError{
		Code:      code,
		Message:   closeMessage(code, reason),
		Timestamp: time.Now(),
	}

	switch code {
	case 1000, 1001:
		e.Category = CategoryConnection
		e.Description = "Connection closed by the server"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case 1002, 1003, 1007, 1008, 1009, 1010:
		e.Category = CategoryProtocol
		e.Description = "The server rejected the websocket exchange"
	case 1004, 1005, 1006:
		e.Category = CategoryConnection
		e.Description = "Connection dropped without a close handshake"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case 1011, 1012, 1013, 1014:
		e.Category = CategoryConnection
		e.Description = "The server is temporarily unable to continue"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case 1015:
		e.Category = CategoryConnection
		e.Description = "TLS handshake failed"

	case CloseServerAtCapacity:
		e.Category = CategoryCapacity
		e.Description = "Server at capacity, no free session slots"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case CloseAuthenticationFailed:
		e.Category = CategoryAuthentication
		e.Description = "Authentication failed, invalid or missing credentials"
	case CloseSessionTimeout:
		e.Category = CategoryTimeout
		e.Description = "Session exceeded its maximum duration"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case CloseInvalidMessage:
		e.Category = CategoryProtocol
		e.Description = "The server could not parse a message we sent"
	case CloseRateLimited:
		e.Category = CategoryCapacity
		e.Description = "Rate limited by the server"
		e.Retryable = true
		e.RetryDelay = suggestedDelay(reason)
	case CloseResourceUnavailable:
		e.Category = CategoryServer
		e.Description = "Requested resource is unavailable"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)
	case CloseClientTimeout:
		e.Category = CategoryTimeout
		e.Description = "Server saw no data from us within its deadline"
		e.Retryable = true
		e.RetryDelay = BackoffDelay(retryCount)

	default:
		e.Category = CategoryUnknown
		e.Description = "Unrecognized close code"
		e.Retryable = true
		e.RetryDelay = conservativeRetryDelay
	}

	return e
}

// ClassifyFailure maps a transport-level failure (dial error, read error,
// malformed wire data) to a structured error.
func ClassifyFailure(err error, retryCount int) *ConnectionError {
	e := &ConnectionError{
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		e.Category = CategoryProtocol
		e.Description = "Received malformed wire data"
		return e
	}

	e.Category = CategoryConnection
	e.Description = "Transport failure"
	e.Retryable = true
	e.RetryDelay = BackoffDelay(retryCount)
	return e
}

// ClassifyServerNotice maps an in-band server error message to a structured
// error. The connection stays open after one, so no retry is suggested.
func ClassifyServerNotice(code uint32, text string) *ConnectionError {
	return &ConnectionError{
		Category:    CategoryServer,
		Code:        int(code),
		Message:     fmt.Sprintf("server error %d: %s", code, text),
		Description: "Server reported an in-band error",
		Timestamp:   time.Now(),
	}
}

// ClassifyInactivity maps a watchdog trip to a structured error, kept
// distinct from server-initiated closes.
func ClassifyInactivity(idle time.Duration, retryCount int) *ConnectionError {
	return &ConnectionError{
		Category:    CategoryTimeout,
		Message:     fmt.Sprintf("no inbound traffic for %s, connection force-closed", idle.Round(time.Millisecond)),
		Description: "Inactivity watchdog tripped",
		Retryable:   true,
		RetryDelay:  BackoffDelay(retryCount),
		Timestamp:   time.Now(),
	}
}

func closeMessage(code int, reason string) string {
	reason = strings.TrimSpace(reason)

	var message string
	switch code {
	case CloseServerAtCapacity:
		message = fmt.Sprintf("server at capacity (close code %d)", code)
	case CloseAuthenticationFailed:
		message = fmt.Sprintf("authentication failed (close code %d)", code)
	case CloseSessionTimeout:
		message = fmt.Sprintf("session timeout (close code %d)", code)
	case CloseInvalidMessage:
		message = fmt.Sprintf("invalid message (close code %d)", code)
	case CloseRateLimited:
		message = fmt.Sprintf("rate limited (close code %d)", code)
	case CloseResourceUnavailable:
		message = fmt.Sprintf("resource unavailable (close code %d)", code)
	case CloseClientTimeout:
		message = fmt.Sprintf("client timeout (close code %d)", code)
	default:
		message = fmt.Sprintf("websocket closed (code %d)", code)
	}

	if reason != "" {
		message += fmt.Sprintf(" (reason: %s)", reason)
	}
	return message
}

// suggestedDelay reads a server-suggested delay out of a close reason that
// is a bare integer number of milliseconds; anything else falls back to the
// conservative default.
func suggestedDelay(reason string) time.Duration {
	if ms, err := strconv.Atoi(strings.TrimSpace(reason)); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return conservativeRetryDelay
}
