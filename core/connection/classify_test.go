package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/scribe-core/core/protocol"
)

func TestClassifyAuthenticationFailureIsTerminal(t *testing.T) {
	err := ClassifyCloseCode(4001, "", 0)

	if err.Category != CategoryAuthentication {
		t.Fatalf("expected authentication category, got %s", err.Category)
	}
	if err.Retryable {
		t.Fatalf("expected authentication failure to not be retryable")
	}
	if err.Code != 4001 {
		t.Fatalf("expected code 4001 to be carried, got %d", err.Code)
	}
}

func TestClassifyCapacityScalesWithRetryCount(t *testing.T) {
	var previous time.Duration
	for retryCount := 0; retryCount < 8; retryCount++ {
		err := ClassifyCloseCode(4000, "", retryCount)

		if err.Category != CategoryCapacity {
			t.Fatalf("expected capacity category, got %s", err.Category)
		}
		if !err.Retryable {
			t.Fatalf("expected capacity failure to be retryable")
		}
		if err.RetryDelay <= 0 {
			t.Fatalf("expected a positive retry delay, got %s", err.RetryDelay)
		}
		if err.RetryDelay < previous {
			t.Fatalf("expected delay to be non-decreasing, got %s after %s", err.RetryDelay, previous)
		}
		if err.RetryDelay > 30*time.Second {
			t.Fatalf("expected delay capped at 30s, got %s", err.RetryDelay)
		}
		previous = err.RetryDelay
	}

	if previous != 30*time.Second {
		t.Fatalf("expected delay to reach the 30s cap, got %s", previous)
	}
}

func TestClassifyCloseCodeTable(t *testing.T) {
	tests := []struct {
		code      int
		category  Category
		retryable bool
	}{
		{1000, CategoryConnection, true},
		{1001, CategoryConnection, true},
		{1002, CategoryProtocol, false},
		{1006, CategoryConnection, true},
		{1011, CategoryConnection, true},
		{4002, CategoryTimeout, true},
		{4003, CategoryProtocol, false},
		{4004, CategoryCapacity, true},
		{4005, CategoryServer, true},
		{4006, CategoryTimeout, true},
		{4999, CategoryUnknown, true},
	}

	for _, test := range tests {
		err := ClassifyCloseCode(test.code, "", 1)
		if err.Category != test.category {
			t.Fatalf("expected code %d to classify as %s, got %s", test.code, test.category, err.Category)
		}
		if err.Retryable != test.retryable {
			t.Fatalf("expected code %d retryable=%t, got %t", test.code, test.retryable, err.Retryable)
		}
		if err.Retryable && err.RetryDelay <= 0 {
			t.Fatalf("expected code %d to suggest a delay", test.code)
		}
	}
}

func TestClassifyRateLimitHonorsServerSuggestedDelay(t *testing.T) {
	err := ClassifyCloseCode(4004, "2500", 0)
	if err.RetryDelay != 2500*time.Millisecond {
		t.Fatalf("expected server-suggested 2.5s delay, got %s", err.RetryDelay)
	}

	err = ClassifyCloseCode(4004, "slow down", 0)
	if err.RetryDelay != conservativeRetryDelay {
		t.Fatalf("expected default delay for unparsable reason, got %s", err.RetryDelay)
	}
}

func TestClassifyFailureDistinguishesDecodeErrors(t *testing.T) {
	err := ClassifyFailure(&protocol.DecodeError{Offset: 3, Reason: "unrecognized message tag 0x2a"}, 0)
	if err.Category != CategoryProtocol {
		t.Fatalf("expected decode failure to classify as protocol, got %s", err.Category)
	}
	if err.Retryable {
		t.Fatalf("expected decode failure to not be retryable")
	}

	err = ClassifyFailure(errors.New("connection reset by peer"), 2)
	if err.Category != CategoryConnection {
		t.Fatalf("expected transport failure to classify as connection, got %s", err.Category)
	}
	if !err.Retryable {
		t.Fatalf("expected transport failure to be retryable")
	}
}

func TestClassifyInactivityIsTimeoutCategory(t *testing.T) {
	err := ClassifyInactivity(12*time.Second, 0)
	if err.Category != CategoryTimeout {
		t.Fatalf("expected timeout category, got %s", err.Category)
	}
	if !err.Retryable {
		t.Fatalf("expected watchdog trip to be retryable")
	}
}

func TestBackoffDelay(t *testing.T) {
	if BackoffDelay(0) != time.Second {
		t.Fatalf("expected base delay of 1s, got %s", BackoffDelay(0))
	}
	if BackoffDelay(3) != 8*time.Second {
		t.Fatalf("expected 8s after three retries, got %s", BackoffDelay(3))
	}
	if BackoffDelay(10) != 30*time.Second {
		t.Fatalf("expected 30s cap, got %s", BackoffDelay(10))
	}
}
