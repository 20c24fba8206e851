package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/scribe-core/core/protocol"
)

// testServer upgrades a single websocket connection and hands it to serve.
func testServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		serve(conn, r)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestTransportSendBeforeConnect(t *testing.T) {
	transport := NewTransport("ws://127.0.0.1:1/ws")

	if err := transport.Send(protocol.NewPing()); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTransportRoundTrip(t *testing.T) {
	received := make(chan protocol.Message, 4)

	url := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		defer conn.Close()

		_ = conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(protocol.NewHandshake()))

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(protocol.NewWord(msg.Type.String(), 0.25)))

		// Keep the connection open until the client closes it.
		_, _, _ = conn.ReadMessage()
	})

	transport := NewTransport(url)
	transport.SetHandlers(Handlers{
		OnMessage: func(msg protocol.Message) { received <- msg },
	})

	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	defer transport.Close()

	select {
	case msg := <-received:
		if msg.Type != protocol.TypeHandshake {
			t.Fatalf("expected handshake first, got %s", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for handshake")
	}

	if err := transport.Send(protocol.NewPing()); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != protocol.TypeWord || msg.Text != "ping" {
			t.Fatalf("expected echoed word message, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for echo")
	}
}

func TestTransportAuthTokenPlacement(t *testing.T) {
	tests := []struct {
		placement TokenPlacement
		check     func(r *http.Request) bool
	}{
		{TokenInHeader, func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer sesame" }},
		{TokenInCookie, func(r *http.Request) bool {
			cookie, err := r.Cookie("token")
			return err == nil && cookie.Value == "sesame"
		}},
		{TokenInQuery, func(r *http.Request) bool { return r.URL.Query().Get("token") == "sesame" }},
	}

	for _, test := range tests {
		attached := make(chan bool, 1)
		url := testServer(t, func(conn *websocket.Conn, r *http.Request) {
			attached <- test.check(r)
			conn.Close()
		})

		transport := NewTransport(url, WithAuthToken("sesame", test.placement))
		transport.SetHandlers(Handlers{})
		if err := transport.Connect(context.Background()); err != nil {
			t.Fatalf("expected connect with %s token to succeed, got %v", test.placement, err)
		}

		select {
		case ok := <-attached:
			if !ok {
				t.Fatalf("expected credential to be attached via %s", test.placement)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s connection", test.placement)
		}
		transport.Close()
	}
}

func TestTransportReportsServerClose(t *testing.T) {
	closed := make(chan int, 1)

	url := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseServerAtCapacity, "no free slots"))
		conn.Close()
	})

	transport := NewTransport(url)
	transport.SetHandlers(Handlers{
		OnClose: func(code int, reason string) { closed <- code },
	})

	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	select {
	case code := <-closed:
		if code != CloseServerAtCapacity {
			t.Fatalf("expected close code 4000, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for close report")
	}
}

func TestTransportReportsDecodeFailureAndCloses(t *testing.T) {
	failed := make(chan error, 1)

	url := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x01, 0x02})
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})

	transport := NewTransport(url)
	transport.SetHandlers(Handlers{
		OnFailure: func(err error) { failed <- err },
	})

	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	select {
	case err := <-failed:
		if _, ok := err.(*protocol.DecodeError); !ok {
			t.Fatalf("expected a decode error, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for decode failure")
	}

	if err := transport.Send(protocol.NewPing()); err != ErrNotConnected {
		t.Fatalf("expected transport to be closed after decode failure, got %v", err)
	}
}

func TestTransportLocalCloseIsSilentAndIdempotent(t *testing.T) {
	var mu sync.Mutex
	events := 0

	url := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})

	transport := NewTransport(url)
	transport.SetHandlers(Handlers{
		OnClose:   func(int, string) { mu.Lock(); events++; mu.Unlock() },
		OnFailure: func(error) { mu.Lock(); events++; mu.Unlock() },
	})

	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	if err := transport.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("expected repeated close to be safe, got %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if events != 0 {
		t.Fatalf("expected no close/failure events after a deliberate close, got %d", events)
	}
}

func TestTransportWatchdogForceCloses(t *testing.T) {
	inactive := make(chan time.Duration, 1)

	url := testServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// Say nothing; let the client watchdog trip.
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})

	transport := NewTransport(url, WithWatchdogThreshold(600*time.Millisecond))
	transport.SetHandlers(Handlers{
		OnInactive: func(idle time.Duration) { inactive <- idle },
		OnClose:    func(int, string) { t.Errorf("watchdog trip must not report as a server close") },
	})

	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	transport.StartWatchdog()

	select {
	case idle := <-inactive:
		if idle < 600*time.Millisecond {
			t.Fatalf("expected reported idle time above the threshold, got %s", idle)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the watchdog")
	}

	if err := transport.Send(protocol.NewPing()); err != ErrNotConnected {
		t.Fatalf("expected connection to be force-closed, got %v", err)
	}
}
