package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockEventServer is an httptest server speaking the event-channel handshake.
type mockEventServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	handler  func(conn *websocket.Conn, r *http.Request)

	connects atomic.Int32
}

func newMockEventServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *mockEventServer {
	t.Helper()

	m := &mockEventServer{
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{EventProtocol},
		},
		handler: handler,
	}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.connects.Add(1)
		m.handler(conn, r)
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockEventServer) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		URL:   url,
		Host:  "api.example.com",
		Token: "da2-test-token",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func receiveFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case frame, ok := <-frames:
		require.True(t, ok, "frames channel closed unexpectedly")
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return nil
	}
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 10*time.Millisecond, "client never reached %s (at %s)", want, c.State())
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"missing url", Config{Host: "h", Token: "t"}, "url"},
		{"http scheme", Config{URL: "http://example.com", Host: "h", Token: "t"}, "url"},
		{"missing host", Config{URL: "wss://example.com", Token: "t"}, "host"},
		{"missing token", Config{URL: "wss://example.com", Host: "h"}, "token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg, testLogger())
			assert.Nil(t, c)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "want ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	c, err := NewClient(Config{
		URL:       "wss://example.com/event/realtime",
		Host:      "h",
		Token:     "t",
		Reconnect: ReconnectPolicy{Enabled: true},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultChannel, c.cfg.Channel)
	assert.Equal(t, defaultHandshakeTimeout, c.cfg.HandshakeTimeout)
	assert.Equal(t, defaultReadTimeout, c.cfg.ReadTimeout)
	assert.Equal(t, defaultFrameBuffer, cap(c.frames))
	assert.Equal(t, DefaultReconnectPolicy().InitialBackoff, c.cfg.Reconnect.InitialBackoff)
	assert.Equal(t, DefaultReconnectPolicy().MaxBackoff, c.cfg.Reconnect.MaxBackoff)
	assert.Equal(t, StateIdle, c.State())

	protocols := c.Subprotocols()
	require.Len(t, protocols, 2)
	assert.Equal(t, EventProtocol, protocols[0])
	assert.True(t, strings.HasPrefix(protocols[1], "header-"))
}

func TestClient_HandshakeAndSubscribe(t *testing.T) {
	type handshake struct {
		protocols []string
		request   SubscribeRequest
	}
	got := make(chan handshake, 1)

	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()

		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		got <- handshake{protocols: websocket.Subprotocols(r), request: req}
		_ = conn.WriteJSON(map[string]string{"type": "subscribe_success", "id": req.ID})
		<-time.After(time.Second)
	})

	c := newTestClient(t, server.URL(), nil)
	c.Start(context.Background())

	var hs handshake
	select {
	case hs = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received subscribe frame")
	}

	require.Len(t, hs.protocols, 2)
	assert.Equal(t, EventProtocol, hs.protocols[0])
	auth, err := DecodeAuthSubprotocol(hs.protocols[1])
	require.NoError(t, err)
	assert.Equal(t, Authorization{Host: "api.example.com", Authorization: "da2-test-token"}, auth)

	assert.NotEmpty(t, hs.request.ID)
	assert.Equal(t, "subscribe", hs.request.Type)
	assert.Equal(t, DefaultChannel, hs.request.Channel)
	assert.Equal(t, auth, hs.request.Authorization)

	// the acknowledgement is forwarded verbatim like any other frame
	ack := receiveFrame(t, c.Frames())
	assert.Contains(t, string(ack), "subscribe_success")
	assert.Equal(t, StateSubscribed, c.State())
}

func TestClient_SubscribeFrameWireFormat(t *testing.T) {
	raw := make(chan map[string]any, 1)

	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		_ = json.Unmarshal(data, &frame)
		raw <- frame
		<-time.After(500 * time.Millisecond)
	})

	c := newTestClient(t, server.URL(), func(cfg *Config) { cfg.Channel = "/stations/status" })
	c.Start(context.Background())

	select {
	case frame := <-raw:
		assert.Equal(t, "subscribe", frame["type"])
		assert.Equal(t, "/stations/status", frame["channel"])
		assert.Equal(t, map[string]any{"host": "api.example.com", "Authorization": "da2-test-token"}, frame["authorization"])
		assert.IsType(t, "", frame["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received subscribe frame")
	}
}

func TestClient_ForwardsFramesInOrder(t *testing.T) {
	frames := []string{
		`{"stationId":"1","status":"ACTIVE"}`,
		`not json`,
		`{"event":"{\"stationId\":\"2\",\"status\":\"ACTIVE\"}"}`,
		`{"stationId":"1","status":"INACTIVE"}`,
	}

	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		<-time.After(time.Second)
	})

	c := newTestClient(t, server.URL(), nil)
	c.Start(context.Background())

	for _, want := range frames {
		assert.Equal(t, want, string(receiveFrame(t, c.Frames())))
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		_ = conn.ReadJSON(&req)
		<-time.After(5 * time.Second)
	})

	c := newTestClient(t, server.URL(), nil)
	c.Start(context.Background())
	waitForState(t, c, StateSubscribed)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Close())
	}
	assert.Equal(t, StateClosed, c.State())

	select {
	case _, ok := <-c.Frames():
		assert.False(t, ok, "frames channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("frames channel not closed after Close")
	}
}

func TestClient_CloseBeforeStart(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/event", nil)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	// Start after Close is a no-op
	c.Start(context.Background())
	assert.Equal(t, StateClosed, c.State())

	_, ok := <-c.Frames()
	assert.False(t, ok)
}

func TestClient_ContextCancellationCloses(t *testing.T) {
	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		_ = conn.ReadJSON(&req)
		<-time.After(5 * time.Second)
	})

	c := newTestClient(t, server.URL(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	waitForState(t, c, StateSubscribed)

	cancel()
	// cancellation alone does not unblock a pending read; Close does
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_NoReconnectClosesOnServerDrop(t *testing.T) {
	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		var req SubscribeRequest
		_ = conn.ReadJSON(&req)
		conn.Close()
	})

	var mu sync.Mutex
	var seen []State
	c := newTestClient(t, server.URL(), func(cfg *Config) {
		cfg.OnStateChange = func(from, to State) {
			mu.Lock()
			seen = append(seen, to)
			mu.Unlock()
		}
	})
	c.Start(context.Background())

	waitForState(t, c, StateClosed)
	assert.EqualValues(t, 1, server.connects.Load())

	// Close waits for the run goroutine, so every callback has fired
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateSubscribing, StateSubscribed, StateClosed}, seen)
}

func TestClient_SilentConnectionTimesOut(t *testing.T) {
	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		// hold the socket open without sending anything
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := newTestClient(t, server.URL(), func(cfg *Config) {
		cfg.ReadTimeout = 100 * time.Millisecond
	})
	c.Start(context.Background())

	// the server never closes, so only the read timeout can end the session
	waitForState(t, c, StateClosed)
	assert.EqualValues(t, 1, server.connects.Load())
}

func TestClient_KeepAliveFramesExtendReadTimeout(t *testing.T) {
	server := newMockEventServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		ticker := time.NewTicker(30 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ka"}`)); err != nil {
				return
			}
		}
	})

	c := newTestClient(t, server.URL(), func(cfg *Config) {
		cfg.ReadTimeout = 150 * time.Millisecond
	})
	c.Start(context.Background())
	waitForState(t, c, StateSubscribed)

	// drain keep-alives for several timeout periods
	deadline := time.After(500 * time.Millisecond)
	for draining := true; draining; {
		select {
		case <-c.Frames():
		case <-deadline:
			draining = false
		}
	}
	assert.Equal(t, StateSubscribed, c.State())
}

func TestClient_DialFailureWithoutReconnectCloses(t *testing.T) {
	// nothing listens on port 1
	c := newTestClient(t, "ws://127.0.0.1:1/event", func(cfg *Config) {
		cfg.HandshakeTimeout = 500 * time.Millisecond
	})
	c.Start(context.Background())

	waitForState(t, c, StateClosed)
}

func TestClient_ReconnectsAndResubscribes(t *testing.T) {
	var ids sync.Map

	server := newMockEventServer(t, nil)
	server.handler = func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		ids.Store(req.ID, true)

		if server.connects.Load() == 1 {
			// drop the first connection to force a reconnect
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stationId":"3","status":"ACTIVE"}`))
		<-time.After(2 * time.Second)
	}

	var reconnecting atomic.Bool
	c := newTestClient(t, server.URL(), func(cfg *Config) {
		cfg.Reconnect = ReconnectPolicy{
			Enabled:        true,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
		}
		cfg.OnStateChange = func(from, to State) {
			if to == StateReconnecting {
				reconnecting.Store(true)
			}
		}
	})
	c.Start(context.Background())

	frame := receiveFrame(t, c.Frames())
	assert.JSONEq(t, `{"stationId":"3","status":"ACTIVE"}`, string(frame))
	assert.True(t, reconnecting.Load(), "client should have passed through reconnecting")
	assert.GreaterOrEqual(t, server.connects.Load(), int32(2))

	distinct := 0
	ids.Range(func(_, _ any) bool { distinct++; return true })
	assert.GreaterOrEqual(t, distinct, 2, "each subscribe attempt needs a fresh request id")
}

func TestClient_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/event", func(cfg *Config) {
		cfg.HandshakeTimeout = 200 * time.Millisecond
		cfg.Reconnect = ReconnectPolicy{
			Enabled:        true,
			InitialBackoff: 5 * time.Millisecond,
			MaxBackoff:     10 * time.Millisecond,
			MaxAttempts:    2,
		}
	})
	c.Start(context.Background())

	waitForState(t, c, StateClosed)
}
