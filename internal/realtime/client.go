package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultChannel is the status channel subscribed to when none is configured.
const DefaultChannel = "stations/status"

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 5 * time.Minute
	defaultFrameBuffer      = 100
	writeTimeout            = 5 * time.Second
	maxFrameSize            = 1 << 20 // 1MB

	subscribeType = "subscribe"
)

// ReconnectPolicy controls how a [Client] re-establishes a lost connection.
//
// Delays grow from InitialBackoff by BackoffFactor up to MaxBackoff. The
// delay resets once a connection reaches [StateSubscribed] again.
type ReconnectPolicy struct {
	// Enabled turns reconnection on. When false, any transport error moves
	// the client straight to [StateClosed].
	Enabled bool

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// MaxAttempts bounds consecutive failed attempts. 0 means unlimited.
	MaxAttempts int
}

// DefaultReconnectPolicy returns the policy used when none is configured:
// 1s initial delay doubling up to 30s, unlimited attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:        true,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2,
	}
}

// next returns the delay that follows d.
func (p ReconnectPolicy) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.BackoffFactor)
	if n > p.MaxBackoff || n <= 0 {
		return p.MaxBackoff
	}
	return n
}

// Config holds the connection settings for a [Client].
type Config struct {
	// URL is the ws:// or wss:// realtime endpoint.
	URL string

	// Host and Token make up the credential block.
	Host  string
	Token string

	// Channel is the status channel name. Defaults to [DefaultChannel].
	Channel string

	Reconnect ReconnectPolicy

	// HandshakeTimeout bounds each dial. Defaults to 10s.
	HandshakeTimeout time.Duration

	// ReadTimeout is how long a subscribed connection may stay silent
	// before it is treated as lost. Every inbound frame, keep-alives
	// included, extends it. Defaults to 5m.
	ReadTimeout time.Duration

	// FrameBuffer is the capacity of the Frames channel. Defaults to 100.
	FrameBuffer int

	// OnStateChange, if set, observes every state transition. It is called
	// sequentially and must not block.
	OnStateChange func(from, to State)
}

// SubscribeRequest is the frame sent once a connection is open.
type SubscribeRequest struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Channel       string        `json:"channel"`
	Authorization Authorization `json:"authorization"`
}

// Client owns one persistent connection to the status channel.
//
// Client forwards every inbound frame verbatim on [Client.Frames], in the
// order the transport delivers them. It holds at most one open connection
// at a time; the connection is closed on every exit path.
//
// All lifecycle methods (Start, Close) are safe for concurrent use.
type Client struct {
	cfg          Config
	auth         Authorization
	subprotocols []string
	dialer       *websocket.Dialer
	frames       chan []byte
	logger       *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
	conn    *websocket.Conn
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewClient validates cfg and returns an idle [Client].
//
// Returns a [ConfigurationError] if the URL, host or token is missing or
// malformed. No connection is attempted until [Client.Start].
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, &ConfigurationError{Field: "url", Reason: "is required"}
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, &ConfigurationError{Field: "url", Reason: "is invalid: " + err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &ConfigurationError{Field: "url", Reason: fmt.Sprintf("scheme must be ws or wss, got %q", u.Scheme)}
	}

	auth, err := NewAuthorization(cfg.Host, cfg.Token)
	if err != nil {
		return nil, err
	}
	header, err := EncodeAuthSubprotocol(cfg.Host, cfg.Token)
	if err != nil {
		return nil, err
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaultFrameBuffer
	}
	if cfg.Reconnect.Enabled {
		defaults := DefaultReconnectPolicy()
		if cfg.Reconnect.InitialBackoff <= 0 {
			cfg.Reconnect.InitialBackoff = defaults.InitialBackoff
		}
		if cfg.Reconnect.MaxBackoff <= 0 {
			cfg.Reconnect.MaxBackoff = defaults.MaxBackoff
		}
		if cfg.Reconnect.MaxBackoff < cfg.Reconnect.InitialBackoff {
			cfg.Reconnect.MaxBackoff = cfg.Reconnect.InitialBackoff
		}
		if cfg.Reconnect.BackoffFactor < 1 {
			cfg.Reconnect.BackoffFactor = defaults.BackoffFactor
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	subprotocols := []string{EventProtocol, header}
	return &Client{
		cfg:          cfg,
		auth:         auth,
		subprotocols: subprotocols,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     subprotocols,
		},
		frames: make(chan []byte, cfg.FrameBuffer),
		logger: logger,
	}, nil
}

// Subprotocols returns the ordered subprotocol tokens offered at handshake.
func (c *Client) Subprotocols() []string {
	return append([]string(nil), c.subprotocols...)
}

// Frames returns a receive-only channel of raw inbound frames.
//
// The channel is closed when the client reaches [StateClosed]. Consumers
// should read until it is closed.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins connecting in a background goroutine and returns immediately.
//
// If ctx is nil, context.Background() is used. Start is idempotent; calls
// after the first, or after [Client.Close], are no-ops.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(runCtx)
}

// Close tears the client down and waits for its goroutine to exit.
//
// The live connection, if any, is closed, the Frames channel is closed and
// the client moves to [StateClosed]. Close is idempotent and safe to call
// before Start.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.mu.Unlock()

	// unblocks a pending ReadMessage
	if conn != nil {
		_ = conn.Close()
	}

	c.wg.Wait()
	c.setState(StateClosed)
	c.closeOnce.Do(func() { close(c.frames) })
	return nil
}

// run drives the connect/subscribe/read cycle until the context is
// cancelled or the reconnect policy gives up.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.closeOnce.Do(func() { close(c.frames) })
	defer c.setState(StateClosed)

	policy := c.cfg.Reconnect
	backoff := policy.InitialBackoff
	attempt := 0

	for {
		subscribed, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn("realtime connection failed", "error", err.Error(), "channel", c.cfg.Channel)
		}

		if !policy.Enabled {
			c.logger.Info("realtime connection closed, reconnect disabled")
			return
		}

		if subscribed {
			attempt = 0
			backoff = policy.InitialBackoff
		}
		attempt++
		if policy.MaxAttempts > 0 && attempt > policy.MaxAttempts {
			c.logger.Error("realtime reconnect attempts exhausted", "attempts", policy.MaxAttempts)
			return
		}

		c.setState(StateReconnecting)
		c.logger.Info("realtime reconnecting", "attempt", attempt, "backoff", backoff.String())

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = policy.next(backoff)
	}
}

// session runs a single connection: dial, subscribe, then forward frames
// until the connection fails. subscribed reports whether the subscribe
// frame was sent.
func (c *Client) session(ctx context.Context) (subscribed bool, err error) {
	c.setState(StateConnecting)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, &TransportError{Op: "dial", Err: err}
	}
	if !c.attach(ctx, conn) {
		_ = conn.Close()
		return false, nil
	}
	defer c.detach(conn)

	conn.SetReadLimit(maxFrameSize)
	c.logger.Debug("realtime connected", "subprotocol", conn.Subprotocol())

	c.setState(StateSubscribing)
	req := SubscribeRequest{
		ID:            uuid.NewString(),
		Type:          subscribeType,
		Channel:       c.cfg.Channel,
		Authorization: c.auth,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return false, &TransportError{Op: "subscribe", Err: err}
	}
	_ = conn.SetWriteDeadline(time.Time{})

	c.setState(StateSubscribed)
	c.logger.Info("realtime subscribed", "channel", c.cfg.Channel, "request_id", req.ID)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				c.logger.Info("realtime connection closed by server", "reason", closeErr.Text)
			}
			return true, &TransportError{Op: "read", Err: err}
		}

		select {
		case c.frames <- data:
		case <-ctx.Done():
			return true, nil
		}
	}
}

// attach records conn as the live connection unless the client is
// shutting down.
func (c *Client) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// setState applies a transition and notifies the observer. Illegal
// transitions and repeats are ignored; Closed is terminal.
func (c *Client) setState(next State) {
	c.mu.Lock()
	prev := c.state
	if prev == next || !prev.CanTransitionTo(next) {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Debug("realtime state changed", "from", prev.String(), "to", next.String())
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(prev, next)
	}
}
