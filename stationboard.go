package stationboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/stationboard/dashboard"
	"github.com/jpalmerr/stationboard/internal/realtime"
	"github.com/jpalmerr/stationboard/internal/server"
	"github.com/jpalmerr/stationboard/internal/store"
)

const (
	defaultPort        = 8080
	defaultInjectLimit = rate.Limit(5)
	defaultInjectBurst = 10

	sourceRealtime = "realtime"
	sourceInject   = "inject"
)

// ReconnectPolicy controls how a lost realtime connection is re-established.
type ReconnectPolicy = realtime.ReconnectPolicy

// DefaultReconnectPolicy returns the policy used unless [WithReconnectPolicy]
// or [WithoutReconnect] is given: 1s initial delay doubling up to 30s,
// unlimited attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return realtime.DefaultReconnectPolicy()
}

// StationBoard keeps a live view of station statuses in sync with a
// realtime event channel and serves it as a dashboard.
//
// StationBoard owns one realtime connection and one status store. Frames
// received on the channel are normalized and applied to the store in
// delivery order; [StationBoard.Inject] feeds manual events through the
// same path. It is created using [New] and started with [StationBoard.Start].
//
// The typical lifecycle is:
//
//	sb, err := stationboard.New(
//	    stationboard.WithSocketURL(url),
//	    stationboard.WithAuth(host, token),
//	)
//	if err != nil {
//	    slog.Error("failed to create stationboard", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sb.Start(ctx) // blocks until context cancelled
//
// Snapshot, Inject, State and Close are safe for concurrent use.
type StationBoard struct {
	title           string
	stations        []Station
	port            int
	injectLimit     rate.Limit
	injectBurst     int
	token           string
	logger          *slog.Logger
	statusCallbacks []func(StatusEvent)
	stateCallbacks  []func(from, to ConnectionState)

	store  *store.MemoryStore
	client *realtime.Client

	mu        sync.Mutex
	started   bool
	closed    bool
	closeOnce sync.Once
}

// New creates a new [StationBoard] instance with the given options.
//
// [WithSocketURL] and [WithAuth] are required. Other options have sensible
// defaults:
//   - Stations: [DefaultStations]
//   - Channel: "stations/status"
//   - Port: 8080
//   - Reconnect: [DefaultReconnectPolicy]
//
// Returns a [ConfigurationError] if the socket URL, host or token is missing
// or invalid, and an error if any option is invalid or station ids are
// empty or duplicated. No connection is attempted until Start.
func New(opts ...Option) (*StationBoard, error) {
	cfg := &sbConfig{
		port:        defaultPort,
		reconnect:   DefaultReconnectPolicy(),
		injectLimit: defaultInjectLimit,
		injectBurst: defaultInjectBurst,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	stations := cfg.stations
	if len(stations) == 0 {
		stations = DefaultStations()
	}
	seen := make(map[string]bool, len(stations))
	for _, s := range stations {
		if s.ID == "" {
			return nil, errors.New("station id cannot be empty")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate station id: %q", s.ID)
		}
		seen[s.ID] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StationBoard{
		title:           cfg.title,
		stations:        stations,
		port:            cfg.port,
		injectLimit:     cfg.injectLimit,
		injectBurst:     cfg.injectBurst,
		token:           cfg.token,
		logger:          logger,
		statusCallbacks: cfg.statusCallbacks,
		stateCallbacks:  cfg.stateCallbacks,
		store:           store.NewMemoryStore(stationIDs(stations)),
	}

	client, err := realtime.NewClient(realtime.Config{
		URL:              cfg.socketURL,
		Host:             cfg.host,
		Token:            cfg.token,
		Channel:          cfg.channel,
		Reconnect:        cfg.reconnect,
		HandshakeTimeout: cfg.handshakeTimeout,
		ReadTimeout:      cfg.readTimeout,
		OnStateChange:    sb.onStateChange,
	}, logger)
	if err != nil {
		return nil, err
	}
	sb.client = client

	return sb, nil
}

// Start connects to the realtime channel and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The connection is opened and the status channel subscribed
//   - Each received frame is normalized and applied to the status store
//   - The HTTP server starts on the configured port
//
// On return the board is closed: the store no longer changes and the
// connection is released. Start may be called at most once.
//
// Returns nil on graceful shutdown. Returns an error if the board was
// already started or closed, or if the HTTP server fails to start.
func (sb *StationBoard) Start(ctx context.Context) error {
	sb.mu.Lock()
	switch {
	case sb.closed:
		sb.mu.Unlock()
		return ErrClosed
	case sb.started:
		sb.mu.Unlock()
		return errors.New("stationboard: already started")
	}
	sb.started = true
	sb.mu.Unlock()

	sb.logger.Info("stationboard starting", "station_count", len(sb.stations))

	// check if context already cancelled
	if ctx.Err() != nil {
		_ = sb.Close()
		return nil
	}

	if exp, ok := realtime.TokenExpiry(sb.token); ok && time.Now().After(exp) {
		sb.logger.Warn("realtime token already expired",
			"expired_at", exp.Format(time.RFC3339),
			"token", realtime.Redact(sb.token),
		)
	}

	sb.client.Start(ctx)

	// single consumer: frames are applied in delivery order
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range sb.client.Frames() {
			sb.handleFrame(frame)
		}
	}()

	// cleanup closes the board and waits for in-flight frames
	cleanup := func() {
		_ = sb.Close()
		wg.Wait()
	}

	httpServer := server.NewServer(sb.store, server.Config{
		Port:        sb.port,
		Assets:      dashboard.Assets,
		Title:       sb.title,
		Stations:    sb.serverStations(),
		Inject:      sb.injectFromDashboard,
		State:       func() string { return sb.State().String() },
		InjectLimit: sb.injectLimit,
		InjectBurst: sb.injectBurst,
	}, sb.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	sb.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", sb.port))

	<-ctx.Done()
	cleanup()
	sb.logger.Info("stationboard stopped")
	return nil
}

// Close tears the board down. The status store is frozen first, so frames
// still in flight are ignored, then the realtime connection is closed.
//
// Close is idempotent and safe to call before, during or after Start.
// Snapshot keeps returning the last state after Close.
func (sb *StationBoard) Close() error {
	var err error
	sb.closeOnce.Do(func() {
		sb.mu.Lock()
		sb.closed = true
		sb.mu.Unlock()

		sb.store.Close()
		err = sb.client.Close()
	})
	return err
}

// Snapshot returns a copy of the current station statuses.
//
// Every configured station is present; ids received from the channel that
// are not configured are included as well. Modifying the returned map does
// not affect the board.
func (sb *StationBoard) Snapshot() map[string]Status {
	raw := sb.store.Snapshot()
	snapshot := make(map[string]Status, len(raw))
	for id, status := range raw {
		snapshot[id] = Status(status)
	}
	return snapshot
}

// Inject applies a status event as if it had been received on the channel.
//
// The event goes through the same normalization and store update as live
// traffic, so the resulting state is indistinguishable from a received
// event. Returns an error wrapping [ErrInvalidEvent] if the id is empty or
// the status is not [StatusActive] or [StatusInactive], and [ErrClosed]
// after teardown has begun.
func (sb *StationBoard) Inject(stationID string, status Status) error {
	payload, err := json.Marshal(realtime.Event{StationID: stationID, Status: string(status)})
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}

	ev, _, err := realtime.Normalize(payload)
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}

	if !sb.apply(ev, sourceInject) {
		return ErrClosed
	}
	return nil
}

// State returns the current realtime connection state.
func (sb *StationBoard) State() ConnectionState {
	return sb.client.State()
}

// Stations returns a copy of the configured stations, in display order.
func (sb *StationBoard) Stations() []Station {
	cp := make([]Station, len(sb.stations))
	copy(cp, sb.stations)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (sb *StationBoard) Port() int {
	return sb.port
}

// handleFrame normalizes one received frame and applies it. Frames that
// are not status events (acknowledgements, keep-alives, malformed
// payloads) are dropped.
func (sb *StationBoard) handleFrame(frame []byte) {
	ev, shape, err := realtime.Normalize(frame)
	if err != nil {
		sb.logger.Debug("frame dropped", "shape", shape.String(), "bytes", len(frame), "error", err.Error())
		return
	}
	if !sb.apply(ev, sourceRealtime) {
		sb.logger.Debug("frame ignored after close", "station", ev.StationID)
		return
	}
	sb.logger.Debug("status applied", "station", ev.StationID, "status", ev.Status, "shape", shape.String())
}

// apply stores ev and fires status callbacks. It reports false once the
// store is closed.
func (sb *StationBoard) apply(ev realtime.Event, source string) bool {
	// store update first (callbacks fire after data is stored)
	if !sb.store.Apply(store.StatusUpdate{StationID: ev.StationID, Status: ev.Status}) {
		return false
	}

	if len(sb.statusCallbacks) > 0 {
		event := StatusEvent{
			StationID: ev.StationID,
			Status:    Status(ev.Status),
			Source:    source,
		}
		for _, cb := range sb.statusCallbacks {
			invokeCallbackSafe(sb.logger, "status callback", func() { cb(event) })
		}
	}
	return true
}

func (sb *StationBoard) injectFromDashboard(stationID, status string) error {
	if err := sb.Inject(stationID, Status(status)); err != nil {
		return err
	}
	sb.logger.Info("status injected", "station", stationID, "status", status)
	return nil
}

func (sb *StationBoard) onStateChange(from, to ConnectionState) {
	sb.logger.Info("realtime state changed", "from", from.String(), "state", to.String())
	for _, cb := range sb.stateCallbacks {
		invokeCallbackSafe(sb.logger, "state callback", func() { cb(from, to) })
	}
}

func (sb *StationBoard) serverStations() []server.Station {
	result := make([]server.Station, len(sb.stations))
	for i, s := range sb.stations {
		result[i] = server.Station{ID: s.ID, Name: s.Name}
	}
	return result
}

// invokeCallbackSafe calls fn with panic recovery. Panics are logged with
// a correlation id and the stack but do not propagate.
func invokeCallbackSafe(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(name+" panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
