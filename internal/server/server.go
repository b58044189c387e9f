package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/stationboard/internal/realtime"
	"github.com/jpalmerr/stationboard/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "StationBoard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	maxInjectBody = 1 << 10

	defaultInjectLimit = rate.Limit(5)
	defaultInjectBurst = 10
)

// Station is a configured station as shown on the dashboard.
type Station struct {
	ID   string
	Name string
}

// StationView is one row of the dashboard, as served by /api/status and
// streamed by /api/sse.
type StationView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State    string        `json:"state"`
	Stations []StationView `json:"stations"`
}

// InjectRequest is the body of POST /api/inject.
type InjectRequest struct {
	StationID string `json:"stationId"`
	Status    string `json:"status"`
}

// Config configures a [Server].
type Config struct {
	Port int

	// Assets contains assets/index.html. May be nil, in which case only the
	// API is served.
	Assets fs.FS

	// Title defaults to "StationBoard" if empty.
	Title string

	// Stations fixes the display order and names. Ids outside this list
	// are appended in lexical order.
	Stations []Station

	// Inject submits a manual status event. If nil, POST /api/inject
	// responds 404.
	Inject func(stationID, status string) error

	// State reports the realtime connection state. If nil, "unknown" is
	// reported.
	State func() string

	// InjectLimit and InjectBurst rate-limit POST /api/inject. Zero values
	// default to 5 per second with a burst of 10.
	InjectLimit rate.Limit
	InjectBurst int
}

// Server handles HTTP requests for the StationBoard dashboard and API.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/status: Returns all current station statuses as JSON
//   - GET /api/sse: Server-Sent Events stream for real-time updates
//   - GET /api/connection: Returns the realtime connection state
//   - POST /api/inject: Applies a manual status event
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	cfg        Config
	names      map[string]string
	limiter    *rate.Limiter
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.InjectLimit == 0 {
		cfg.InjectLimit = defaultInjectLimit
	}
	if cfg.InjectBurst <= 0 {
		cfg.InjectBurst = defaultInjectBurst
	}
	if logger == nil {
		logger = slog.Default()
	}

	names := make(map[string]string, len(cfg.Stations))
	for _, s := range cfg.Stations {
		names[s.ID] = s.Name
	}

	return &Server{
		store:   st,
		cfg:     cfg,
		names:   names,
		limiter: rate.NewLimiter(cfg.InjectLimit, cfg.InjectBurst),
		logger:  logger,
	}
}

// Handler returns the request router. It is used by [Server.Start] and
// directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/connection", s.handleConnection)
	mux.HandleFunc("/api/inject", s.handleInject)

	// serve dashboard assets
	if s.cfg.Assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context,
		// so SSE handlers end when ctx is cancelled.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleStatus returns the ordered station list with current statuses.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		State:    s.state(),
		Stations: s.views(s.store.Snapshot()),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleConnection returns the realtime connection state.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": s.state()})
}

// handleInject applies a manual status event from the dashboard's test
// controls.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Inject == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "too many inject requests")
		return
	}

	var req InjectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInjectBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Inject(req.StationID, req.Status); err != nil {
		if errors.Is(err, realtime.ErrNormalization) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("inject rejected", "station", req.StationID, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, StationView{
		ID:     req.StationID,
		Name:   s.names[req.StationID],
		Status: req.Status,
	})
}

// handleSSE streams status updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before reading the snapshot so no update falls between them
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, view := range s.views(s.store.Snapshot()) {
		data, err := json.Marshal(view)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(StationView{
				ID:     update.StationID,
				Name:   s.names[update.StationID],
				Status: update.Status,
			})
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

// views orders a snapshot for display: configured stations first, in
// configuration order, then any other ids sorted.
func (s *Server) views(snapshot map[string]string) []StationView {
	views := make([]StationView, 0, len(snapshot))
	for _, st := range s.cfg.Stations {
		status, ok := snapshot[st.ID]
		if !ok {
			continue
		}
		views = append(views, StationView{ID: st.ID, Name: st.Name, Status: status})
	}

	var extra []string
	for id := range snapshot {
		if _, known := s.names[id]; !known {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	for _, id := range extra {
		views = append(views, StationView{ID: id, Status: snapshot[id]})
	}
	return views
}

func (s *Server) state() string {
	if s.cfg.State == nil {
		return "unknown"
	}
	return s.cfg.State()
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
