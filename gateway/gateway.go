// Package gateway is a reference transport adapter over the service façade:
// a status endpoint, a websocket live-preview push, a websocket frame-ingest
// channel and task termination. The production transport lives outside this
// process; this adapter exists so the engine can be driven and observed
// without it.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/health"
	"github.com/Jiadezhende/CleanSightBackend/service"
)

const (
	defaultPushInterval = 30 * time.Millisecond
	writeDeadline       = 5 * time.Second
	readDeadline        = 60 * time.Second
	maxFrameMessage     = 8 << 20
)

// Gateway serves the HTTP and websocket endpoints.
type Gateway struct {
	svc          *service.Service
	addr         string
	pushInterval time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	monitor      *health.Monitor

	running atomic.Bool
	server  *http.Server

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPushInterval sets the live-preview poll cadence.
func WithPushInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pushInterval = d
		}
	}
}

// WithHealthMonitor serves an aggregated health report on /ai/health.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(g *Gateway) {
		g.monitor = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l.With("component", "gateway")
		}
	}
}

// New creates a gateway listening on addr.
func New(svc *service.Service, addr string, opts ...Option) (*Gateway, error) {
	if svc == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "New", "service required")
	}
	if addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "New", "listen address")
	}

	g := &Gateway{
		svc:          svc,
		addr:         addr,
		pushInterval: defaultPushInterval,
		logger:       slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(_ *http.Request) bool { return true },
	}
	return g, nil
}

// Routes returns the gateway's handler tree.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/status", g.handleStatus)
	mux.HandleFunc("/ai/health", g.handleHealth)
	mux.HandleFunc("/ai/video", g.handleVideo)
	mux.HandleFunc("/ai/upload", g.handleUpload)
	mux.HandleFunc("/ai/terminate_task/", g.handleTerminateTask)
	return mux
}

// Start runs the HTTP server. Blocks until Stop or listener failure.
func (g *Gateway) Start(_ context.Context) error {
	if g.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start", "already running")
	}
	g.running.Store(true)

	g.server = &http.Server{
		Addr:              g.addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("gateway listening", "addr", g.addr)
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start", "listen")
	}
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.svc.Status()); err != nil {
		g.logger.Warn("status write failed", "error", err)
	}
}

// handleHealth reports aggregated component health. Without a monitor it
// degrades to a bare liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if g.monitor == nil {
		_ = json.NewEncoder(w).Encode(health.NewHealthy("gateway", "running"))
		return
	}

	report := g.monitor.Evaluate()
	if report.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		g.logger.Warn("health write failed", "error", err)
	}
}

// handleVideo pushes the newest processed frame as a data URL at the poll
// cadence. The client is removed from the engine when the socket closes.
func (g *Gateway) handleVideo(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", "client_id", clientID, "error", err)
		return
	}
	defer conn.Close()
	defer g.svc.RemoveClient(clientID)

	g.logger.Info("preview stream opened", "client_id", clientID)

	// reads only serve to detect the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(g.pushInterval)
	defer ticker.Stop()

	var lastSent []byte
	for {
		select {
		case <-closed:
			g.logger.Info("preview stream closed", "client_id", clientID)
			return
		case <-ticker.C:
			data, ok := g.svc.GetResult(clientID, true)
			if !ok || string(data) == string(lastSent) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				g.logger.Info("preview stream closed", "client_id", clientID, "error", err)
				return
			}
			lastSent = data
			g.framesOut.Add(1)
		}
	}
}

// handleUpload ingests base64 JPEG frames pushed over a websocket.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", "client_id", clientID, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameMessage)

	g.logger.Info("upload stream opened", "client_id", clientID)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.logger.Info("upload stream closed", "client_id", clientID, "error", err)
			return
		}

		if err := g.svc.SubmitEncodedFrame(clientID, string(message)); err != nil {
			// a bad frame is the sender's problem, not the stream's
			resp, _ := json.Marshal(map[string]string{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, resp)
			continue
		}
		g.framesIn.Add(1)
	}
}

func (g *Gateway) handleTerminateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := strings.TrimPrefix(r.URL.Path, "/ai/terminate_task/")
	if clientID == "" || strings.Contains(clientID, "/") {
		http.Error(w, "client_id required", http.StatusBadRequest)
		return
	}

	if err := g.svc.TerminateTask(clientID); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "terminated", "client_id": clientID})
}
