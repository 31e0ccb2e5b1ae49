package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatsSource supplies the stats array of a metrics response.
type StatsSource interface {
	Stats() []map[string]any
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func() []map[string]any

func (f StatsFunc) Stats() []map[string]any { return f() }

// MetricsConfig holds metrics server configuration options.
type MetricsConfig struct {
	Addr         string // Listen address, e.g. "127.0.0.1:9090" or "127.0.0.1:0"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// DefaultMetricsConfig returns a configuration suitable for testing.
// Uses "127.0.0.1:0" to bind to a random available port.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Addr:         "127.0.0.1:0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// MetricsServer serves GET /metrics. Any other path answers 404 and any
// other method on /metrics answers 400.
type MetricsServer struct {
	httpServer *http.Server
	source     StatsSource
	log        *zap.Logger
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewMetricsServer creates a server. It is not started until Start is called.
func NewMetricsServer(cfg MetricsConfig, source StatsSource) *MetricsServer {
	s := &MetricsServer{source: source, log: cfg.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      http.HandlerFunc(s.serveHTTP),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

type metricsResponse struct {
	Version     string           `json:"version"`
	LibWebRTC   string           `json:"libwebrtc"`
	Environment string           `json:"environment"`
	Stats       []map[string]any `json:"stats"`
}

func (s *MetricsServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metrics" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	stats := s.source.Stats()
	if stats == nil {
		stats = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metricsResponse{
		Version:     ClientName(),
		LibWebRTC:   LibWebRTCName(),
		Environment: EnvironmentName(),
		Stats:       stats,
	}); err != nil {
		s.log.Warn("write metrics response", zap.Error(err))
	}
}

// Start begins listening and serving in the background. It returns the
// actual listen address, useful when the port is 0.
func (s *MetricsServer) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server", zap.Error(err))
		}
	}()
	s.log.Info("metrics server listening", zap.String("addr", s.addr))
	return s.addr, nil
}

// Shutdown gracefully shuts down the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address, or "" if the server is not running.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
