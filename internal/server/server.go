package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/internal/health"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
	"github.com/therealutkarshpriyadarshi/rclog/internal/profiling"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Config holds status server configuration
type Config struct {
	Address       string
	Metrics       http.Handler    // served on /metrics when set
	HealthChecker *health.Checker // served on /health, /health/live and /health/ready when set
	Archives      func() []types.ArchivePosition
	Watcher       func() any // watcher counters shown next to the archives
	PProf         bool
	Logger        *logging.Logger
}

// Server exposes metrics, health and the processed archives of watch mode
type Server struct {
	config   Config
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

// ArchivesResponse is the body of /archives
type ArchivesResponse struct {
	Archives []types.ArchivePosition `json:"archives"`
	Watcher  any                     `json:"watcher,omitempty"`
}

// New creates a new server
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger.WithComponent("server"),
	}
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // pprof CPU profiles stream for 30s by default
	}
	return s
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.config.Metrics != nil {
		mux.Handle("/metrics", s.config.Metrics)
	}

	if c := s.config.HealthChecker; c != nil {
		mux.HandleFunc("/health", c.HTTPHandler())
		mux.HandleFunc("/health/live", c.LivenessHandler())
		mux.HandleFunc("/health/ready", c.ReadinessHandler())
	}

	if s.config.Archives != nil {
		mux.HandleFunc("/archives", s.archivesHandler)
	}

	if s.config.PProf {
		profiling.RegisterHandlers(mux)
	}

	return mux
}

func (s *Server) archivesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := ArchivesResponse{Archives: s.config.Archives()}
	if response.Archives == nil {
		response.Archives = []types.ArchivePosition{}
	}
	if s.config.Watcher != nil {
		response.Watcher = s.config.Watcher()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write archives response")
	}
}

// Start binds the address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	s.listener = listener

	go func() {
		s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting status server")
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Status server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Address
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down status server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
