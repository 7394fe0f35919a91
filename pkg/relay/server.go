package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/slideremote/relay/internal/observability"
	"github.com/slideremote/relay/internal/tracing"
)

// Server is the relay hub: it accepts agent and controller WebSocket
// connections, hands each one to the Router, and hosts the health and
// metrics endpoints.
type Server struct {
	host           string
	port           int
	version        string
	metricsEnabled bool

	server   *http.Server
	upgrader websocket.Upgrader
	registry *Registry
	router   *Router
	sweeper  *Sweeper
	conns    *ConnRegistry
	logger   zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	handlerWG      sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	SharedSecret  string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	Version       string
	Metrics       bool
	Logger        zerolog.Logger
}

// NewServer creates a new relay hub server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	registry := NewRegistry(RegistryOptions{Logger: cfg.Logger})
	router := NewRouter(registry, cfg.SharedSecret, cfg.Logger)
	sweeper := NewSweeper(registry, cfg.SessionTTL, cfg.SweepInterval, cfg.Logger)

	return &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		version:        cfg.Version,
		metricsEnabled: cfg.Metrics,
		registry:       registry,
		router:         router,
		sweeper:        sweeper,
		conns:          NewConnRegistry(),
		logger:         cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Controllers connect from arbitrary mobile origins
			},
		},
	}, nil
}

// Registry exposes the session registry, mainly for tests and diagnostics.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start starts the relay hub
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/agent", s.handleAgentWS)
	mux.HandleFunc("/ws/controller", s.handleControllerWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("/metrics", observability.MetricsHandler())
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.host).
		Int("port", s.port).
		Msg("Starting relay hub")

	// Start server in goroutine so it doesn't block
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Relay server error")
		}
	}()

	return s.sweeper.Start()
}

// Stop gracefully stops the relay hub
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down relay hub")

	if err := s.sweeper.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop sweeper")
	}

	// Tear down sessions first, then any connections that never made it
	// into a session.
	s.logger.Info().Int("open_connections", s.conns.Count()).Msg("Closing connections")
	s.registry.teardownAll()
	for _, conn := range s.conns.GetAll() {
		_ = conn.Close()
	}

	// Wait for connection handlers with timeout
	done := make(chan struct{})
	go func() {
		s.handlerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Relay hub stopped")
	return nil
}

func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	s.handleWS(w, r, RoleAgent)
}

func (s *Server) handleControllerWS(w http.ResponseWriter, r *http.Request) {
	s.handleWS(w, r, RoleController)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, role Role) {
	// The WaitGroup increment must happen under the same lock as the
	// shutdown check, or a request slipping past the flag could Add
	// concurrently with Stop's Wait.
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.handlerWG.Add(1)
	s.shutdownMu.RUnlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.handlerWG.Done()
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	conn := NewConn(ws, role, r.RemoteAddr)
	s.conns.Add(conn)
	observability.ConnOpened(string(role))

	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	ctx = tracing.WithConnID(ctx, conn.ID)

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("role", string(role)).
		Str("ip", conn.RemoteAddr).
		Msg("Client connected")

	go func() {
		defer s.handlerWG.Done()
		defer func() {
			conn.Close()
			s.conns.Remove(conn.ID)
			observability.ConnClosed(string(role))
			logger.Info().Str("role", string(role)).Msg("Client disconnected")
		}()

		switch role {
		case RoleAgent:
			s.router.HandleAgent(ctx, conn)
		case RoleController:
			s.router.HandleController(ctx, conn)
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","version":%q,"sessions":%d,"agents":%d,"controllers":%d}`,
		s.version, s.registry.Count(), s.conns.CountByRole(RoleAgent), s.conns.CountByRole(RoleController))
}
