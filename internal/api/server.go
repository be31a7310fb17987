package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/avclink-core/internal/alert"
	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
	"github.com/nerrad567/avclink-core/internal/infrastructure/config"
	"github.com/nerrad567/avclink-core/internal/infrastructure/logging"
	"github.com/nerrad567/avclink-core/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BrokerStatus reports MQTT connectivity. *mqtt.Client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Simulator *connection.Simulator
	Session   *session.Manager
	Alerts    *alert.Service
	History   *history.Service

	Hub     *Hub         // shared with the session manager; created if nil
	MQTT    BrokerStatus // optional, reported by /metrics
	DB      *sql.DB      // optional, pool stats for /metrics
	Version string
}

// Server is the HTTP API server for AVC Link Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	sim       *connection.Simulator
	session   *session.Manager
	alerts    *alert.Service
	history   *history.Service
	mqtt      BrokerStatus
	db        *sql.DB
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // stops background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Simulator == nil:
		return nil, fmt.Errorf("simulator is required")
	case deps.Session == nil:
		return nil, fmt.Errorf("session manager is required")
	case deps.Alerts == nil:
		return nil, fmt.Errorf("alert service is required")
	case deps.History == nil:
		return nil, fmt.Errorf("history service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		sim:       deps.Simulator,
		session:   deps.Session,
		alerts:    deps.Alerts,
		history:   deps.History,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.SetStateSource(deps.Simulator)
	return s, nil
}

// Hub returns the WebSocket hub the server broadcasts through.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router. Start serves it; tests mount it
// on httptest servers.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return s.buildRouter(ctx)
}

// Start runs the WebSocket hub and begins listening for HTTP connections
// in the background. Stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(srvCtx),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
