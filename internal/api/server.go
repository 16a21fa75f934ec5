package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-stage/internal/audit"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-stage/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-stage/internal/playback"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
	"github.com/nerrad567/gray-logic-stage/internal/stagedata"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultCallTimeout bounds how long a request waits for the playback loop.
const defaultCallTimeout = 5 * time.Second

// Playback is the serialised engine access the API needs.
// *playback.Dispatcher implements it.
type Playback interface {
	Do(ctx context.Context, fn func(*stage.Engine) error) error
	ApplyObjectUpdate(ctx context.Context, ev stage.ObjectUpdateEvent) (stage.Result, error)
	ApplyTransformUpdate(ctx context.Context, ev stage.TransformUpdateEvent) (int, error)
	Stats() playback.Stats
}

// ConnectionChecker reports broker connectivity (mqtt.Client).
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Playback Playback
	Misses   *stage.MissLog       // optional: recent misses in memory
	Store    stagedata.Repository // optional: persisted misses and authored data
	Audit    audit.Repository     // optional: trail of injected events
	MQTT     ConnectionChecker    // optional
	DB       *sql.DB              // optional: pool stats in /metrics
	Hub      *Hub                 // if set, the server uses this hub instead of creating its own
	ShowID   string
	Version  string
}

// Server is the HTTP API server for Gray Logic Stage.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	playback  Playback
	misses    *stage.MissLog
	store     stagedata.Repository
	audit     audit.Repository
	mqtt      ConnectionChecker
	db        *sql.DB
	showID    string
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	ownHub    bool
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Playback == nil {
		return nil, fmt.Errorf("playback is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		playback:  deps.Playback,
		misses:    deps.Misses,
		store:     deps.Store,
		audit:     deps.Audit,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		showID:    deps.ShowID,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.ownHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.ownHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr, "auth", s.authEnabled())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
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

// callContext bounds a request's wait on the playback loop.
func callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), defaultCallTimeout)
}
