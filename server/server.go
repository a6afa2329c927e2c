// Package server wires the LumiVerse HTTP server together: configuration,
// the scoring client and its circuit breaker, sessions, rate limiting,
// metrics and routing. Configuration changes picked up by the watcher are
// applied without a restart where that is safe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lumiverse/lumiverse/config"
	"github.com/lumiverse/lumiverse/form"
	"github.com/lumiverse/lumiverse/scoring"
	"github.com/lumiverse/lumiverse/server/circuitbreaker"
	"github.com/lumiverse/lumiverse/server/handlers"
	"github.com/lumiverse/lumiverse/server/metrics"
	"github.com/lumiverse/lumiverse/server/middleware"
	"github.com/lumiverse/lumiverse/server/routing"
	"github.com/lumiverse/lumiverse/server/session"
	"go.uber.org/zap"
)

const (
	sessionSweepInterval = time.Minute
	limiterSweepInterval = 5 * time.Minute
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *routing.Router
	watcher    config.Watcher
	logger     *zap.Logger
	level      *zap.AtomicLevel

	metrics  *metrics.Metrics
	sessions *session.Store
	limiter  *middleware.RateLimiter
	breaker  *circuitbreaker.CircuitBreaker

	mu     sync.Mutex
	cfg    *config.Config
	doneCh chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogLevel lets configuration reloads change the level of the logger the
// server was given.
func WithLogLevel(level zap.AtomicLevel) Option {
	return func(s *Server) {
		s.level = &level
	}
}

// NewServer loads configPath, watches it for changes and builds the server.
func NewServer(configPath string, logger *zap.Logger, opts ...Option) (*Server, error) {
	watcher, err := config.NewConfigWatcher(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	s, err := NewServerWithConfig(watcher, logger, opts...)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithConfig builds the server from a configuration source.
func NewServerWithConfig(watcher config.Watcher, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := watcher.GetCurrentConfig()
	if cfg == nil {
		return nil, fmt.Errorf("no configuration available")
	}

	s := &Server{
		watcher: watcher,
		logger:  logger,
		metrics: metrics.NewMetrics(),
		cfg:     cfg,
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	client := s.newScoringClient(cfg)
	maxFile := cfg.Import.MaxFileBytes
	s.sessions = session.NewStore(cfg.Session.IdleTimeout, func() *form.Controller {
		return form.NewController(client,
			form.WithMaxFileBytes(maxFile),
			form.WithLogger(logger),
		)
	},
		session.WithGauge(s.metrics.ActiveSessions),
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithLogger(logger),
	)

	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, s.metrics)
	}

	routerOpts := routing.Options{
		Handler:    handlers.New(logger, s.metrics, maxFile),
		Sessions:   s.sessions,
		CookieName: cfg.Session.CookieName,
		Limiter:    s.limiter,
		Metrics:    s.metrics,
	}
	if s.breaker != nil {
		routerOpts.BreakerState = func() string { return s.breaker.State().String() }
	}
	s.router = routing.NewRouter(routerOpts, logger)

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go s.watchConfig()

	return s, nil
}

// newScoringClient builds the completion client with the breaker and token
// estimate the configuration asks for.
func (s *Server) newScoringClient(cfg *config.Config) *scoring.Client {
	opts := []scoring.Option{scoring.WithLogger(s.logger)}

	if cfg.CircuitBreaker.Enabled {
		s.breaker = circuitbreaker.NewCircuitBreaker(
			"completion",
			circuitbreaker.FromConfig(cfg.CircuitBreaker),
			s.logger,
			s.metrics.Registry(),
		)
		opts = append(opts, scoring.WithBreaker(s.breaker))
	}

	if cfg.LLM.TokenEncoding != "" {
		counter, err := scoring.NewTokenCounter(cfg.LLM.TokenEncoding)
		if err != nil {
			// the estimate is only logged, so carry on without it
			s.logger.Warn("Token counting disabled", zap.Error(err))
		} else {
			opts = append(opts, scoring.WithTokenizer(counter))
		}
	}

	return scoring.NewClient(cfg.LLM, opts...)
}

// watchConfig applies configuration updates until the watcher closes or the
// server shuts down.
func (s *Server) watchConfig() {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-s.doneCh:
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

// applyConfig updates the settings that can change at runtime: the log
// level and the session limits. Everything else needs a restart.
func (s *Server) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if s.level != nil {
		if lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
			s.level.SetLevel(lvl.Level())
		}
	}
	s.sessions.SetIdleTimeout(cfg.Session.IdleTimeout)
	s.sessions.SetMaxSessions(cfg.Session.MaxSessions)

	if old != nil && (old.Server != cfg.Server || old.LLM != cfg.LLM ||
		old.CircuitBreaker != cfg.CircuitBreaker || old.RateLimit != cfg.RateLimit ||
		old.Import != cfg.Import || old.Session.CookieName != cfg.Session.CookieName) {
		s.logger.Warn("Configuration changed in sections that require a restart")
	}

	s.logger.Info("Configuration applied",
		zap.String("log_level", cfg.Logging.Level),
		zap.Duration("session_idle_timeout", cfg.Session.IdleTimeout),
		zap.Int("max_sessions", cfg.Session.MaxSessions),
	)
}

// Config returns the configuration currently in effect.
func (s *Server) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server and blocks until ctx is cancelled or the listener
// fails. On cancellation the server drains in-flight requests for up to
// server.shutdown_timeout.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go s.sessions.Run(bgCtx, sessionSweepInterval)
	if s.limiter != nil {
		go s.runLimiterCleanup(bgCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.stop()
		return err
	}
}

// Shutdown stops accepting connections, waits for in-flight requests and
// closes the config watcher.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.Config().Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down server")
	err := s.httpServer.Shutdown(shutdownCtx)
	s.stop()
	if err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	return nil
}

// stop ends the config subscription and closes the watcher once.
func (s *Server) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.doneCh:
		return
	default:
		close(s.doneCh)
	}

	if err := s.watcher.Close(); err != nil {
		s.logger.Warn("Failed to close config watcher", zap.Error(err))
	}
}

func (s *Server) runLimiterCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(limiterSweepInterval); n > 0 {
				s.logger.Debug("rate limiter entries removed", zap.Int("removed", n))
			}
		}
	}
}
