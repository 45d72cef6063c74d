// Package httpapi is the read-only HTTP surface: rankings, alert history,
// source health, Prometheus metrics, and the live alert websocket feed.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/alerts"
	"github.com/mediaheat/heatwatch/internal/persistence"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	ScoreWindow  time.Duration `yaml:"score_window"`
	RedisAddr    string        `yaml:"redis_addr"`
}

// DefaultServerConfig binds to localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ScoreWindow:  2 * time.Hour,
	}
}

// Server is the read-only API server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	feed     *AlertFeed
	config   ServerConfig
}

// NewServer wires routes over the store and alert hub. hub may be nil; the
// websocket route is then omitted.
func NewServer(config ServerConfig, store *persistence.Store, hub *alerts.Hub) *Server {
	if config.ScoreWindow <= 0 {
		config.ScoreWindow = 2 * time.Hour
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewHandlers(store, NewCache(config.RedisAddr), config.ScoreWindow),
		config:   config,
	}
	if hub != nil {
		s.feed = NewAlertFeed(hub)
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.feed != nil {
		s.router.HandleFunc("/ws/alerts", s.feed.Serve).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.handlers.Healthz).Methods(http.MethodGet)
	api.HandleFunc("/top", s.handlers.Top).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handlers.Alerts).Methods(http.MethodGet)
	api.HandleFunc("/entities", s.handlers.Entities).Methods(http.MethodGet)
	api.HandleFunc("/sources/health", s.handlers.SourceHealth).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
