package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/tripfx/tripfx/internal/errors"
	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/server/handlers"
	servermw "github.com/tripfx/tripfx/internal/server/middleware"
)

// Connection timeouts used when the configuration leaves them unset. Writes
// get the longest budget: a cold recommendation fans out to flight providers.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 60 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
)

// Server is the recommendation API listener.
type Server struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	router *chi.Mux
	server *http.Server
	api    *handlers.API
	host   string
	port   int
}

// New builds the router. A nil api serves only the operational endpoints.
func New(host string, port int, api *handlers.API) *Server {
	r := chi.NewRouter()

	// RequestID first so every later layer can correlate; Recovery inside
	// RequestMetrics so a recovered panic is counted as a 500.
	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		api:    api,
		host:   host,
		port:   port,
	}
	s.registerRoutes()
	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.ReadTimeout, DefaultReadTimeout),
		WriteTimeout: orDefault(s.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:  orDefault(s.IdleTimeout, DefaultIdleTimeout),
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
