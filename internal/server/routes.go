package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/observability"
	"github.com/tripfx/tripfx/internal/server/handlers"
)

const (
	adminSignalPath = "/admin/signal"
	pprofPath       = "/debug"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.api != nil {
		s.router.Route("/api/v1", s.api.Routes)
	}
}

// EnableAdminSignals mounts POST /admin/signal behind bearer token auth so
// operators can trigger a reload (log level) or shutdown over HTTP. An
// empty token leaves the endpoint unmounted.
func (s *Server) EnableAdminSignals(token string) {
	if token == "" {
		return
	}
	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post(adminSignalPath, handler.ServeHTTP)

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", adminSignalPath),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}

// EnablePprof mounts the runtime profiler under /debug.
func (s *Server) EnablePprof() {
	s.router.Mount(pprofPath, middleware.Profiler())
	if logger := observability.ServerLogger; logger != nil {
		logger.Warn("pprof endpoints enabled", zap.String("path", pprofPath))
	}
}
