// Package server exposes the reservation lifecycle over HTTP with gin.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/middleware/ginmw"
	"github.com/chimerakang/reservation-go/token"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	// APIPrefix is the mount point of the reservation routes.
	APIPrefix = "/api/v3/reservations"

	// APIVersion is reported by the status endpoint.
	APIVersion = "3.0.0"

	// ShutdownTimeout bounds the drain of in-flight requests.
	ShutdownTimeout = 10 * time.Second
)

// Deps are the collaborators of the server.
type Deps struct {
	Reservations Reservations
	Verifier     reservation.TokenVerifier

	// Issuer serves POST /auth/token; nil disables the route.
	Issuer *token.Issuer

	// Gatherer serves GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer

	// Ready backs the readiness probe; nil always reports ready.
	Ready func(context.Context) error

	Logger *slog.Logger
}

// Server is the HTTP front of the reservation API.
type Server struct {
	cfg    reservation.Config
	r      *gin.Engine
	deps   Deps
	logger *slog.Logger
}

// New builds the gin engine and registers all routes.
func New(cfg reservation.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), ginmw.RequestID(), ginmw.AccessLog(logger))

	s := &Server{
		cfg:    cfg,
		r:      r,
		deps:   deps,
		logger: logger,
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.r }

// Run serves on the configured address until ctx is cancelled, then drains
// in-flight requests for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("reservations api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() {
	optional := ginmw.Authenticate(s.deps.Verifier, false, ginmw.WithLogger(s.logger))
	required := ginmw.Authenticate(s.deps.Verifier, true, ginmw.WithLogger(s.logger))

	s.r.GET("/", s.handleRoot)
	s.r.GET("/health", s.handleRootHealth)
	s.r.POST("/auth/token", s.handleToken)
	if s.deps.Gatherer != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.r.Group(APIPrefix)
	{
		api.GET("/status", s.handleStatus)
		api.GET("/health", s.handleHealth)
		api.GET("/health/live", s.handleLive)
		api.GET("/health/ready", s.handleReady)

		api.GET("/reservations", optional, s.handleList)
		api.GET("/reservations/:id", optional, s.handleGet)
		api.POST("/reservations", optional, s.handleCreate)
		api.PUT("/reservations/:id", optional, s.handleUpsert)
		api.DELETE("/reservations/:id", required, s.handleDelete)
		api.PATCH("/reservations/:id/status", required, s.handlePatchStatus)
	}
}
