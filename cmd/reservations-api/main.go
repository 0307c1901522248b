// Command reservations-api serves the reservation API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/audit"
	"github.com/chimerakang/reservation-go/keys"
	"github.com/chimerakang/reservation-go/lifecycle"
	"github.com/chimerakang/reservation-go/metrics"
	"github.com/chimerakang/reservation-go/server"
	"github.com/chimerakang/reservation-go/store"
	"github.com/chimerakang/reservation-go/token"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const auditBufferSize = 256

func main() {
	if err := run(); err != nil {
		slog.Error("reservations-api failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := reservation.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		reg      *prometheus.Registry
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		gatherer = reg
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	provider := keys.FromConfig(cfg, keys.WithLogger(logger), keys.WithMetrics(m))
	verifier := token.NewVerifier(provider,
		append(token.OptionsFromConfig(cfg), token.WithLogger(logger), token.WithMetrics(m))...)
	if r, ok := provider.(*keys.Remote); ok {
		logger.Info("verifying tokens against remote key set", "url", r.URL(), "algorithm", cfg.Algorithm)
	} else {
		logger.Info("verifying tokens with static secret", "algorithm", cfg.Algorithm)
	}

	if cfg.DisableAuth {
		logger.Warn("DISABLE_AUTH is set, every caller is anonymous")
	}

	var issuer *token.Issuer
	if !cfg.RemoteKeys() {
		if issuer, err = token.IssuerFromConfig(cfg); err != nil {
			return err
		}
	}

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	logger.Info("store ready", "driver", cfg.StorageDriver)

	auditLog := audit.New(auditBufferSize, audit.WithSlogHandler(logger.With("component", "audit")))
	defer auditLog.Close()

	coord := lifecycle.New(backend, auditLog,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(m),
	)

	srv := server.New(cfg, server.Deps{
		Reservations: coord,
		Verifier:     verifier,
		Issuer:       issuer,
		Gatherer:     gatherer,
		Ready:        backend.Ping,
		Logger:       logger,
	})
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("reservations-api stopped")
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}
