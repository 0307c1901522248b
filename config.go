// Package reservation is the core of a reservation-management API.
//
// It defines the domain types (Reservation, Identity, Claims), the collaborator
// interfaces (TokenVerifier, KeyProvider, Store, AuditRecorder) and the
// process configuration. Concrete implementations live in subpackages and are
// wired together in cmd/reservations-api:
//
//	cfg, err := reservation.LoadConfig()
//	provider := keys.FromConfig(cfg)
//	verifier := token.NewVerifier(provider, token.OptionsFromConfig(cfg)...)
//	coord := lifecycle.New(store, auditLogger)
package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default signing algorithms for the two key sources.
const (
	DefaultStaticAlgorithm = "HS256"
	DefaultRemoteAlgorithm = "RS256"
)

// Config holds process configuration, read from the environment.
type Config struct {
	// HTTPAddr is the listen address of the API server.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SecretKey is the shared secret used when no issuer URL is configured.
	SecretKey string `env:"SECRET_KEY" envDefault:"your-secret-key-change-in-production"`

	// Algorithm is the expected token signing algorithm. Empty selects
	// HS256 for the static secret and RS256 for the remote key set.
	Algorithm string `env:"JWT_ALGORITHM"`

	// TokenLifetimeMinutes is the lifetime of locally issued tokens.
	TokenLifetimeMinutes int `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`

	// IssuerURL switches verification to the remote key set published at
	// <IssuerURL>/protocol/openid-connect/certs.
	IssuerURL string `env:"JWT_ISSUER_URL"`

	// Audience is checked against the aud claim only when non-empty.
	Audience string `env:"JWT_AUDIENCE"`

	// KeyFetchTimeout bounds the remote key set fetch.
	KeyFetchTimeout time.Duration `env:"JWT_CERTS_TIMEOUT" envDefault:"5s"`

	// DisableAuth turns every caller into the anonymous identity.
	DisableAuth bool `env:"DISABLE_AUTH" envDefault:"false"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"reservations.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig parses the configuration from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("reservation: parse env: %w", err)
	}
	return cfg.normalize()
}

// LoadConfigFrom parses the configuration from the given variables only.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("reservation: parse env: %w", err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.IssuerURL = strings.TrimSpace(c.IssuerURL)
	c.Audience = strings.TrimSpace(c.Audience)
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	if c.Algorithm == "" {
		c.Algorithm = DefaultStaticAlgorithm
		if c.RemoteKeys() {
			c.Algorithm = DefaultRemoteAlgorithm
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !c.RemoteKeys() && c.SecretKey == "" {
		return fmt.Errorf("reservation: SECRET_KEY is required without JWT_ISSUER_URL")
	}
	if c.TokenLifetimeMinutes <= 0 {
		return fmt.Errorf("reservation: ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.KeyFetchTimeout <= 0 {
		return fmt.Errorf("reservation: JWT_CERTS_TIMEOUT must be positive")
	}
	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("reservation: SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("reservation: POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("reservation: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// RemoteKeys reports whether tokens are verified against the remote key set.
func (c Config) RemoteKeys() bool { return c.IssuerURL != "" }

// TokenLifetime returns the lifetime of locally issued tokens.
func (c Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}
