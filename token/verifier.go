// Package token verifies bearer JWTs against a reservation.KeyProvider and
// issues short-lived HMAC tokens for the static-secret deployment.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/keys"
	"github.com/chimerakang/reservation-go/metrics"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier implements reservation.TokenVerifier.
//
// The issuer claim is never checked: the issuer advertised inside tokens may
// differ from the address used to reach the key service.
type Verifier struct {
	provider         reservation.KeyProvider
	algorithm        string
	audience         string
	disabled         bool
	usernameFallback bool
	source           string
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// compile-time check
var _ reservation.TokenVerifier = (*Verifier)(nil)

// Option configures the Verifier.
type Option func(*Verifier)

// WithAlgorithm sets the only accepted signing algorithm. Default: HS256.
func WithAlgorithm(alg string) Option {
	return func(v *Verifier) {
		if alg != "" {
			v.algorithm = alg
		}
	}
}

// WithAudience requires the aud claim to contain aud. Empty skips the check.
func WithAudience(aud string) Option {
	return func(v *Verifier) { v.audience = aud }
}

// WithDisabled turns verification off; every caller becomes anonymous.
func WithDisabled(disabled bool) Option {
	return func(v *Verifier) { v.disabled = disabled }
}

// WithUsernameFallback uses preferred_username when sub is absent.
func WithUsernameFallback(on bool) Option {
	return func(v *Verifier) { v.usernameFallback = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// OptionsFromConfig translates the process configuration into options.
func OptionsFromConfig(cfg reservation.Config) []Option {
	return []Option{
		WithAlgorithm(cfg.Algorithm),
		WithAudience(cfg.Audience),
		WithDisabled(cfg.DisableAuth),
		WithUsernameFallback(cfg.RemoteKeys()),
	}
}

// NewVerifier creates a verifier that resolves keys through provider.
func NewVerifier(provider reservation.KeyProvider, opts ...Option) *Verifier {
	v := &Verifier{
		provider:  provider,
		algorithm: reservation.DefaultStaticAlgorithm,
		source:    sourceOf(provider),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify validates the token and returns the caller identity.
func (v *Verifier) Verify(ctx context.Context, raw string) (reservation.Identity, error) {
	claims, err := v.VerifyClaims(ctx, raw)
	if err != nil {
		return reservation.Identity{}, err
	}
	return claims.Identity(), nil
}

// VerifyClaims validates the token and returns its claims. Subject holds the
// resolved identity, which may come from preferred_username. When
// verification is disabled the claims are empty and resolve to Anonymous.
func (v *Verifier) VerifyClaims(ctx context.Context, raw string) (*reservation.Claims, error) {
	if v.disabled {
		v.logger.WarnContext(ctx, "token verification is disabled, caller treated as anonymous")
		return &reservation.Claims{}, nil
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, v.fail(ctx, reservation.NewAuthError(reservation.KindMissing, errors.New("no bearer token")))
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, v.fail(ctx, reservation.NewAuthError(reservation.KindMalformed, err))
	}
	if expired(unverified.Claims, time.Now()) {
		return nil, v.fail(ctx, reservation.NewAuthError(reservation.KindExpired, jwt.ErrTokenExpired))
	}
	kid, _ := unverified.Header["kid"].(string)

	key, err := v.provider.Resolve(ctx, kid)
	if err != nil {
		if reservation.AuthKind(err) == 0 {
			err = reservation.NewAuthError(reservation.KindSourceUnavailable, err)
		}
		return nil, v.fail(ctx, err)
	}

	mc := jwt.MapClaims{}
	tok, err := v.parser().ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, v.fail(ctx, classify(err))
	}
	if !tok.Valid {
		return nil, v.fail(ctx, reservation.NewAuthError(reservation.KindSignatureInvalid, errors.New("token is not valid")))
	}

	claims := toClaims(mc)
	if claims.Subject == "" && v.usernameFallback {
		claims.Subject = claims.PreferredUsername
	}
	if claims.Subject == "" {
		return nil, v.fail(ctx, reservation.NewAuthError(reservation.KindNoSubject, errors.New("token has no subject")))
	}

	v.metrics.RecordAuthSuccess(v.source)
	return claims, nil
}

func (v *Verifier) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithIssuedAt(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return jwt.NewParser(opts...)
}

func (v *Verifier) fail(ctx context.Context, err error) error {
	kind := reservation.AuthKind(err)
	v.metrics.RecordAuthFailure(v.source, kind.String())
	if kind != reservation.KindMissing {
		v.logger.WarnContext(ctx, "token verification failed", "reason", kind.String(), "error", err)
	}
	return err
}

// expired reports whether the token carries an exp before now. It is checked
// ahead of the signature so an expired token is reported as expired whatever
// key signed it.
func expired(c jwt.Claims, now time.Time) bool {
	exp, err := c.GetExpirationTime()
	return err == nil && exp != nil && exp.Before(now)
}

// classify maps golang-jwt validation errors onto auth error kinds.
func classify(err error) error {
	kind := reservation.KindInvalidClaims
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		kind = reservation.KindMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		kind = reservation.KindSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		kind = reservation.KindExpired
	}
	return reservation.NewAuthError(kind, fmt.Errorf("reservation/token: %w", err))
}

var registeredClaims = map[string]bool{
	"sub": true, "preferred_username": true, "iss": true,
	"aud": true, "exp": true, "iat": true, "nbf": true, "jti": true,
}

func toClaims(m jwt.MapClaims) *reservation.Claims {
	c := &reservation.Claims{Extra: make(map[string]any)}
	c.Subject, _ = m.GetSubject()
	c.Issuer, _ = m.GetIssuer()
	if v, ok := m["preferred_username"].(string); ok {
		c.PreferredUsername = v
	}
	if aud, err := m.GetAudience(); err == nil {
		c.Audience = aud
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	for k, v := range m {
		if !registeredClaims[k] {
			c.Extra[k] = v
		}
	}
	return c
}

func sourceOf(p reservation.KeyProvider) string {
	switch p.(type) {
	case *keys.Remote:
		return "remote"
	case *keys.Static:
		return "static"
	}
	return "custom"
}
