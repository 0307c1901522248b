package token

import (
	"fmt"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultLifetime is the lifetime of issued tokens unless configured.
const DefaultLifetime = 30 * time.Minute

// Issuer signs HMAC access tokens with the shared secret.
type Issuer struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
	now      func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithLifetime sets the default token lifetime.
func WithLifetime(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.lifetime = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates an issuer for an HMAC algorithm (HS256, HS384, HS512).
func NewIssuer(secret, algorithm string, opts ...IssuerOption) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("reservation/token: empty signing secret")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("reservation/token: %q is not an HMAC algorithm", algorithm)
	}
	i := &Issuer{
		secret:   []byte(secret),
		method:   method,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// IssuerFromConfig creates an issuer from the static-secret settings.
func IssuerFromConfig(cfg reservation.Config) (*Issuer, error) {
	if cfg.RemoteKeys() {
		return nil, fmt.Errorf("reservation/token: tokens are issued externally when JWT_ISSUER_URL is set")
	}
	return NewIssuer(cfg.SecretKey, cfg.Algorithm, WithLifetime(cfg.TokenLifetime()))
}

// Lifetime returns the default token lifetime.
func (i *Issuer) Lifetime() time.Duration { return i.lifetime }

// Issue signs a token for subject. extra claims are merged in but never
// override sub or exp. A zero lifetime uses the default.
func (i *Issuer) Issue(subject string, lifetime time.Duration, extra map[string]any) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("reservation/token: %w: empty subject", reservation.ErrInvalidArgument)
	}
	if lifetime <= 0 {
		lifetime = i.lifetime
	}
	exp := i.now().Add(lifetime)

	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["exp"] = jwt.NewNumericDate(exp)

	s, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reservation/token: sign: %w", err)
	}
	return s, exp, nil
}
