package keys

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCertsPath is appended to the issuer URL to reach the key set.
	DefaultCertsPath = "/protocol/openid-connect/certs"

	// DefaultFetchTimeout bounds a key set fetch.
	DefaultFetchTimeout = 5 * time.Second
)

// Remote resolves RSA public keys from a JWKS endpoint.
//
// The key set is fetched on first use and cached for the lifetime of the
// Remote. A key id missing from the cached set fails with KeyNotFound and does
// not trigger a refetch, so keys rotated at the issuer are only picked up by a
// new Remote. A failed fetch caches nothing.
type Remote struct {
	certsURL   string
	certsPath  string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey // kid → public key
	loaded bool

	sf singleflight.Group
}

// compile-time check
var _ reservation.KeyProvider = (*Remote)(nil)

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient sets a custom HTTP client for fetching the key set.
// Its own Timeout, if any, applies in addition to the fetch timeout.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithTimeout sets the fetch timeout. Default: 5 seconds.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCertsPath overrides the path appended to the issuer URL.
func WithCertsPath(path string) RemoteOption {
	return func(r *Remote) {
		if path != "" {
			r.certsPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RemoteOption {
	return func(r *Remote) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) RemoteOption {
	return func(r *Remote) { r.metrics = m }
}

// NewRemote creates a key provider for the given issuer base URL.
func NewRemote(issuerURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		certsPath: DefaultCertsPath,
		timeout:   DefaultFetchTimeout,
		logger:    slog.Default(),
		keys:      make(map[string]*rsa.PublicKey),
	}
	for _, o := range opts {
		o(r)
	}
	r.certsURL = strings.TrimRight(strings.TrimSpace(issuerURL), "/") + "/" + strings.TrimLeft(r.certsPath, "/")
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: r.timeout}
	}
	return r
}

// URL returns the key set endpoint.
func (r *Remote) URL() string { return r.certsURL }

// Resolve returns the RSA public key for kid.
func (r *Remote) Resolve(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, reservation.NewAuthError(reservation.KindKeyNotFound, errors.New("token missing kid header"))
	}

	r.mu.RLock()
	key, found := r.keys[kid]
	loaded := r.loaded
	r.mu.RUnlock()

	if loaded {
		if !found {
			r.logger.Error("unknown key id", "kid", kid)
			return nil, reservation.NewAuthError(reservation.KindKeyNotFound, fmt.Errorf("kid %q not in key set", kid))
		}
		r.metrics.RecordKeyCacheHit()
		return key, nil
	}

	r.metrics.RecordKeyCacheMiss()
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.keys[kid]; ok {
		return key, nil
	}
	r.logger.Error("unknown key id", "kid", kid)
	return nil, reservation.NewAuthError(reservation.KindKeyNotFound, fmt.Errorf("kid %q not in key set", kid))
}

// load fetches the key set once; concurrent callers share one fetch.
func (r *Remote) load(ctx context.Context) error {
	_, err, _ := r.sf.Do("certs", func() (any, error) {
		r.mu.RLock()
		loaded := r.loaded
		r.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		start := time.Now()
		keys, err := r.fetch(ctx)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			r.metrics.RecordKeyFetch("error", elapsed)
			r.logger.Error("failed to fetch key set", "url", r.certsURL, "error", err)
			return nil, reservation.NewAuthError(reservation.KindSourceUnavailable, err)
		}
		r.metrics.RecordKeyFetch("ok", elapsed)
		r.metrics.SetKeyCacheSize(len(keys))

		r.mu.Lock()
		r.keys = keys
		r.loaded = true
		r.mu.Unlock()

		r.logger.Info("loaded key set", "url", r.certsURL, "keys", len(keys))
		return nil, nil
	})
	return err
}

// fetch downloads and parses the key set.
func (r *Remote) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("reservation/keys: create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reservation/keys: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reservation/keys: fetch returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("reservation/keys: decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kid == "" || jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			r.logger.Debug("skipping malformed key", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("reservation/keys: no usable RSA signing keys in key set")
	}
	return keys, nil
}

// JWKS JSON types

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.N == "" || k.E == "" {
		return nil, errors.New("missing rsa params")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes).Int64()
	if e <= 0 || e > int64(^uint32(0)) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e),
	}, nil
}
