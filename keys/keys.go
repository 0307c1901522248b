// Package keys provides the key material used to verify bearer tokens.
//
// Two providers implement reservation.KeyProvider:
//
//   - Static returns one shared HMAC secret for every token.
//   - Remote fetches the issuer's JWKS once and resolves RSA keys by kid.
//
// FromConfig picks one of them at startup; the choice is never revisited per
// request.
package keys

import (
	reservation "github.com/chimerakang/reservation-go"
)

// FromConfig returns a Remote provider when an issuer URL is configured and a
// Static provider otherwise. opts apply to the Remote provider only.
func FromConfig(cfg reservation.Config, opts ...RemoteOption) reservation.KeyProvider {
	if cfg.RemoteKeys() {
		opts = append([]RemoteOption{WithTimeout(cfg.KeyFetchTimeout)}, opts...)
		return NewRemote(cfg.IssuerURL, opts...)
	}
	return NewStatic(cfg.SecretKey)
}
