package keys

import (
	"context"
	"errors"

	reservation "github.com/chimerakang/reservation-go"
)

// Static resolves every key id to one shared HMAC secret.
type Static struct {
	secret []byte
}

// compile-time check
var _ reservation.KeyProvider = (*Static)(nil)

// NewStatic creates a provider for the given shared secret.
func NewStatic(secret string) *Static {
	return &Static{secret: []byte(secret)}
}

// Resolve returns the secret. The key id is ignored.
func (s *Static) Resolve(_ context.Context, _ string) (any, error) {
	if len(s.secret) == 0 {
		return nil, reservation.NewAuthError(reservation.KindKeyNotFound, errors.New("no shared secret configured"))
	}
	return s.secret, nil
}
