package reservation

import "context"

type ctxKey string

const (
	ctxKeyIdentity ctxKey = "reservation_identity"
	ctxKeyClaims   ctxKey = "reservation_claims"
)

// WithIdentity stores the resolved caller identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext extracts the caller identity from the context.
// It returns Anonymous when none was stored.
func IdentityFromContext(ctx context.Context) Identity {
	v, ok := ctx.Value(ctxKeyIdentity).(Identity)
	if !ok {
		return Anonymous
	}
	return v
}

// WithClaims stores the full token claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the full token claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}
