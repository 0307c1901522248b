package reservation

import (
	"context"
	"time"
)

// TokenVerifier verifies bearer tokens and resolves the caller identity.
// Implementations: token/ (JWT), fake/ (testing).
type TokenVerifier interface {
	// Verify validates the token and returns the caller identity.
	// Failures are *AuthError values.
	Verify(ctx context.Context, token string) (Identity, error)
}

// KeyProvider resolves the key material used to check a token signature.
// Implementations: keys.Static (shared secret), keys.Remote (JWKS).
type KeyProvider interface {
	// Resolve returns the key for the given key id. kid may be empty.
	// Failures are *AuthError values of kind KeyNotFound or SourceUnavailable.
	Resolve(ctx context.Context, kid string) (any, error)
}

// Store persists reservations. Records are never hard-deleted.
// Implementations: store/memory, store/sqlite, store/postgres.
type Store interface {
	// List returns all reservations, soft-deleted ones only if includeDeleted.
	List(ctx context.Context, includeDeleted bool) ([]Reservation, error)

	// Get returns a reservation by id, including soft-deleted ones.
	// Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (Reservation, error)

	// Create stores a new reservation. An empty ID is replaced by a fresh UUID.
	// Returns ErrConflict if the id is taken.
	Create(ctx context.Context, r Reservation) (Reservation, error)

	// Update overwrites the mutable fields, clears any deletion mark and sets
	// UpdatedAt in one write. Returns ErrNotFound if absent.
	Update(ctx context.Context, id string, f Fields, at time.Time) (Reservation, error)

	// SetStatus overwrites the status and sets UpdatedAt.
	SetStatus(ctx context.Context, id string, s Status, at time.Time) (Reservation, error)

	// SoftDelete marks the record deleted. An already deleted record keeps
	// its original deletion time. Returns false if absent.
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)

	// Restore clears the deletion mark. Returns false if absent.
	Restore(ctx context.Context, id string, at time.Time) (bool, error)

	// Exists reports whether a record with the id is stored.
	Exists(ctx context.Context, id string) (bool, error)
}

// AuditRecorder receives one structured event per operation.
type AuditRecorder interface {
	Record(ctx context.Context, operation string, identity Identity, entityType, entityID, message string)
}
