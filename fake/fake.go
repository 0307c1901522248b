// Package fake provides in-memory implementations of the reservation
// collaborators for testing.
//
// Use fake.NewVerifier() in handler and middleware tests to avoid signing
// real tokens, and fake.Recorder to assert on audit events.
package fake

import (
	"context"
	"fmt"
	"sync"

	reservation "github.com/chimerakang/reservation-go"
)

// Option configures the fake verifier.
type Option func(*Verifier)

// WithToken maps a bearer token to a subject.
func WithToken(token, subject string) Option {
	return func(v *Verifier) { v.tokens[token] = subject }
}

// WithFailure makes token fail verification with the given kind.
func WithFailure(token string, kind reservation.AuthErrorKind) Option {
	return func(v *Verifier) { v.failures[token] = kind }
}

// WithDisabled makes every token, including none, verify as anonymous.
func WithDisabled() Option {
	return func(v *Verifier) { v.disabled = true }
}

// --- TokenVerifier ---

// Verifier implements reservation.TokenVerifier from a token table.
type Verifier struct {
	mu       sync.Mutex
	tokens   map[string]string                    // token → subject
	failures map[string]reservation.AuthErrorKind // token → failure kind
	disabled bool
	calls    []string
}

// compile-time check
var _ reservation.TokenVerifier = (*Verifier)(nil)

// NewVerifier creates a fake verifier.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		tokens:   make(map[string]string),
		failures: make(map[string]reservation.AuthErrorKind),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify resolves token from the table. Unknown tokens fail as
// SignatureInvalid and the empty token as Missing.
func (v *Verifier) Verify(_ context.Context, token string) (reservation.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, token)

	if v.disabled {
		return reservation.Anonymous, nil
	}
	if token == "" {
		return reservation.Identity{}, reservation.NewAuthError(reservation.KindMissing, fmt.Errorf("fake: no token"))
	}
	if kind, ok := v.failures[token]; ok {
		return reservation.Identity{}, reservation.NewAuthError(kind, fmt.Errorf("fake: token %q rejected", token))
	}
	subject, ok := v.tokens[token]
	if !ok {
		return reservation.Identity{}, reservation.NewAuthError(reservation.KindSignatureInvalid, fmt.Errorf("fake: unknown token %q", token))
	}
	return reservation.Identity{Subject: subject}, nil
}

// Calls returns the tokens passed to Verify, in order.
func (v *Verifier) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// --- AuditRecorder ---

// Event is one recorded audit call.
type Event struct {
	Operation  string
	Identity   reservation.Identity
	EntityType string
	EntityID   string
	Message    string
}

// Recorder implements reservation.AuditRecorder by keeping every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// compile-time check
var _ reservation.AuditRecorder = (*Recorder)(nil)

// Record stores the event.
func (r *Recorder) Record(_ context.Context, operation string, identity reservation.Identity, entityType, entityID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Operation:  operation,
		Identity:   identity,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    message,
	})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event and whether there was one.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
