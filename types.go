package reservation

import (
	"fmt"
	"strings"
	"time"
)

// Claims represents the claims extracted from a verified token.
type Claims struct {
	Subject           string
	PreferredUsername string
	Issuer            string
	Audience          []string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	Extra             map[string]any
}

// Identity returns the caller identity carried by the claims.
// Claims without a subject yield Anonymous.
func (c *Claims) Identity() Identity {
	if c == nil || c.Subject == "" {
		return Anonymous
	}
	return Identity{Subject: c.Subject}
}

// AnonymousSubject is the subject carried by the anonymous identity.
const AnonymousSubject = "anonymous"

// Identity is the resolved caller handed to the lifecycle coordinator.
//
// Anonymity is a property of how the identity was obtained, not of its
// subject: a verified token whose sub is "anonymous" is a concrete caller.
type Identity struct {
	Subject string

	anonymous bool
}

// Anonymous is the identity used when no credential was required or
// verification is disabled.
var Anonymous = Identity{Subject: AnonymousSubject, anonymous: true}

// IsAnonymous reports whether the identity is the anonymous sentinel or
// carries no subject at all.
func (i Identity) IsAnonymous() bool {
	return i.anonymous || i.Subject == ""
}

func (i Identity) String() string {
	if i.IsAnonymous() {
		return AnonymousSubject
	}
	return i.Subject
}

// Status is the lifecycle status of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
}

// Fields holds the caller-mutable part of a reservation.
type Fields struct {
	RoomID          string
	From            time.Time
	To              time.Time
	CustomerName    string
	CustomerEmail   string
	PartySize       int
	SpecialRequests *string
}

// Validate checks the field constraints shared by create and upsert.
func (f Fields) Validate() error {
	switch {
	case strings.TrimSpace(f.RoomID) == "":
		return fmt.Errorf("%w: room_id is required", ErrInvalidArgument)
	case strings.TrimSpace(f.CustomerName) == "":
		return fmt.Errorf("%w: customer_name is required", ErrInvalidArgument)
	case strings.TrimSpace(f.CustomerEmail) == "":
		return fmt.Errorf("%w: customer_email is required", ErrInvalidArgument)
	case f.PartySize <= 0:
		return fmt.Errorf("%w: party_size must be greater than 0", ErrInvalidArgument)
	case f.From.IsZero() || f.To.IsZero():
		return fmt.Errorf("%w: from and to are required", ErrInvalidArgument)
	case f.To.Before(f.From):
		return fmt.Errorf("%w: to must not be before from", ErrInvalidArgument)
	}
	return nil
}

// Reservation is a stored reservation record.
type Reservation struct {
	ID string
	Fields
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	// DeletedAt is non-nil once the record has been soft-deleted.
	DeletedAt *time.Time
}

// IsDeleted reports whether the reservation is soft-deleted.
func (r Reservation) IsDeleted() bool { return r.DeletedAt != nil }

// UpsertOutcome distinguishes the two results of an upsert.
type UpsertOutcome int

const (
	OutcomeCreated UpsertOutcome = iota + 1
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	}
	return "unknown"
}

// UpsertResult is returned by an upsert.
type UpsertResult struct {
	Reservation Reservation
	Outcome     UpsertOutcome
	// Restored is set when the record was soft-deleted before the upsert.
	Restored bool
}

// Audit operation names.
const (
	OpCreate = "CREATE"
	OpRead   = "READ"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// EntityReservation is the audit entity type for reservations.
const EntityReservation = "reservation"
