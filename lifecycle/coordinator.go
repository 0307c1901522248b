// Package lifecycle implements the reservation lifecycle: create, upsert with
// implicit restore, soft delete and status changes, gated by caller identity.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/metrics"
	"github.com/google/uuid"
)

// Coordinator applies lifecycle rules between a caller identity and the store.
// Successful operations emit one audit event each.
type Coordinator struct {
	store   reservation.Store
	audit   reservation.AuditRecorder
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator. A nil recorder discards audit events.
func New(store reservation.Store, recorder reservation.AuditRecorder, opts ...Option) *Coordinator {
	if recorder == nil {
		recorder = discard{}
	}
	c := &Coordinator{
		store:  store,
		audit:  recorder,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// List returns reservations, soft-deleted ones only if includeDeleted.
func (c *Coordinator) List(ctx context.Context, caller reservation.Identity, includeDeleted bool) ([]reservation.Reservation, error) {
	list, err := c.store.List(ctx, includeDeleted)
	if err != nil {
		return nil, c.failed(ctx, reservation.OpRead, "", fmt.Errorf("list reservations: %w", err))
	}
	if !includeDeleted {
		// Guard against stores that ignore the flag.
		kept := list[:0]
		for _, r := range list {
			if !r.IsDeleted() {
				kept = append(kept, r)
			}
		}
		list = kept
	}
	c.record(ctx, reservation.OpRead, "read", caller, "all", fmt.Sprintf("Retrieved %d reservations", len(list)))
	return list, nil
}

// Get returns one reservation, including a soft-deleted one.
func (c *Coordinator) Get(ctx context.Context, caller reservation.Identity, id string) (reservation.Reservation, error) {
	r, err := c.store.Get(ctx, id)
	if err != nil {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpRead, id, lookupError(id, err))
	}
	c.record(ctx, reservation.OpRead, "read", caller, id, "Retrieved reservation "+id)
	return r, nil
}

// Create stores a new pending reservation under a fresh id.
func (c *Coordinator) Create(ctx context.Context, caller reservation.Identity, f reservation.Fields) (reservation.Reservation, error) {
	if err := f.Validate(); err != nil {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpCreate, "", err)
	}
	created, err := c.create(ctx, uuid.NewString(), f)
	if err != nil {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpCreate, "", fmt.Errorf("create reservation: %w", err))
	}
	c.record(ctx, reservation.OpCreate, "created", caller, created.ID, "Created reservation "+created.ID)
	return created, nil
}

// Upsert creates the reservation id if absent, otherwise overwrites its
// fields and clears a soft delete.
//
// Creating is open to anonymous callers; overwriting an existing record
// requires a concrete identity.
func (c *Coordinator) Upsert(ctx context.Context, caller reservation.Identity, id string, f reservation.Fields) (reservation.UpsertResult, error) {
	if strings.TrimSpace(id) == "" {
		return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, fmt.Errorf("%w: empty reservation id", reservation.ErrInvalidArgument))
	}
	if err := f.Validate(); err != nil {
		return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, err)
	}

	existing, err := c.store.Get(ctx, id)
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		created, err := c.create(ctx, id, f)
		if err == nil {
			c.record(ctx, reservation.OpCreate, "created", caller, id, "Created reservation with specified ID "+id)
			return reservation.UpsertResult{Reservation: created, Outcome: reservation.OutcomeCreated}, nil
		}
		if !errors.Is(err, reservation.ErrConflict) {
			return reservation.UpsertResult{}, c.failed(ctx, reservation.OpCreate, id, fmt.Errorf("create reservation %s: %w", id, err))
		}
		// Lost a race with a concurrent create of the same id.
		if existing, err = c.store.Get(ctx, id); err != nil {
			return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, lookupError(id, err))
		}
	case err != nil:
		return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, lookupError(id, err))
	}

	if caller.IsAnonymous() {
		return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, fmt.Errorf("update reservation %s: %w", id, reservation.ErrUnauthorized))
	}

	now := c.now()
	updated, err := c.store.Update(ctx, id, f, now)
	if err != nil {
		return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, lookupError(id, err))
	}

	// Update clears a soft delete in the same write. A mark still present on
	// the returned row is cleared explicitly.
	restored := existing.IsDeleted() || updated.IsDeleted()
	msg, result := "Updated reservation "+id, "updated"
	if updated.IsDeleted() {
		ok, err := c.store.Restore(ctx, id, now)
		if err != nil {
			return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, fmt.Errorf("restore reservation %s: %w", id, err))
		}
		if !ok {
			return reservation.UpsertResult{}, c.failed(ctx, reservation.OpUpdate, id, lookupError(id, reservation.ErrNotFound))
		}
		updated.DeletedAt = nil
		updated.UpdatedAt = now
	}
	if restored {
		msg, result = "Updated and restored reservation "+id, "restored"
	}

	c.record(ctx, reservation.OpUpdate, result, caller, id, msg)
	return reservation.UpsertResult{Reservation: updated, Outcome: reservation.OutcomeUpdated, Restored: restored}, nil
}

// Delete soft-deletes the reservation. Deleting an already deleted record
// succeeds and keeps its original deletion time.
func (c *Coordinator) Delete(ctx context.Context, caller reservation.Identity, id string) error {
	if caller.IsAnonymous() {
		return c.failed(ctx, reservation.OpDelete, id, fmt.Errorf("delete reservation %s: %w", id, reservation.ErrUnauthorized))
	}
	ok, err := c.store.SoftDelete(ctx, id, c.now())
	if err != nil {
		return c.failed(ctx, reservation.OpDelete, id, fmt.Errorf("delete reservation %s: %w", id, err))
	}
	if !ok {
		return c.failed(ctx, reservation.OpDelete, id, lookupError(id, reservation.ErrNotFound))
	}
	c.record(ctx, reservation.OpDelete, "deleted", caller, id, "Deleted reservation "+id)
	return nil
}

// PatchStatus overwrites the status of the reservation.
func (c *Coordinator) PatchStatus(ctx context.Context, caller reservation.Identity, id, status string) (reservation.Reservation, error) {
	if caller.IsAnonymous() {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpUpdate, id, fmt.Errorf("update reservation %s: %w", id, reservation.ErrUnauthorized))
	}
	st, err := reservation.ParseStatus(status)
	if err != nil {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpUpdate, id, err)
	}
	updated, err := c.store.SetStatus(ctx, id, st, c.now())
	if err != nil {
		return reservation.Reservation{}, c.failed(ctx, reservation.OpUpdate, id, lookupError(id, err))
	}
	c.record(ctx, reservation.OpUpdate, "updated", caller, id, fmt.Sprintf("Changed status of reservation %s to %s", id, st))
	return updated, nil
}

func (c *Coordinator) create(ctx context.Context, id string, f reservation.Fields) (reservation.Reservation, error) {
	now := c.now()
	return c.store.Create(ctx, reservation.Reservation{
		ID:        id,
		Fields:    f,
		Status:    reservation.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (c *Coordinator) record(ctx context.Context, op, result string, caller reservation.Identity, id, msg string) {
	c.metrics.RecordOperation(op, result)
	c.audit.Record(ctx, op, caller, reservation.EntityReservation, id, msg)
}

func (c *Coordinator) failed(ctx context.Context, op, id string, err error) error {
	result := "error"
	level := slog.LevelError
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		result, level = "not_found", slog.LevelDebug
	case errors.Is(err, reservation.ErrUnauthorized):
		result, level = "unauthorized", slog.LevelWarn
	case errors.Is(err, reservation.ErrInvalidArgument):
		result, level = "invalid", slog.LevelDebug
	case errors.Is(err, reservation.ErrConflict):
		result, level = "conflict", slog.LevelWarn
	}
	c.metrics.RecordOperation(op, result)
	c.logger.Log(ctx, level, "reservation operation failed", "operation", op, "id", id, "error", err)
	return err
}

func lookupError(id string, err error) error {
	if errors.Is(err, reservation.ErrNotFound) {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	return fmt.Errorf("reservation %s: %w", id, err)
}

type discard struct{}

func (discard) Record(context.Context, string, reservation.Identity, string, string, string) {}
