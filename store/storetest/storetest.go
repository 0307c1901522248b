// Package storetest holds the behaviour every reservation.Store must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/google/uuid"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) reservation.Store

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Fields returns valid reservation fields for tests.
func Fields(name string) reservation.Fields {
	notes := "window seat"
	return reservation.Fields{
		RoomID:          "6f1c7e0a-3b2d-4c59-9a4e-0d7f5b8e2a11",
		From:            base.Add(24 * time.Hour),
		To:              base.Add(26 * time.Hour),
		CustomerName:    name,
		CustomerEmail:   name + "@example.com",
		PartySize:       2,
		SpecialRequests: &notes,
	}
}

func newReservation(id, name string, created time.Time) reservation.Reservation {
	return reservation.Reservation{
		ID:        id,
		Fields:    Fields(name),
		Status:    reservation.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s reservation.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateAssignsID", testCreateAssignsID},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"Update", testUpdate},
		{"UpdateClearsDeletion", testUpdateClearsDeletion},
		{"SetStatus", testSetStatus},
		{"MissingMutations", testMissingMutations},
		{"SoftDeleteAndRestore", testSoftDeleteAndRestore},
		{"ListFiltersDeleted", testListFiltersDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testCreateAndGet(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	in := newReservation(id, "alice", base)

	created, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.ID != id {
		t.Errorf("Create() ID = %q, want %q", created.ID, id)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.CustomerName != "alice" || got.CustomerEmail != "alice@example.com" || got.PartySize != 2 {
		t.Errorf("Get() fields = %+v", got.Fields)
	}
	if got.RoomID != in.RoomID {
		t.Errorf("RoomID = %q, want %q", got.RoomID, in.RoomID)
	}
	if !got.From.Equal(in.From) || !got.To.Equal(in.To) {
		t.Errorf("window = %v..%v, want %v..%v", got.From, got.To, in.From, in.To)
	}
	if got.SpecialRequests == nil || *got.SpecialRequests != "window seat" {
		t.Errorf("SpecialRequests = %v, want window seat", got.SpecialRequests)
	}
	if got.Status != reservation.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", got.DeletedAt)
	}

	ok, err := s.Exists(ctx, id)
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v, want true", ok, err)
	}
}

func testCreateAssignsID(t *testing.T, s reservation.Store) {
	created, err := s.Create(context.Background(), newReservation("", "bob", base))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := uuid.Parse(created.ID); err != nil {
		t.Errorf("Create() ID = %q, want a UUID", created.ID)
	}
}

func testCreateDuplicate(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Create(ctx, newReservation(id, "alice", base)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	_, err := s.Create(ctx, newReservation(id, "mallory", base))
	if !errors.Is(err, reservation.ErrConflict) {
		t.Fatalf("Create(duplicate) = %v, want ErrConflict", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.CustomerName != "alice" {
		t.Errorf("duplicate create overwrote record: %q", got.CustomerName)
	}
}

func testGetMissing(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Get(ctx, id); !errors.Is(err, reservation.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
	ok, err := s.Exists(ctx, id)
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v, want false", ok, err)
	}
}

func testUpdate(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Create(ctx, newReservation(id, "alice", base)); err != nil {
		t.Fatal(err)
	}

	f := Fields("carol")
	f.PartySize = 6
	f.SpecialRequests = nil
	at := base.Add(time.Hour)
	updated, err := s.Update(ctx, id, f, at)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.CustomerName != "carol" || updated.PartySize != 6 {
		t.Errorf("Update() fields = %+v", updated.Fields)
	}
	if updated.SpecialRequests != nil {
		t.Errorf("SpecialRequests = %v, want nil", *updated.SpecialRequests)
	}
	if !updated.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, at)
	}
	if !updated.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt changed to %v", updated.CreatedAt)
	}
	if updated.Status != reservation.StatusPending {
		t.Errorf("Status = %q, want pending", updated.Status)
	}
}

func testUpdateClearsDeletion(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Create(ctx, newReservation(id, "alice", base)); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.SoftDelete(ctx, id, base.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v, want true", ok, err)
	}

	at := base.Add(2 * time.Hour)
	updated, err := s.Update(ctx, id, Fields("dave"), at)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.DeletedAt != nil {
		t.Errorf("Update() DeletedAt = %v, want nil", *updated.DeletedAt)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeletedAt != nil || got.CustomerName != "dave" || !got.UpdatedAt.Equal(at) {
		t.Errorf("stored = %+v, want dave restored at %v", got, at)
	}
}

func testSetStatus(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Create(ctx, newReservation(id, "alice", base)); err != nil {
		t.Fatal(err)
	}
	at := base.Add(2 * time.Hour)
	updated, err := s.SetStatus(ctx, id, reservation.StatusConfirmed, at)
	if err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if updated.Status != reservation.StatusConfirmed || !updated.UpdatedAt.Equal(at) {
		t.Errorf("SetStatus() = %q at %v", updated.Status, updated.UpdatedAt)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != reservation.StatusConfirmed {
		t.Errorf("stored Status = %q, want confirmed", got.Status)
	}
}

func testMissingMutations(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Update(ctx, id, Fields("x"), base); !errors.Is(err, reservation.ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.SetStatus(ctx, id, reservation.StatusCancelled, base); !errors.Is(err, reservation.ErrNotFound) {
		t.Errorf("SetStatus(missing) = %v, want ErrNotFound", err)
	}
	if ok, err := s.SoftDelete(ctx, id, base); err != nil || ok {
		t.Errorf("SoftDelete(missing) = %v, %v, want false", ok, err)
	}
	if ok, err := s.Restore(ctx, id, base); err != nil || ok {
		t.Errorf("Restore(missing) = %v, %v, want false", ok, err)
	}
}

func testSoftDeleteAndRestore(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := s.Create(ctx, newReservation(id, "alice", base)); err != nil {
		t.Fatal(err)
	}

	first := base.Add(time.Hour)
	if ok, err := s.SoftDelete(ctx, id, first); err != nil || !ok {
		t.Fatalf("SoftDelete() = %v, %v, want true", ok, err)
	}
	// A second delete succeeds and keeps the original deletion time.
	if ok, err := s.SoftDelete(ctx, id, first.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("second SoftDelete() = %v, %v, want true", ok, err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get(deleted) error: %v", err)
	}
	if got.DeletedAt == nil || !got.DeletedAt.Equal(first) {
		t.Fatalf("DeletedAt = %v, want %v", got.DeletedAt, first)
	}
	if ok, _ := s.Exists(ctx, id); !ok {
		t.Error("Exists(deleted) = false, want true")
	}

	if ok, err := s.Restore(ctx, id, first.Add(2*time.Hour)); err != nil || !ok {
		t.Fatalf("Restore() = %v, %v, want true", ok, err)
	}
	got, err = s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt after restore = %v, want nil", got.DeletedAt)
	}
}

func testListFiltersDeleted(t *testing.T, s reservation.Store) {
	ctx := context.Background()
	live, gone := uuid.NewString(), uuid.NewString()
	if _, err := s.Create(ctx, newReservation(live, "alice", base)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, newReservation(gone, "bob", base.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SoftDelete(ctx, gone, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx, false)
	if err != nil {
		t.Fatalf("List(false) error: %v", err)
	}
	if len(list) != 1 || list[0].ID != live {
		t.Fatalf("List(false) = %v, want only %s", ids(list), live)
	}
	for _, r := range list {
		if r.DeletedAt != nil {
			t.Errorf("List(false) returned deleted record %s", r.ID)
		}
	}

	all, err := s.List(ctx, true)
	if err != nil {
		t.Fatalf("List(true) error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List(true) = %v, want 2 records", ids(all))
	}
	if all[0].ID != live || all[1].ID != gone {
		t.Errorf("List(true) order = %v, want creation order", ids(all))
	}
}

func ids(list []reservation.Reservation) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}
