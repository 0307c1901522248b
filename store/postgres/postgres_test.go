package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/store/storetest"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for missing POSTGRES_DSN")
	}
}

func TestModelConversion(t *testing.T) {
	deleted := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	in := reservation.Reservation{
		ID:        "0b0f1c8e-2f7c-4a55-a1c4-1e4b9d7f6a22",
		Fields:    storetest.Fields("alice"),
		Status:    reservation.StatusCancelled,
		CreatedAt: deleted.Add(-time.Hour),
		UpdatedAt: deleted,
		DeletedAt: &deleted,
	}
	m := toModel(in)
	if m.DeletedAt == nil || m.DeletedAt.Location() != time.UTC {
		t.Fatalf("DeletedAt = %v, want UTC copy", m.DeletedAt)
	}
	out := fromModel(m)
	if out.ID != in.ID || out.Status != in.Status || out.CustomerName != "alice" {
		t.Errorf("fromModel(toModel()) = %+v", out)
	}
	if !out.DeletedAt.Equal(deleted) {
		t.Errorf("DeletedAt = %v, want %v", out.DeletedAt, deleted)
	}
}

func TestStore(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("RESERVATIONS_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("RESERVATIONS_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, func(t *testing.T) reservation.Store {
		if err := s.db.Exec("TRUNCATE TABLE reservations").Error; err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
