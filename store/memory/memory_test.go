package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/store/memory"
	"github.com/chimerakang/reservation-go/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) reservation.Store { return memory.New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	created, err := s.Create(ctx, reservation.Reservation{Fields: storetest.Fields("alice")})
	if err != nil {
		t.Fatal(err)
	}
	*created.SpecialRequests = "mutated"
	created.CustomerName = "mutated"

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CustomerName != "alice" || *got.SpecialRequests != "window seat" {
		t.Errorf("store shares memory with callers: %+v", got.Fields)
	}
}

func TestStore_Seed(t *testing.T) {
	s := memory.New(
		reservation.Reservation{ID: "a", Fields: storetest.Fields("alice")},
		reservation.Reservation{Fields: storetest.Fields("bob")},
	)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if ok, _ := s.Exists(context.Background(), "a"); !ok {
		t.Error("seeded record a missing")
	}
}

func TestStore_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	const n = 32

	ids := make([]string, n)
	for i := range ids {
		r, err := s.Create(ctx, reservation.Reservation{Fields: storetest.Fields(fmt.Sprintf("user%d", i))})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = r.ID
	}

	var wg sync.WaitGroup
	at := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(3)
		id := ids[i%len(ids)]
		go func() {
			defer wg.Done()
			_, _ = s.SetStatus(ctx, id, reservation.StatusConfirmed, at)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.SoftDelete(ctx, id, at)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.List(ctx, true)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if r.Status != reservation.StatusConfirmed || r.DeletedAt == nil {
			t.Errorf("record %s = %q deleted=%v", id, r.Status, r.IsDeleted())
		}
	}
}

func TestStore_ConcurrentCreateSameID(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, reservation.Reservation{ID: "same", Fields: storetest.Fields("x")}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("%d creates succeeded, want 1", wins)
	}
}
