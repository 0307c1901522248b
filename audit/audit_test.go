package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	reservation "github.com/chimerakang/reservation-go"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestRecord(t *testing.T) {
	var c collector
	logger := New(10, WithHandler(c.handle))

	ctx := WithRequestID(context.Background(), "req-12345")
	logger.Record(ctx, reservation.OpDelete, reservation.Identity{Subject: "alice"},
		reservation.EntityReservation, "b3c5", "Reservation soft-deleted")
	logger.Close()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Operation != "DELETE" || e.User != "alice" || e.EntityType != "reservation" || e.EntityID != "b3c5" {
		t.Errorf("unexpected event fields: %+v", e)
	}
	if e.RequestID != "req-12345" {
		t.Errorf("expected req-12345, got %s", e.RequestID)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestRecordDefaults(t *testing.T) {
	var c collector
	logger := New(10, WithHandler(c.handle))

	logger.Record(context.Background(), reservation.OpRead, reservation.Anonymous, reservation.EntityReservation, "", "")
	logger.Close()

	e := c.all()[0]
	if e.User != "anonymous" {
		t.Errorf("expected anonymous, got %s", e.User)
	}
	if e.EntityID != NoEntityID {
		t.Errorf("expected %s, got %s", NoEntityID, e.EntityID)
	}
	if e.Message != "Operation READ on reservation" {
		t.Errorf("unexpected default message %q", e.Message)
	}
}

func TestMultipleHandlers(t *testing.T) {
	var c1, c2 collector
	logger := New(10, WithHandler(c1.handle), WithHandler(c2.handle))

	logger.Log(Event{Operation: "CREATE"})
	logger.Close()

	if len(c1.all()) != 1 {
		t.Fatalf("handler1: expected 1 event, got %d", len(c1.all()))
	}
	if len(c2.all()) != 1 {
		t.Fatalf("handler2: expected 1 event, got %d", len(c2.all()))
	}
}

func TestWriterHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithWriterHandler(&buf))

	logger.Record(context.Background(), reservation.OpCreate, reservation.Identity{Subject: "bob"},
		reservation.EntityReservation, "id-1", "Reservation created")
	logger.Close()

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("output is not a JSON line: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{"operation": "CREATE", "user": "bob", "object": "reservation", "id": "id-1"} {
		if got[k] != want {
			t.Errorf("%s = %v, want %s", k, got[k], want)
		}
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithSlogHandler(slog.New(slog.NewJSONHandler(&buf, nil))))

	logger.Record(context.Background(), reservation.OpUpdate, reservation.Identity{Subject: "alice"},
		reservation.EntityReservation, "id-2", "Reservation restored")
	logger.Close()

	out := buf.String()
	for _, want := range []string{`"msg":"Reservation restored"`, `"audit_operation":"UPDATE"`, `"audit_user":"alice"`, `"audit_id":"id-2"`} {
		if !strings.Contains(out, want) {
			t.Errorf("slog output missing %s: %s", want, out)
		}
	}
}

func TestEventString(t *testing.T) {
	e := Event{
		Timestamp:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Operation:  "DELETE",
		User:       "alice",
		EntityType: "reservation",
		EntityID:   "42",
		Message:    "gone",
	}
	want := "[2025-01-02T03:04:05Z] [operation:DELETE] [user:alice] [object:reservation] [id:42] - gone"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestQueueBuffer(t *testing.T) {
	var mu sync.Mutex
	var count int

	logger := New(5, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
		time.Sleep(10 * time.Millisecond) // Simulate slow handler
	}))

	for i := 0; i < 5; i++ {
		logger.Log(Event{Operation: "READ"})
	}
	logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected 5 events processed, got %d", count)
	}
}

func TestLogAfterClose(t *testing.T) {
	var c collector
	logger := New(1, WithHandler(c.handle))
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	logger.Log(Event{Operation: "CREATE"})
	if n := len(c.all()); n != 0 {
		t.Errorf("expected dropped event, got %d", n)
	}
	if got := logger.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestClockAndOrder(t *testing.T) {
	var c collector
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	logger := New(2, WithHandler(c.handle), WithClock(func() time.Time { return fixed }))

	for _, op := range []string{"CREATE", "READ", "UPDATE", "DELETE"} {
		logger.Log(Event{Operation: op})
	}
	logger.Close()

	events := c.all()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, op := range []string{"CREATE", "READ", "UPDATE", "DELETE"} {
		if events[i].Operation != op {
			t.Errorf("event %d = %s, want %s", i, events[i].Operation, op)
		}
	}
	if !events[0].Timestamp.Equal(fixed) || events[0].Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want %v in UTC", events[0].Timestamp, fixed)
	}
}

func TestConcurrentLogAndClose(t *testing.T) {
	var c collector
	logger := New(4, WithHandler(c.handle))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Log(Event{Operation: "READ"})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if n := len(c.all()); n != 400 {
		t.Errorf("delivered %d events, want 400", n)
	}
}

func TestRequestIDMissing(t *testing.T) {
	if id := RequestID(context.Background()); id != "" {
		t.Errorf("expected empty request id, got %s", id)
	}
}
