// Package audit provides structured audit logging for reservation operations.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	reservation "github.com/chimerakang/reservation-go"
)

// NoEntityID marks events that do not target a single record.
const NoEntityID = "N/A"

// Event represents one audited operation.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Operation  string    `json:"operation"` // CREATE, READ, UPDATE, DELETE
	User       string    `json:"user"`
	EntityType string    `json:"object"`
	EntityID   string    `json:"id"`
	Message    string    `json:"message"`
}

// String renders the event as a single audit line.
func (e Event) String() string {
	return fmt.Sprintf("[%s] [operation:%s] [user:%s] [object:%s] [id:%s] - %s",
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Operation, e.User, e.EntityType, e.EntityID, e.Message)
}

// Handler receives audit events on the logger's worker goroutine.
type Handler func(event Event)

// DefaultBufferSize is used when New is given a non-positive size.
const DefaultBufferSize = 1000

// Logger fans audit events out to handlers on a single worker goroutine, so
// handlers see events in the order they were logged.
type Logger struct {
	handlers []Handler
	now      func() time.Time

	mu      sync.RWMutex // held for reading while sending on events
	closed  bool
	events  chan Event
	flushed chan struct{}
	dropped atomic.Int64
}

// compile-time check
var _ reservation.AuditRecorder = (*Logger)(nil)

// Option configures a Logger.
type Option func(*Logger)

// WithSlogHandler logs each event at INFO with its fields as attributes.
func WithSlogHandler(logger *slog.Logger) Option {
	return WithHandler(func(e Event) {
		logger.LogAttrs(context.Background(), slog.LevelInfo, e.Message,
			slog.String("audit_operation", e.Operation),
			slog.String("audit_user", e.User),
			slog.String("audit_object", e.EntityType),
			slog.String("audit_id", e.EntityID),
			slog.String("request_id", e.RequestID),
		)
	})
}

// WithWriterHandler writes each event to w as one JSON line.
func WithWriterHandler(w io.Writer) Option {
	enc := json.NewEncoder(w)
	return WithHandler(func(e Event) {
		_ = enc.Encode(e)
	})
}

// WithHandler adds a custom handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		if h != nil {
			l.handlers = append(l.handlers, h)
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// New starts a logger whose queue holds bufferSize events. Log blocks while
// the queue is full.
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	l := &Logger{
		now:     time.Now,
		events:  make(chan Event, bufferSize),
		flushed: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l
}

// Record implements reservation.AuditRecorder.
func (l *Logger) Record(ctx context.Context, operation string, identity reservation.Identity, entityType, entityID, message string) {
	if entityID == "" {
		entityID = NoEntityID
	}
	if message == "" {
		message = fmt.Sprintf("Operation %s on %s", operation, entityType)
	}
	l.Log(Event{
		RequestID:  RequestID(ctx),
		Operation:  operation,
		User:       identity.String(),
		EntityType: entityType,
		EntityID:   entityID,
		Message:    message,
	})
}

// Log queues an event. Events logged after Close are counted and dropped.
func (l *Logger) Log(event Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	l.events <- event
}

// Dropped returns the number of events discarded because the logger was closed.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

func (l *Logger) run() {
	defer close(l.flushed)
	for event := range l.events {
		for _, h := range l.handlers {
			h(event)
		}
	}
}

// Close delivers every queued event and stops the worker. Safe to call more
// than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	l.mu.Unlock()
	<-l.flushed
	return nil
}

type requestIDKey struct{}

// WithRequestID attaches the request id copied into every event recorded
// with the returned context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
