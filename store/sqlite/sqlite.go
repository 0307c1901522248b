// Package sqlite provides a SQLite-backed reservation.Store on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/store/sqlite/migrations"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists reservations in SQLite.
type Store struct {
	db *sql.DB
}

// compile-time check
var _ reservation.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const columns = `id, room_id, start_at, end_at, customer_name, customer_email,
	party_size, special_requests, status, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (reservation.Reservation, error) {
	var (
		r                        reservation.Reservation
		start, end, created, upd int64
		status                   string
		special                  sql.NullString
		deleted                  sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.RoomID, &start, &end, &r.CustomerName, &r.CustomerEmail,
		&r.PartySize, &special, &status, &created, &upd, &deleted); err != nil {
		return reservation.Reservation{}, err
	}
	r.From, r.To = fromMillis(start), fromMillis(end)
	r.Status = reservation.Status(status)
	r.CreatedAt, r.UpdatedAt = fromMillis(created), fromMillis(upd)
	if special.Valid {
		v := special.String
		r.SpecialRequests = &v
	}
	if deleted.Valid {
		t := fromMillis(deleted.Int64)
		r.DeletedAt = &t
	}
	return r, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// List returns reservations ordered by creation time.
func (s *Store) List(ctx context.Context, includeDeleted bool) ([]reservation.Reservation, error) {
	query := `SELECT ` + columns + ` FROM reservations`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list reservations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]reservation.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list reservations: %w", err)
	}
	return out, nil
}

// Get returns a reservation by id.
func (s *Store) Get(ctx context.Context, id string) (reservation.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reservation.Reservation{}, fmt.Errorf("sqlite: reservation %s: %w", id, reservation.ErrNotFound)
	}
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("sqlite: get reservation %s: %w", id, err)
	}
	return r, nil
}

// Create inserts r, assigning an id if it has none.
func (s *Store) Create(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var deleted sql.NullInt64
	if r.DeletedAt != nil {
		deleted = sql.NullInt64{Int64: toMillis(*r.DeletedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RoomID, toMillis(r.From), toMillis(r.To), r.CustomerName, r.CustomerEmail,
		r.PartySize, nullString(r.SpecialRequests), string(r.Status),
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt), deleted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reservation.Reservation{}, fmt.Errorf("sqlite: reservation %s: %w", r.ID, reservation.ErrConflict)
		}
		return reservation.Reservation{}, fmt.Errorf("sqlite: create reservation: %w", err)
	}
	return s.Get(ctx, r.ID)
}

// exec runs a single-row update and reports whether a row matched.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return n > 0, nil
}

// Update overwrites the mutable fields and clears deleted_at.
func (s *Store) Update(ctx context.Context, id string, f reservation.Fields, at time.Time) (reservation.Reservation, error) {
	ok, err := s.exec(ctx, "update reservation",
		`UPDATE reservations SET room_id = ?, start_at = ?, end_at = ?, customer_name = ?,
		   customer_email = ?, party_size = ?, special_requests = ?, updated_at = ?,
		   deleted_at = NULL
		 WHERE id = ?`,
		f.RoomID, toMillis(f.From), toMillis(f.To), f.CustomerName, f.CustomerEmail,
		f.PartySize, nullString(f.SpecialRequests), toMillis(at), id,
	)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("sqlite: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// SetStatus overwrites the status.
func (s *Store) SetStatus(ctx context.Context, id string, st reservation.Status, at time.Time) (reservation.Reservation, error) {
	ok, err := s.exec(ctx, "set status",
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, string(st), toMillis(at), id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("sqlite: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// SoftDelete sets deleted_at unless it is already set.
func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.exec(ctx, "soft delete",
		`UPDATE reservations SET deleted_at = COALESCE(deleted_at, ?) WHERE id = ?`, toMillis(at), id)
}

// Restore clears deleted_at.
func (s *Store) Restore(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.exec(ctx, "restore",
		`UPDATE reservations
		    SET updated_at = CASE WHEN deleted_at IS NULL THEN updated_at ELSE ? END,
		        deleted_at = NULL
		  WHERE id = ?`, toMillis(at), id)
}

// Exists reports whether id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM reservations WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: exists %s: %w", id, err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
