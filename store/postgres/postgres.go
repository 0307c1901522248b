// Package postgres provides a PostgreSQL-backed reservation.Store on gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReservationModel is the reservations table row.
type ReservationModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	RoomID          string    `gorm:"type:uuid;not null"`
	StartAt         time.Time `gorm:"not null"`
	EndAt           time.Time `gorm:"not null"`
	CustomerName    string    `gorm:"not null"`
	CustomerEmail   string    `gorm:"not null"`
	PartySize       int       `gorm:"not null"`
	SpecialRequests *string
	Status          string     `gorm:"not null;default:pending"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime:false"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime:false"`
	DeletedAt       *time.Time `gorm:"index"`
}

// TableName overrides the gorm default.
func (ReservationModel) TableName() string { return "reservations" }

// Store persists reservations in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// compile-time check
var _ reservation.Store = (*Store)(nil)

// Open connects to dsn and migrates the reservations table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: POSTGRES_DSN is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the reservations table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ReservationModel{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// List returns reservations ordered by creation time.
func (s *Store) List(ctx context.Context, includeDeleted bool) ([]reservation.Reservation, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	var rows []ReservationModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: list reservations: %w", err)
	}
	out := make([]reservation.Reservation, len(rows))
	for i, m := range rows {
		out[i] = fromModel(m)
	}
	return out, nil
}

// Get returns a reservation by id.
func (s *Store) Get(ctx context.Context, id string) (reservation.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		// The uuid column rejects anything else; treat it as absent.
		return reservation.Reservation{}, fmt.Errorf("postgres: reservation %s: %w", id, reservation.ErrNotFound)
	}
	var m ReservationModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reservation.Reservation{}, fmt.Errorf("postgres: reservation %s: %w", id, reservation.ErrNotFound)
	}
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("postgres: get reservation %s: %w", id, err)
	}
	return fromModel(m), nil
}

// Create inserts r, assigning an id if it has none.
func (s *Store) Create(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m := toModel(r)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return reservation.Reservation{}, fmt.Errorf("postgres: reservation %s: %w", r.ID, reservation.ErrConflict)
		}
		return reservation.Reservation{}, fmt.Errorf("postgres: create reservation: %w", err)
	}
	return fromModel(m), nil
}

func (s *Store) updates(ctx context.Context, id string, values map[string]any) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&ReservationModel{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Update overwrites the mutable fields and clears deleted_at.
func (s *Store) Update(ctx context.Context, id string, f reservation.Fields, at time.Time) (reservation.Reservation, error) {
	ok, err := s.updates(ctx, id, map[string]any{
		"room_id":          f.RoomID,
		"start_at":         f.From.UTC(),
		"end_at":           f.To.UTC(),
		"customer_name":    f.CustomerName,
		"customer_email":   f.CustomerEmail,
		"party_size":       f.PartySize,
		"special_requests": f.SpecialRequests,
		"updated_at":       at.UTC(),
		"deleted_at":       nil,
	})
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("postgres: update reservation %s: %w", id, err)
	}
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("postgres: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// SetStatus overwrites the status.
func (s *Store) SetStatus(ctx context.Context, id string, st reservation.Status, at time.Time) (reservation.Reservation, error) {
	ok, err := s.updates(ctx, id, map[string]any{"status": string(st), "updated_at": at.UTC()})
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("postgres: set status %s: %w", id, err)
	}
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("postgres: reservation %s: %w", id, reservation.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// SoftDelete sets deleted_at unless it is already set.
func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	ok, err := s.updates(ctx, id, map[string]any{
		"deleted_at": gorm.Expr("COALESCE(deleted_at, ?)", at.UTC()),
	})
	if err != nil {
		return false, fmt.Errorf("postgres: soft delete %s: %w", id, err)
	}
	return ok, nil
}

// Restore clears deleted_at.
func (s *Store) Restore(ctx context.Context, id string, at time.Time) (bool, error) {
	ok, err := s.updates(ctx, id, map[string]any{
		"updated_at": gorm.Expr("CASE WHEN deleted_at IS NULL THEN updated_at ELSE ? END", at.UTC()),
		"deleted_at": nil,
	})
	if err != nil {
		return false, fmt.Errorf("postgres: restore %s: %w", id, err)
	}
	return ok, nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&ReservationModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", id, err)
	}
	return n > 0, nil
}

func toModel(r reservation.Reservation) ReservationModel {
	m := ReservationModel{
		ID:              r.ID,
		RoomID:          r.RoomID,
		StartAt:         r.From.UTC(),
		EndAt:           r.To.UTC(),
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		PartySize:       r.PartySize,
		SpecialRequests: r.SpecialRequests,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.DeletedAt != nil {
		t := r.DeletedAt.UTC()
		m.DeletedAt = &t
	}
	return m
}

func fromModel(m ReservationModel) reservation.Reservation {
	r := reservation.Reservation{
		ID: m.ID,
		Fields: reservation.Fields{
			RoomID:          m.RoomID,
			From:            m.StartAt.UTC(),
			To:              m.EndAt.UTC(),
			CustomerName:    m.CustomerName,
			CustomerEmail:   m.CustomerEmail,
			PartySize:       m.PartySize,
			SpecialRequests: m.SpecialRequests,
		},
		Status:    reservation.Status(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.DeletedAt != nil {
		t := m.DeletedAt.UTC()
		r.DeletedAt = &t
	}
	return r
}
