// Package store selects a reservation.Store backend from configuration.
package store

import (
	"context"
	"fmt"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/store/memory"
	"github.com/chimerakang/reservation-go/store/postgres"
	"github.com/chimerakang/reservation-go/store/sqlite"
)

// Backend is a Store with a connection lifecycle.
type Backend interface {
	reservation.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open returns the backend named by cfg.StorageDriver.
func Open(ctx context.Context, cfg reservation.Config) (Backend, error) {
	switch cfg.StorageDriver {
	case reservation.DriverMemory, "":
		return memory.New(), nil
	case reservation.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case reservation.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("reservation/store: unknown driver %q", cfg.StorageDriver)
}
