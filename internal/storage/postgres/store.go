package postgres

import (
	"context"

	"github.com/asecn/asecn/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	*Repository
	pgDB *DB
}

// NewStore wraps an open DB as a Store.
func NewStore(pgDB *DB) *Store {
	return &Store{
		Repository: NewRepository(pgDB.GormDB()),
		pgDB:       pgDB,
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pgDB.Ping(ctx) }

func (s *Store) Close() error { return s.pgDB.Close() }

func (s *Store) Driver() string { return storage.DriverPostgres }

var _ storage.Store = (*Store)(nil)
