package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/rmsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/rmsync/internal/core/ports/driven"
)

const (
	dbFileName = "rmsync.db"

	// WAL lets the watcher write while a sync reads.
	dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
)

// qb builds queries with SQLite placeholders.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Store owns the database handle and hands out the per-port stores that
// share it.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (or creates) dataDir/rmsync.db and applies pending
// migrations. An empty dataDir means ~/.rmsync/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".rmsync", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, dbFileName)
	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	s := newStore(db, path)
	if err := s.migrate(migrations.FS); err != nil {
		return nil, errors.Join(fmt.Errorf("migrating %s: %w", path, err), db.Close())
	}
	return s, nil
}

func newStore(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path, now: time.Now}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) LedgerStore() driven.SyncLedgerStore { return &ledgerStore{store: s} }

func (s *Store) RunStore() driven.RunStore { return &runStore{store: s} }

func (s *Store) ContentStore() driven.ContentStore { return &contentStore{store: s} }

func (s *Store) MappingStore() driven.MappingStore { return &mappingStore{store: s} }

func (s *Store) SchedulerStore() driven.SchedulerStore { return &schedulerStore{store: s} }

// withTx commits when fn succeeds and rolls back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
