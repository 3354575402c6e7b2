// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - SyncLedgerStore: per-target sync records
//   - RunStore: sync run history
//   - ContentStore: extracted notebooks, pages, highlights and todos
//   - MappingStore: remote containers per notebook
//   - SchedulerStore: scheduled tasks and their results
//
// Dynamic queries are built with squirrel.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files
// and is applied in its own transaction.
//
// # Data Location
//
// By default, the database is stored at ~/.rmsync/data/rmsync.db
package sqlite
