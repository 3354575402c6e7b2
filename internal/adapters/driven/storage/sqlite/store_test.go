package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "rmsync-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

// setupMockStore wraps a sqlmock connection.
func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newStore(db, "mock"), mock
}

// ==================== Store Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.Equal(t, "rmsync.db", filepath.Base(store.Path()))
	_, err := os.Stat(store.Path())
	require.NoError(t, err)

	version, err := store.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.MappingStore().SaveMapping(ctx, "notion", "nb-1", "page-abc"))
	require.NoError(t, store.Close())

	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	id, err := store.MappingStore().GetMapping(ctx, "notion", "nb-1")
	require.NoError(t, err)
	assert.Equal(t, "page-abc", id)

	version, err := store.schemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrate_AppliesOnlyNewVersions(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	fsys := fstest.MapFS{
		"001_initial.up.sql": {Data: []byte("CREATE TABLE never_run (id INTEGER)")},
		"002_extra.up.sql":   {Data: []byte("CREATE TABLE extra (id INTEGER)")},
		"002_extra.down.sql": {Data: []byte("DROP TABLE extra")},
		"readme.up.sql":      {Data: []byte("not sql")},
		"003_notes.txt":      {Data: []byte("ignored")},
	}
	require.NoError(t, store.migrate(fsys))

	version, err := store.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM extra").Scan(&n))
	_, err = store.db.Exec("SELECT * FROM never_run")
	assert.Error(t, err)
}

func TestMigrate_FailedMigrationRollsBack(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	fsys := fstest.MapFS{
		"002_broken.up.sql": {Data: []byte("CREATE TABLE half (id INTEGER); CREATE TABLE")},
	}
	err := store.migrate(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken.up.sql")

	version, err := store.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notebooks")).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.withTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE notebooks SET revision = revision + 1")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_ReportsCommitFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := store.withTx(context.Background(), func(*sql.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentStore_SavePage_RollsBackWhenInsertFails(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT text, confidence FROM pages")).
		WithArgs("nb-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"text", "confidence"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notebooks")).
		WithArgs("nb-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pages")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.ContentStore().SavePage(context.Background(), domain.Page{
		NotebookUUID: "nb-1", PageNumber: 3, Text: "hello", Confidence: 0.9,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentStore_GetAllPendingOwners_ScopesToTarget(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT n.uuid FROM notebooks n " +
			"LEFT JOIN owner_acks a ON a.owner_id = n.uuid AND a.target_name = ? " +
			"WHERE n.revision > COALESCE(a.revision, 0) ORDER BY n.uuid")).
		WithArgs("readwise").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow("nb-1").AddRow("nb-2"))

	owners, err := store.ContentStore().GetAllPendingOwners(context.Background(), "readwise")
	require.NoError(t, err)
	assert.Equal(t, []string{"nb-1", "nb-2"}, owners)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_List_BuildsFilteredQuery(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT target_name, item_type, item_id, owner_id, sequence, status, synced_content_hash, " +
			"external_ref, retry_count, error_message, created_at, synced_at, updated_at FROM sync_records " +
			"WHERE target_name = ? AND status IN (?,?) " +
			"ORDER BY owner_id ASC, sequence DESC, item_type ASC, item_id ASC, target_name ASC LIMIT 5")).
		WithArgs("readwise", "pending", "error").
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow(
			"readwise", "page", "nb:page:1", "nb", 1, "error",
			nil, nil, 2, "boom", "2026-01-01T00:00:00.000000000Z", nil, "2026-01-02T00:00:00.000000000Z",
		))

	recs, err := store.LedgerStore().List(context.Background(), domain.LedgerFilter{
		TargetName: "readwise",
		Statuses:   []domain.SyncStatus{domain.SyncStatusPending, domain.SyncStatusError},
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SyncStatusError, recs[0].Status)
	assert.Equal(t, 2, recs[0].RetryCount)
	assert.Equal(t, "boom", recs[0].ErrorMessage)
	assert.Empty(t, recs[0].ExternalRef)
	assert.True(t, recs[0].SyncedAt.IsZero())
	assert.Equal(t, 2026, recs[0].CreatedAt.Year())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==================== Helper Function Tests ====================

func TestFormatTime_SortsLexically(t *testing.T) {
	a := time.Date(2026, 3, 1, 10, 0, 0, 5, time.UTC)
	b := time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC)
	c := time.Date(2026, 3, 1, 10, 0, 1, 0, time.FixedZone("CET", 3600))

	fa, fb, fc := formatTime(a), formatTime(b), formatTime(c)
	assert.Len(t, fa, len(fb))
	assert.Less(t, fa, fb)
	assert.Less(t, fc, fa, "c is 09:00:01 UTC")
	assert.True(t, parseTime(fb).Equal(b))
}

func TestFormatNullableTime(t *testing.T) {
	assert.Nil(t, formatNullableTime(time.Time{}))

	now := time.Now()
	result := formatNullableTime(now)
	assert.IsType(t, "", result)
	assert.Equal(t, formatTime(now), result)
}

func TestParseTime_AcceptsRFC3339(t *testing.T) {
	got := parseTime("2026-05-01T12:00:00Z")
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), got.UTC())
	assert.True(t, parseTime("garbage").IsZero())
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "hello", nullString("hello"))
}

func TestPendingMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.up.sql":    {Data: []byte("")},
		"002_early.up.sql":   {Data: []byte("")},
		"001_done.up.sql":    {Data: []byte("")},
		"002_early.down.sql": {Data: []byte("")},
	}

	got, err := pendingMigrations(fsys, 1)
	require.NoError(t, err)
	assert.Equal(t, []migration{{2, "002_early.up.sql"}, {10, "010_late.up.sql"}}, got)
}
