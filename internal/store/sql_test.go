package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockStore wires a SQLStore directly against a sqlmock-backed
// gorm.DB, bypassing NewSQLStore's AutoMigrate so tests only assert on
// the query/exec traffic of the method under test.
func setupMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return &SQLStore{db: db, metrics: NewMetrics("")}, mock
}

func TestSQLStore_SetUpsertsOnConflict(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "cache_entries"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Set(context.Background(), "a", map[string]string{"x": "y"}, 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetMissReturnsFalse(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "cache_entries" WHERE key = $1`)).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "stored_at", "ttl_seconds"}))

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetHitReturnsEntry(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"key", "value", "stored_at", "ttl_seconds"}).
		AddRow("a", []byte(`{"x":"y"}`), time.Now(), int64(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "cache_entries" WHERE key = $1`)).
		WithArgs("a", 1).
		WillReturnRows(rows)

	entry, ok, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)

	raw, isRaw := entry.Value.(json.RawMessage)
	require.True(t, isRaw)
	require.JSONEq(t, `{"x":"y"}`, string(raw))
}
