package notifications

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE notification_history (
  sender_id  TEXT PRIMARY KEY,
  payload    BLOB NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func TestRecordAndGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	got, err := r.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Record(ctx, "user-1", []byte(`["hi"]`)))
	require.NoError(t, r.Record(ctx, "user-1", []byte(`["hi","again"]`)))

	got, err = r.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`["hi","again"]`), got)
}

func TestPurge(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "old", []byte("x")))
	_, err := db.Exec(`UPDATE notification_history SET updated_at = ? WHERE sender_id = 'old'`,
		time.Now().Add(-48*time.Hour).Unix())
	require.NoError(t, err)

	require.NoError(t, r.Record(ctx, "fresh", []byte("y")))
	require.NoError(t, r.Purge(ctx, time.Now().Add(-24*time.Hour)))

	got, err := r.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
