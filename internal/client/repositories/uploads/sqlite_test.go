package uploads

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/client/models"

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
CREATE TABLE uploads (
  id               TEXT PRIMARY KEY,
  source_ref       TEXT NOT NULL,
  file_name        TEXT NOT NULL,
  mime_type        TEXT NOT NULL,
  total_size       INTEGER NOT NULL,
  confirmed_offset INTEGER NOT NULL DEFAULT 0,
  context_key      TEXT NOT NULL,
  status           TEXT NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func sampleSession(id string) *models.UploadSession {
	return &models.UploadSession{
		ID:         id,
		SourceRef:  "/tmp/video.mp4",
		FileName:   "video.mp4",
		MimeType:   "video/mp4",
		TotalSize:  2_500_000,
		Offset:     0,
		ContextKey: "dialog:42",
		Status:     models.UploadStatusPending,
	}
}

func TestSave_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession("u1")))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "video.mp4", got.FileName)
	assert.Equal(t, models.UploadStatusPending, got.Status)

	s2 := sampleSession("u1")
	s2.Offset = 1_048_576
	s2.Status = models.UploadStatusUploading
	require.NoError(t, r.Save(ctx, s2))

	got, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_048_576), got.Offset)
	assert.Equal(t, models.UploadStatusUploading, got.Status)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateOffsetAndStatus(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession("u1")))

	require.NoError(t, r.UpdateOffset(ctx, "u1", 2048))
	require.NoError(t, r.UpdateStatus(ctx, "u1", models.UploadStatusError))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), got.Offset)
	assert.Equal(t, models.UploadStatusError, got.Status)

	require.ErrorIs(t, r.UpdateOffset(ctx, "missing", 1), common.ErrNotFound)
	require.ErrorIs(t, r.UpdateStatus(ctx, "missing", models.UploadStatusError), common.ErrNotFound)
}

func TestGetByContextKey(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := sampleSession("u1")
	b := sampleSession("u2")
	other := sampleSession("u3")
	other.ContextKey = "dialog:99"

	require.NoError(t, r.Save(ctx, a))
	require.NoError(t, r.Save(ctx, b))
	require.NoError(t, r.Save(ctx, other))

	list, err := r.GetByContextKey(ctx, "dialog:42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].ID)
	assert.Equal(t, "u2", list[1].ID)
}

func TestList_ReturnsAllSessions(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := sampleSession("u1")
	b := sampleSession("u2")
	b.ContextKey = "dialog:99"
	require.NoError(t, r.Save(ctx, a))
	require.NoError(t, r.Save(ctx, b))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].ID)
	assert.Equal(t, "u2", list[1].ID)
}

func TestDelete_Idempotent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession("u1")))
	require.NoError(t, r.Delete(ctx, "u1"))
	require.NoError(t, r.Delete(ctx, "u1"))

	_, err := r.GetByID(ctx, "u1")
	require.ErrorIs(t, err, common.ErrNotFound)
}
