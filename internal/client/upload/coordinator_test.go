package upload

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1tka051209/marketgram-client/internal/client/api"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/uploads"
	"github.com/m1tka051209/marketgram-client/internal/common"

	_ "modernc.org/sqlite"
)

const mib = 1 << 20

func setupRepo(t *testing.T) uploads.Repository {
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
	return uploads.NewSQLiteRepository(db)
}

func writeTempFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

type fakeRemote struct {
	statusOffset    int64
	statusCompleted bool
	activeList      []api.ActiveUpload
}

func (f *fakeRemote) InitUpload(ctx context.Context, filename string, fileSize int64, mimeType string) (string, error) {
	return "u1", nil
}

func (f *fakeRemote) UploadStatus(ctx context.Context, uploadID string) (int64, bool, error) {
	return f.statusOffset, f.statusCompleted, nil
}

func (f *fakeRemote) ActiveUploads(ctx context.Context) ([]api.ActiveUpload, error) {
	return f.activeList, nil
}

// fakeTransport records every chunk call and simulates the backend's offset
// accounting. If blockFromCall is set, that call (1-based) blocks until the
// loop context is cancelled.
type fakeTransport struct {
	mu            sync.Mutex
	offsets       []int64
	sessions      []string
	blockFromCall int
}

func (f *fakeTransport) Send(ctx context.Context, s *models.UploadSession, offset, length int64) (*api.ChunkResult, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.sessions = append(f.sessions, s.ID)
	call := len(f.offsets)
	f.mu.Unlock()

	if f.blockFromCall > 0 && call >= f.blockFromCall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	confirmed := offset + length
	if confirmed >= s.TotalSize {
		return &api.ChunkResult{
			Status: api.ChunkStatusCompleted,
			Result: &models.UploadResult{FilePath: "/media/" + s.FileName, MessageType: "video"},
		}, nil
	}
	return &api.ChunkResult{Status: api.ChunkStatusContinue, Offset: confirmed}, nil
}

func (f *fakeTransport) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

// waitFor subscribes and waits until the session reaches status. Late
// subscription is fine: terminal snapshots are replayed to new observers.
func waitFor(t *testing.T, c *Coordinator, id string, status models.UploadStatus) models.UploadProgress {
	t.Helper()
	done := make(chan models.UploadProgress, 16)
	unsubscribe := c.Subscribe(id, func(p models.UploadProgress) {
		done <- p
	})
	defer unsubscribe()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-done:
			if p.Status == status {
				return p
			}
		case <-deadline:
			t.Fatalf("session %s never reached status %s", id, status)
		}
	}
}

func TestStart_UploadsInExactChunks(t *testing.T) {
	repo := setupRepo(t)
	transport := &fakeTransport{}
	remote := &fakeRemote{}
	c := NewCoordinator(remote, transport, repo, nil, mib)
	t.Cleanup(c.Close)

	// 2.5 MB file with 1 MB chunks uploads in exactly 3 calls.
	source := writeTempFile(t, 2*mib+mib/2)
	id, err := c.Start(context.Background(), source, "clip.mp4", "video/mp4", "dialog:7")
	require.NoError(t, err)
	require.Equal(t, "u1", id)

	p := waitFor(t, c, id, models.UploadStatusCompleted)
	assert.Equal(t, float64(1), p.Progress)
	require.NotNil(t, p.Result)
	assert.Equal(t, "/media/clip.mp4", p.Result.FilePath)
	assert.Equal(t, "video", p.Result.MessageType)

	assert.Equal(t, []int64{0, mib, 2 * mib}, transport.calls())

	// durable row is removed on completion
	_, err = repo.GetByID(context.Background(), id)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCancel_IsTerminalAndStopsChunkCalls(t *testing.T) {
	repo := setupRepo(t)
	transport := &fakeTransport{blockFromCall: 2}
	c := NewCoordinator(&fakeRemote{}, transport, repo, nil, mib)
	t.Cleanup(c.Close)

	source := writeTempFile(t, 3*mib)
	id, err := c.Start(context.Background(), source, "big.bin", "application/octet-stream", "dialog:7")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(transport.calls()) == 2
	}, 5*time.Second, 5*time.Millisecond)

	require.True(t, c.Cancel(id))

	p := waitFor(t, c, id, models.UploadStatusCancelled)
	assert.Equal(t, float64(0), p.Progress)
	assert.Equal(t, int64(0), p.LoadedBytes)

	// no further chunk calls after cancellation resolved
	calls := len(transport.calls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, len(transport.calls()))

	// a late subscriber immediately observes the cancelled state
	late := waitFor(t, c, id, models.UploadStatusCancelled)
	assert.Equal(t, models.UploadStatusCancelled, late.Status)

	// cancelling a session that is no longer active reports false
	assert.False(t, c.Cancel(id))
}

func TestCancel_UnknownSession(t *testing.T) {
	c := NewCoordinator(&fakeRemote{}, &fakeTransport{}, setupRepo(t), nil, mib)
	t.Cleanup(c.Close)
	assert.False(t, c.Cancel("nope"))
}

func TestResume_ContinuesFromConfirmedOffset(t *testing.T) {
	repo := setupRepo(t)
	transport := &fakeTransport{}
	remote := &fakeRemote{statusOffset: mib}
	c := NewCoordinator(remote, transport, repo, nil, mib)
	t.Cleanup(c.Close)

	source := writeTempFile(t, 2*mib+mib/2)
	require.NoError(t, repo.Save(context.Background(), &models.UploadSession{
		ID: "u1", SourceRef: source, FileName: "clip.mp4", MimeType: "video/mp4",
		TotalSize: 2*mib + mib/2, Offset: mib, ContextKey: "dialog:7",
		Status: models.UploadStatusError,
	}))

	require.NoError(t, c.Resume(context.Background(), "u1"))

	p := waitFor(t, c, "u1", models.UploadStatusCompleted)
	assert.Equal(t, float64(1), p.Progress)

	// ceil((total-k)/chunkSize) calls, starting at the confirmed offset
	assert.Equal(t, []int64{mib, 2 * mib}, transport.calls())
}

func TestResume_AlreadyCompletedOnServer(t *testing.T) {
	repo := setupRepo(t)
	transport := &fakeTransport{}
	total := int64(2 * mib)
	remote := &fakeRemote{statusOffset: total, statusCompleted: true}
	c := NewCoordinator(remote, transport, repo, nil, mib)
	t.Cleanup(c.Close)

	require.NoError(t, repo.Save(context.Background(), &models.UploadSession{
		ID: "u1", SourceRef: "/gone/file.bin", FileName: "file.bin", MimeType: "application/octet-stream",
		TotalSize: total, Offset: mib, ContextKey: "dialog:7", Status: models.UploadStatusError,
	}))

	require.NoError(t, c.Resume(context.Background(), "u1"))

	p := waitFor(t, c, "u1", models.UploadStatusCompleted)
	assert.Equal(t, float64(1), p.Progress)
	assert.Empty(t, transport.calls(), "no chunks for an already-completed session")

	_, err := repo.GetByID(context.Background(), "u1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestResume_UnknownSession(t *testing.T) {
	c := NewCoordinator(&fakeRemote{}, &fakeTransport{}, setupRepo(t), nil, mib)
	t.Cleanup(c.Close)
	require.ErrorIs(t, c.Resume(context.Background(), "nope"), common.ErrSessionUnknown)
}

func TestResumeForContext_ResumesOnlyServerOpenSessions(t *testing.T) {
	repo := setupRepo(t)
	transport := &fakeTransport{}
	remote := &fakeRemote{
		activeList:   []api.ActiveUpload{{UploadID: "u1", Offset: mib}},
		statusOffset: mib,
	}
	c := NewCoordinator(remote, transport, repo, nil, mib)
	t.Cleanup(c.Close)

	source := writeTempFile(t, 2*mib)
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, repo.Save(context.Background(), &models.UploadSession{
			ID: id, SourceRef: source, FileName: "clip.mp4", MimeType: "video/mp4",
			TotalSize: 2 * mib, Offset: mib, ContextKey: "dialog:7",
			Status: models.UploadStatusUploading,
		}))
	}

	require.NoError(t, c.ResumeForContext(context.Background(), "dialog:7"))

	waitFor(t, c, "u1", models.UploadStatusCompleted)

	transport.mu.Lock()
	sessions := append([]string(nil), transport.sessions...)
	transport.mu.Unlock()
	for _, s := range sessions {
		assert.Equal(t, "u1", s, "u2 is not open on the server and must not resume")
	}
}
