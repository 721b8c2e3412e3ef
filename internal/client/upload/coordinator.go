package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/m1tka051209/marketgram-client/internal/client/api"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/uploads"
	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/logging"
)

// activeEntry guards one running transmission loop. The explicit flag
// distinguishes a user-requested cancel (terminal, cleans durable state)
// from a shutdown suspension (durable state kept for a later resume).
type activeEntry struct {
	cancel   context.CancelFunc
	explicit atomic.Bool
}

// RemoteAPI is the subset of the backend API the coordinator needs beyond
// the chunk transport itself.
type RemoteAPI interface {
	InitUpload(ctx context.Context, filename string, fileSize int64, mimeType string) (string, error)
	UploadStatus(ctx context.Context, uploadID string) (offset int64, completed bool, err error)
	ActiveUploads(ctx context.Context) ([]api.ActiveUpload, error)
}

// Coordinator multiplexes concurrent upload sessions. It owns the active
// set (at most one transmission loop per session id), the observer
// registry, durable resume metadata, and restart recovery.
type Coordinator struct {
	remote    RemoteAPI
	transport ChunkTransport
	repo      uploads.Repository
	log       logging.Logger
	chunkSize int64

	mu        sync.Mutex
	active    map[string]*activeEntry
	lastState map[string]models.UploadProgress

	observers *observerRegistry

	// base context for transmission loops; Close cancels it.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCoordinator(remote RemoteAPI, transport ChunkTransport, repo uploads.Repository, log logging.Logger, chunkSize int64) *Coordinator {
	if log == nil {
		log = logging.Discard()
	}
	if chunkSize <= 0 {
		chunkSize = common.DefaultChunkSize
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		remote:    remote,
		transport: transport,
		repo:      repo,
		log:       log.With("component", "upload"),
		chunkSize: chunkSize,
		active:    make(map[string]*activeEntry),
		lastState: make(map[string]models.UploadProgress),
		observers: newObserverRegistry(),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Start registers a new upload with the backend, persists resume metadata,
// and launches the transmission loop. It returns the server-assigned
// session id immediately; progress is delivered to subscribers.
func (c *Coordinator) Start(ctx context.Context, sourceRef, fileName, mimeType, contextKey string) (string, error) {
	info, err := os.Stat(sourceRef)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	id, err := c.remote.InitUpload(ctx, fileName, info.Size(), mimeType)
	if err != nil {
		return "", err
	}

	session := &models.UploadSession{
		ID:         id,
		SourceRef:  sourceRef,
		FileName:   fileName,
		MimeType:   mimeType,
		TotalSize:  info.Size(),
		Offset:     0,
		ContextKey: contextKey,
		Status:     models.UploadStatusPending,
	}
	if err := c.repo.Save(ctx, session); err != nil {
		return "", fmt.Errorf("persisting session: %w", err)
	}

	c.launch(session)
	return id, nil
}

// Subscribe registers an observer for a session and returns an idempotent
// unsubscribe handle. If the session already reached a state, the latest
// snapshot is delivered asynchronously right away, so late subscribers to a
// terminal session still observe it.
func (c *Coordinator) Subscribe(sessionID string, fn Observer) func() {
	unsubscribe := c.observers.subscribe(sessionID, fn)

	c.mu.Lock()
	snapshot, ok := c.lastState[sessionID]
	c.mu.Unlock()
	if ok {
		go fn(snapshot)
	}
	return unsubscribe
}

// Cancel signals the session's in-flight chunk operation to abort. It
// reports false when the session is not currently active.
func (c *Coordinator) Cancel(sessionID string) bool {
	c.mu.Lock()
	entry, ok := c.active[sessionID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	entry.explicit.Store(true)
	entry.cancel()
	return true
}

// Resume queries the backend for the confirmed offset and re-enters the
// transmission loop from there. If the backend reports the session
// complete, local state is cleaned up and completion is reported to
// observers. Resuming a session that is already running is a no-op.
func (c *Coordinator) Resume(ctx context.Context, sessionID string) error {
	if c.isActive(sessionID) {
		return nil
	}

	session, err := c.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrSessionUnknown
		}
		return err
	}

	offset, completed, err := c.remote.UploadStatus(ctx, sessionID)
	if err != nil {
		return err
	}

	if completed {
		c.finish(session, &models.UploadProgress{
			Progress:    1,
			Status:      models.UploadStatusCompleted,
			LoadedBytes: session.TotalSize,
			TotalBytes:  session.TotalSize,
		})
		return nil
	}

	if offset < 0 || offset > session.TotalSize {
		return fmt.Errorf("%w: %d", common.ErrInvalidOffset, offset)
	}
	session.Offset = offset
	if err := c.repo.UpdateOffset(ctx, sessionID, offset); err != nil {
		return err
	}

	c.launch(session)
	return nil
}

// ResumeForContext reconciles sessions interrupted by a process restart: it
// intersects the backend's open-session list with locally persisted
// metadata for the context key and silently resumes every match that is not
// already running.
func (c *Coordinator) ResumeForContext(ctx context.Context, contextKey string) error {
	local, err := c.repo.GetByContextKey(ctx, contextKey)
	if err != nil {
		return err
	}
	return c.resumeMatching(ctx, local)
}

// ResumeAll recovers every persisted session the backend still holds open,
// regardless of context key. Called once after login.
func (c *Coordinator) ResumeAll(ctx context.Context) error {
	local, err := c.repo.List(ctx)
	if err != nil {
		return err
	}
	return c.resumeMatching(ctx, local)
}

func (c *Coordinator) resumeMatching(ctx context.Context, local []*models.UploadSession) error {
	remote, err := c.remote.ActiveUploads(ctx)
	if err != nil {
		return err
	}
	remoteByID := make(map[string]api.ActiveUpload, len(remote))
	for _, u := range remote {
		remoteByID[u.UploadID] = u
	}

	for _, session := range local {
		if _, open := remoteByID[session.ID]; !open {
			continue
		}
		if err := c.Resume(ctx, session.ID); err != nil {
			c.log.Warn(ctx, "resume failed", "upload_id", session.ID, "error", err)
		}
	}
	return nil
}

// Active returns the ids of sessions with a running transmission loop.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveForContext returns persisted sessions stored under the context key.
func (c *Coordinator) ActiveForContext(ctx context.Context, contextKey string) ([]*models.UploadSession, error) {
	return c.repo.GetByContextKey(ctx, contextKey)
}

// Close aborts every running loop and waits for them to finish.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) isActive(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[sessionID]
	return ok
}

// launch registers the session in the active set and starts its loop.
// A session that is already active is left alone.
func (c *Coordinator) launch(session *models.UploadSession) {
	c.mu.Lock()
	if _, ok := c.active[session.ID]; ok {
		c.mu.Unlock()
		c.log.Debug(context.Background(), "session already active", "upload_id", session.ID)
		return
	}
	loopCtx, cancel := context.WithCancel(c.baseCtx)
	entry := &activeEntry{cancel: cancel}
	c.active[session.ID] = entry
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(loopCtx, session, entry)
	}()
}

// run is the transmission loop: strictly sequential chunks until the
// session completes, errors out, or is cancelled.
func (c *Coordinator) run(ctx context.Context, session *models.UploadSession, entry *activeEntry) {
	defer func() {
		c.mu.Lock()
		delete(c.active, session.ID)
		c.mu.Unlock()
	}()

	session.Status = models.UploadStatusUploading
	_ = c.repo.UpdateStatus(ctx, session.ID, session.Status)
	c.publish(session, nil, nil)

	for session.Offset < session.TotalSize {
		if ctx.Err() != nil {
			c.interrupted(ctx, session, entry)
			return
		}

		length := min(c.chunkSize, session.TotalSize-session.Offset)
		result, err := c.transport.Send(ctx, session, session.Offset, length)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrCancelled) {
				c.interrupted(ctx, session, entry)
				return
			}
			c.failed(ctx, session, err)
			return
		}

		if result.Status == api.ChunkStatusCompleted {
			session.Offset = session.TotalSize
			c.finish(session, &models.UploadProgress{
				Progress:    1,
				Status:      models.UploadStatusCompleted,
				LoadedBytes: session.TotalSize,
				TotalBytes:  session.TotalSize,
				Result:      result.Result,
			})
			return
		}

		// The confirmed offset must move forward and stay inside the file.
		if result.Offset < session.Offset || result.Offset > session.TotalSize {
			c.failed(ctx, session, fmt.Errorf("%w: %d", common.ErrInvalidOffset, result.Offset))
			return
		}
		session.Offset = result.Offset
		_ = c.repo.UpdateOffset(ctx, session.ID, session.Offset)
		c.publish(session, nil, nil)
	}

	// Offset reached TotalSize without a terminal response; ask the backend.
	_, completed, err := c.remote.UploadStatus(ctx, session.ID)
	if err != nil || !completed {
		c.failed(ctx, session, fmt.Errorf("upload drained without completion"))
		return
	}
	c.finish(session, &models.UploadProgress{
		Progress:    1,
		Status:      models.UploadStatusCompleted,
		LoadedBytes: session.TotalSize,
		TotalBytes:  session.TotalSize,
	})
}

func (c *Coordinator) publish(session *models.UploadSession, result *models.UploadResult, err error) {
	progress := models.UploadProgress{
		Status:      session.Status,
		LoadedBytes: session.Offset,
		TotalBytes:  session.TotalSize,
		Result:      result,
		Err:         err,
	}
	if session.TotalSize > 0 {
		progress.Progress = float64(session.Offset) / float64(session.TotalSize)
	}
	if session.Status == models.UploadStatusCancelled {
		progress.Progress = 0
		progress.LoadedBytes = 0
	}

	c.mu.Lock()
	c.lastState[session.ID] = progress
	c.mu.Unlock()

	c.observers.notify(session.ID, progress)
}

// finish marks the session completed, removes the durable row, and notifies
// observers with the terminal snapshot.
func (c *Coordinator) finish(session *models.UploadSession, terminal *models.UploadProgress) {
	session.Status = models.UploadStatusCompleted
	_ = c.repo.Delete(context.Background(), session.ID)

	c.mu.Lock()
	c.lastState[session.ID] = *terminal
	c.mu.Unlock()

	c.observers.notify(session.ID, *terminal)
	c.log.Info(context.Background(), "upload completed", "upload_id", session.ID, "bytes", session.TotalSize)
}

// interrupted resolves a cancelled loop context: explicit cancellation is
// terminal, shutdown leaves the persisted session resumable.
func (c *Coordinator) interrupted(ctx context.Context, session *models.UploadSession, entry *activeEntry) {
	if entry.explicit.Load() {
		c.cancelled(session)
		return
	}
	c.log.Info(context.Background(), "upload suspended", "upload_id", session.ID, "offset", session.Offset)
}

func (c *Coordinator) cancelled(session *models.UploadSession) {
	session.Status = models.UploadStatusCancelled
	_ = c.repo.Delete(context.Background(), session.ID)
	c.publish(session, nil, nil)
	c.log.Info(context.Background(), "upload cancelled", "upload_id", session.ID)
}

func (c *Coordinator) failed(ctx context.Context, session *models.UploadSession, err error) {
	session.Status = models.UploadStatusError
	_ = c.repo.UpdateStatus(context.Background(), session.ID, session.Status)
	c.publish(session, nil, err)
	c.log.Error(ctx, "upload failed", "upload_id", session.ID, "offset", session.Offset, "error", err)
}
