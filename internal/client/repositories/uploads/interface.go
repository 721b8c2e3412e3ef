package uploads

import (
	"context"

	"github.com/m1tka051209/marketgram-client/internal/client/models"
)

// Repository describes durable storage of upload resume metadata. A session
// row is written immediately after remote initiation so the transfer can be
// resumed after the process restarts, and removed once the session reaches a
// terminal state and is cleaned up.
type Repository interface {
	// Save inserts or updates the session row.
	Save(ctx context.Context, session *models.UploadSession) error

	// UpdateOffset records the new confirmed offset for a session.
	UpdateOffset(ctx context.Context, id string, offset int64) error

	// UpdateStatus records the session's lifecycle status.
	UpdateStatus(ctx context.Context, id string, status models.UploadStatus) error

	// GetByID returns the session or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.UploadSession, error)

	// GetByContextKey returns all persisted sessions stored for a context
	// key (e.g. a conversation), in insertion order.
	GetByContextKey(ctx context.Context, contextKey string) ([]*models.UploadSession, error)

	// List returns every persisted session, for restart recovery.
	List(ctx context.Context) ([]*models.UploadSession, error)

	// Delete removes the session row. Deleting an absent row is not an error.
	Delete(ctx context.Context, id string) error
}
