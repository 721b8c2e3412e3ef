package metadata

import "context"

// Well-known metadata keys. The metadata table is the client's durable
// key-value store for credentials and preferences.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyTheme        = "theme"
	KeyQuietHours   = "quiet_hours"
)

// Repository is a durable key-value store. Get returns nil (no error) for an
// absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Clear wipes all stored metadata (logout).
	Clear(ctx context.Context) error
}
