package notifications

import (
	"context"
	"time"
)

// Repository stores push-notification grouping history keyed by sender id,
// so repeated messages from one counterpart collapse into a single grouped
// notification across app restarts.
type Repository interface {
	// Record upserts the grouping payload for a sender.
	Record(ctx context.Context, senderID string, payload []byte) error

	// Get returns the stored payload, or nil if the sender has no history.
	Get(ctx context.Context, senderID string) ([]byte, error)

	// Purge removes history rows not updated since the cutoff.
	Purge(ctx context.Context, cutoff time.Time) error
}
