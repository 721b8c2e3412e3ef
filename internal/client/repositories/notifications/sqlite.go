package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m1tka051209/marketgram-client/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Record(ctx context.Context, senderID string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_history (sender_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(sender_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, senderID, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record notification history[%s]: %w", senderID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, senderID string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM notification_history WHERE sender_id = ?`, senderID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification history[%s]: %w", senderID, err)
	}
	return payload, nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_history WHERE updated_at < ?`, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("failed to purge notification history: %w", err)
	}
	return nil
}
