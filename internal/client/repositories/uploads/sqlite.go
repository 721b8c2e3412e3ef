package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s *models.UploadSession) error {
	query := `INSERT INTO uploads (id, source_ref, file_name, mime_type, total_size, confirmed_offset, context_key, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source_ref = excluded.source_ref,
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			total_size = excluded.total_size,
			confirmed_offset = excluded.confirmed_offset,
			context_key = excluded.context_key,
			status = excluded.status
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.SourceRef, s.FileName, s.MimeType, s.TotalSize, s.Offset, s.ContextKey, s.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert upload session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateOffset(ctx context.Context, id string, offset int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE uploads SET confirmed_offset = ? WHERE id = ?`, offset, id)
	if err != nil {
		return fmt.Errorf("failed to update offset: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status models.UploadStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE uploads SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `SELECT id, source_ref, file_name, mime_type, total_size, confirmed_offset, context_key, status
		FROM uploads WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	s := &models.UploadSession{}
	err := row.Scan(&s.ID, &s.SourceRef, &s.FileName, &s.MimeType, &s.TotalSize, &s.Offset, &s.ContextKey, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetByContextKey(ctx context.Context, contextKey string) ([]*models.UploadSession, error) {
	query := `SELECT id, source_ref, file_name, mime_type, total_size, confirmed_offset, context_key, status
		FROM uploads WHERE context_key = ? ORDER BY rowid`
	return r.selectSessions(ctx, query, contextKey)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.UploadSession, error) {
	query := `SELECT id, source_ref, file_name, mime_type, total_size, confirmed_offset, context_key, status
		FROM uploads ORDER BY rowid`
	return r.selectSessions(ctx, query)
}

func (r *SQLiteRepository) selectSessions(ctx context.Context, query string, args ...any) ([]*models.UploadSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting upload sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		s := &models.UploadSession{}
		if err := rows.Scan(&s.ID, &s.SourceRef, &s.FileName, &s.MimeType, &s.TotalSize, &s.Offset, &s.ContextKey, &s.Status); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload session: %w", err)
	}
	return nil
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return common.ErrNotFound
	}
	return nil
}
