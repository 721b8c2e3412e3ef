// Package repositories wires the client's local SQLite database: it runs the
// embedded goose migrations and bundles the per-aggregate repositories.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/m1tka051209/marketgram-client/internal/client/migrations"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/metadata"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/notifications"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/uploads"
	"github.com/m1tka051209/marketgram-client/internal/dbx"
)

type Repositories struct {
	DB            *sql.DB
	Uploads       uploads.Repository
	Metadata      metadata.Repository
	Notifications notifications.Repository
}

// WithTx runs fn against transactional views of the repositories: either
// every write lands or none does.
func (r *Repositories) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	return dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Repositories{
			DB:            r.DB,
			Uploads:       uploads.NewSQLiteRepository(tx),
			Metadata:      metadata.NewSQLiteRepository(tx),
			Notifications: notifications.NewSQLiteRepository(tx),
		})
	})
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local database at dsn, applies migrations, and
// returns the repository bundle. The caller owns closing DB.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:            db,
		Uploads:       uploads.NewSQLiteRepository(db),
		Metadata:      metadata.NewSQLiteRepository(db),
		Notifications: notifications.NewSQLiteRepository(db),
	}, nil
}
