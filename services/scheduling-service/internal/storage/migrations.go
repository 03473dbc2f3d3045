package storage

import (
	"context"
	"embed"
	"log/slog"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, pool *db.Pool, logger *slog.Logger) error {
	return db.Migrate(ctx, pool, migrationsFS, "migrations", logger)
}
