package data

import (
	"context"
	"database/sql"

	"github.com/scadforge/scadforge/internal/migrate"
)

// RunMigrations brings the render job schema up to date. It delegates to the
// embedded migration runner and is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
