package migrations

import (
	"context"
	"fmt"

	"github.com/carter293/hasItPumped/internal/storage/postgres"
)

// RunPostgres applies the embedded PostgreSQL schema.
// Every statement uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgres(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		// pgx runs multi-statement strings over the simple protocol.
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
