package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"launchpad/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded schema files (assets, trades,
// candles) in lexical order. Every statement uses IF NOT EXISTS so reruns
// are harmless; both cmd/server startup and cmd/migrate call this.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	entries, err := fs.ReadDir(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		// One Exec per file: pgx runs the multi-statement script over the
		// simple protocol, so each file applies as a unit.
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}
