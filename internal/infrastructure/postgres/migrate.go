package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.up.sql
var embeddedMigrations embed.FS

// Migrate aplica en orden los scripts embebidos. Son idempotentes (IF NOT EXISTS),
// así que se ejecutan en cada arranque.
func Migrate(ctx context.Context, q Querier) error {
	names, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("listar migraciones: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		script, err := embeddedMigrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("leer %s: %w", name, err)
		}
		if _, err := q.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("aplicar %s: %w", name, err)
		}
	}
	return nil
}
