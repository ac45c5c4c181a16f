package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"txcalc/pkg/logger"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies the bundled schema files in name order. Every statement
// is idempotent.
func Migrate(ctx context.Context, pool *Pool) error {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		logger.Debug(ctx, "schema applied", "file", name)
	}
	return nil
}
