package migrate

import (
	"context"
	"embed"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/slot-booker/internal/db"
)

//go:embed *.sql
var fs embed.FS

// Files returns the embedded migration names in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Up applies every migration not yet listed in schema_migrations and returns
// the names it applied.
func Up(ctx context.Context, q db.Querier, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	files, err := Files()
	if err != nil {
		return nil, err
	}

	if err := q.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY);`); err != nil {
		return nil, errors.Wrap(err, "migrate: schema_migrations")
	}

	var applied []string
	for _, f := range files {
		var done bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, f).Scan(&done); err != nil {
			return applied, errors.Wrapf(err, "migrate: check %s", f)
		}
		if done {
			continue
		}

		b, err := fs.ReadFile(f)
		if err != nil {
			return applied, err
		}
		if err := q.Exec(ctx, string(b)); err != nil {
			return applied, errors.Wrapf(err, "migrate: apply %s", f)
		}
		if err := q.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, f); err != nil {
			return applied, errors.Wrapf(err, "migrate: record %s", f)
		}
		log.Info("migrate: applied", zap.String("version", f))
		applied = append(applied, f)
	}
	return applied, nil
}
