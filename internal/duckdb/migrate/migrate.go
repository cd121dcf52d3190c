// Package migrate applies the embedded, versioned schema for the sync
// history database.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations is the schema shipped with the binary.
var Migrations fs.FS = mustSub(embedded, "migrations")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Runner applies migrations found in a filesystem. Files are named
// NNN_description.sql and applied in version order.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
}

// NewRunner creates a runner over the embedded migrations.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, fsys: Migrations}
}

// WithFS returns a runner reading migrations from fsys instead.
func (r *Runner) WithFS(fsys fs.FS) *Runner {
	return &Runner{db: r.db, fsys: fsys}
}

type step struct {
	version int
	name    string
	body    string
}

func (r *Runner) load() ([]step, error) {
	names, err := fs.Glob(r.fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	steps := make([]step, 0, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(path.Base(name), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", name, err)
		}
		body, err := fs.ReadFile(r.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		steps = append(steps, step{version: version, name: name, body: string(body)})
	}
	slices.SortFunc(steps, func(a, b step) int { return a.version - b.version })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d", steps[i].version)
		}
	}
	return steps, nil
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (r *Runner) current(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// Run applies every pending migration, each in its own transaction.
// It returns the number applied.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	steps, err := r.load()
	if err != nil {
		return 0, err
	}
	cur, err := r.current(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, s := range steps {
		if s.version <= cur {
			continue
		}
		if err := r.apply(ctx, s); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, s step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", s.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.body); err != nil {
		return fmt.Errorf("apply %s: %w", s.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("record %s: %w", s.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", s.name, err)
	}
	return nil
}

// Status reports the applied schema version and how many migrations are pending.
func (r *Runner) Status(ctx context.Context) (current, pending int, err error) {
	if err = r.ensureTable(ctx); err != nil {
		return 0, 0, err
	}
	if current, err = r.current(ctx); err != nil {
		return 0, 0, err
	}
	steps, err := r.load()
	if err != nil {
		return 0, 0, err
	}
	for _, s := range steps {
		if s.version > current {
			pending++
		}
	}
	return current, pending, nil
}
