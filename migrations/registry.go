// Package migrations carves the broker's embedded SQL payload into
// dialect-specific trees and hands them to whichever migration runner the
// host application wires. The broker never executes migrations itself.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	tokenbroker "github.com/goliatone/go-token-broker"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	payloadDir   = "data/sql/migrations"
	sqliteSubdir = "sqlite"
)

// Source is one dialect-specific slice of the embedded migration payload.
type Source struct {
	Dialect string
	Dir     string
	FS      fs.FS
}

// Plan records what Apply handed to the migration runner.
type Plan struct {
	Label    string
	Dialects []string
	Sources  []Source
}

// ApplyFunc receives one migration tree per selected dialect.
type ApplyFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Plan)

func WithLabel(label string) Option {
	return func(p *Plan) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			p.Label = trimmed
		}
	}
}

func WithDialects(dialects ...string) Option {
	return func(p *Plan) {
		if normalized := normalizeDialects(dialects); len(normalized) > 0 {
			p.Dialects = normalized
		}
	}
}

// WithSources replaces the embedded payload, usually with fixture trees in
// tests. Entries without a dialect or filesystem are dropped.
func WithSources(sources ...Source) Option {
	return func(p *Plan) {
		kept := make([]Source, 0, len(sources))
		for _, src := range sources {
			dialect := strings.ToLower(strings.TrimSpace(src.Dialect))
			if dialect == "" || src.FS == nil {
				continue
			}
			kept = append(kept, Source{Dialect: dialect, Dir: src.Dir, FS: src.FS})
		}
		if len(kept) > 0 {
			p.Sources = kept
		}
	}
}

// Sources splits the embedded payload into its postgres and sqlite trees.
// Postgres statements sit at the payload root and the sqlite variants in a
// subdirectory, so the sqlite tree is a sub view of the same payload.
func Sources() ([]Source, error) {
	root, err := fs.Sub(tokenbroker.GetMigrationsFS(), payloadDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: embedded payload missing %s: %w", payloadDir, err)
	}
	sqliteTree, err := fs.Sub(root, sqliteSubdir)
	if err != nil {
		return nil, fmt.Errorf("migrations: embedded payload missing %s tree: %w", DialectSQLite, err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Dir: payloadDir, FS: root},
		{Dialect: DialectSQLite, Dir: path.Join(payloadDir, sqliteSubdir), FS: sqliteTree},
	}
	for _, src := range sources {
		if err := ensureUpMigrations(src); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// Apply feeds one migration tree per selected dialect to applyFn. A dialect
// with no matching source is an error rather than a silent skip, since the
// broker ships exactly the postgres and sqlite trees.
func Apply(ctx context.Context, applyFn ApplyFunc, opts ...Option) (Plan, error) {
	plan := Plan{
		Label:    "go-token-broker",
		Dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}

	if applyFn == nil {
		return plan, fmt.Errorf("migrations: apply function is required")
	}
	if strings.TrimSpace(plan.Label) == "" {
		return plan, fmt.Errorf("migrations: label is required")
	}
	if len(plan.Dialects) == 0 {
		return plan, fmt.Errorf("migrations: at least one dialect is required")
	}

	if len(plan.Sources) == 0 {
		sources, err := Sources()
		if err != nil {
			return plan, err
		}
		plan.Sources = sources
	}

	byDialect := make(map[string]Source, len(plan.Sources))
	for _, src := range plan.Sources {
		byDialect[src.Dialect] = src
	}

	for _, dialect := range plan.Dialects {
		src, ok := byDialect[dialect]
		if !ok {
			return plan, fmt.Errorf("migrations: no migration tree for dialect %q", dialect)
		}
		if err := applyFn(ctx, src.Dialect, plan.Label, src.FS); err != nil {
			return plan, fmt.Errorf("migrations: apply %s (%s): %w", src.Dialect, src.Dir, err)
		}
	}

	return plan, nil
}

func ensureUpMigrations(src Source) error {
	matches, err := fs.Glob(src.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: scan %s tree: %w", src.Dialect, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s tree %q has no *.up.sql files", src.Dialect, src.Dir)
	}
	return nil
}

func normalizeDialects(dialects []string) []string {
	seen := make(map[string]struct{}, len(dialects))
	out := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		trimmed := strings.ToLower(strings.TrimSpace(dialect))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
