package application

import (
	"context"
	"io/fs"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// MigrationManager applies module schema files in filename order.
// Each file runs once; applied names are tracked in schema_migrations.
type MigrationManager struct {
	pool    *pgxpool.Pool
	logger  *logrus.Logger
	schemas []fs.FS
}

func NewMigrationManager(pool *pgxpool.Pool, logger *logrus.Logger) *MigrationManager {
	return &MigrationManager{
		pool:   pool,
		logger: logger,
	}
}

func (m *MigrationManager) RegisterSchema(schema fs.FS) {
	m.schemas = append(m.schemas, schema)
}

type schemaFile struct {
	name string
	sql  string
}

func (m *MigrationManager) collectFiles() ([]schemaFile, error) {
	var files []schemaFile
	for _, schema := range m.schemas {
		err := fs.WalkDir(schema, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".sql") {
				return nil
			}
			content, err := fs.ReadFile(schema, path)
			if err != nil {
				return errors.Wrapf(err, "failed to read schema file %s", path)
			}
			files = append(files, schemaFile{name: d.Name(), sql: string(content)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})
	return files, nil
}

func (m *MigrationManager) Apply(ctx context.Context) error {
	files, err := m.collectFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	_, err = m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name varchar(255) PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to ensure schema_migrations table")
	}

	for _, file := range files {
		applied, err := m.isApplied(ctx, file.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.apply(ctx, file); err != nil {
			return err
		}
		m.logger.WithField("migration", file.name).Info("applied schema migration")
	}
	return nil
}

func (m *MigrationManager) isApplied(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check migration state")
	}
	return exists, nil
}

func (m *MigrationManager) apply(ctx context.Context, file schemaFile) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, file.sql); err != nil {
		return errors.Wrapf(err, "failed to apply migration %s", file.name)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (name) VALUES ($1)", file.name,
	); err != nil {
		return errors.Wrapf(err, "failed to record migration %s", file.name)
	}
	return errors.Wrap(tx.Commit(ctx), "failed to commit migration")
}
