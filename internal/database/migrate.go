package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded enrollment, verification, webhook queue and
// attempt counter schema.
type Migrator struct {
	m      *migrate.Migrate
	latest uint
}

// Status is where the schema stands relative to the embedded migrations.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

func (s Status) Pending() bool { return s.Version < s.Latest }

func NewMigrator(db *sql.DB, dbName string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		DatabaseName:    dbName,
		MigrationsTable: "facegate_schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	latest, err := latestVersion(migrationsFS)
	if err != nil {
		return nil, err
	}
	return &Migrator{m: m, latest: latest}, nil
}

// WithLogger routes golang-migrate's progress lines to logger at debug level.
func (m *Migrator) WithLogger(logger *slog.Logger) *Migrator {
	m.m.Log = migrateLogger{logger: logger.With("component", "migrate")}
	return m
}

// Up runs all pending migrations. Being up to date is not an error.
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Down rolls back the last migration (DEV ONLY)
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Version returns current migration version; 0 before the first migration.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) Status() (Status, error) {
	v, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	return Status{Version: v, Latest: m.latest, Dirty: dirty}, nil
}

// Force sets the migration version without running migrations (DANGEROUS)
func (m *Migrator) Force(version int) error {
	if version < 0 || uint(version) > m.latest {
		return fmt.Errorf("force version: %d outside 0..%d", version, m.latest)
	}
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version: %w", err)
	}
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return fmt.Errorf("close source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close database: %w", dbErr)
	}
	return nil
}

// latestVersion reads the highest NNNNNN_ prefix of the embedded files.
func latestVersion(fsys fs.FS) (uint, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("migration %s: bad version prefix", e.Name())
		}
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	return latest, nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return false }
