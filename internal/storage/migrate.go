package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	applog "reportviewer/internal/log"
)

//go:embed migrations/*.sql
var auditMigrations embed.FS

// AuditMigrations is the embedded schema for the submission audit log,
// rooted at the directory holding the numbered .sql files.
func AuditMigrations() fs.FS {
	sub, err := fs.Sub(auditMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// SchemaVersion is the migration state of an audit database.
type SchemaVersion struct {
	Version uint
	Dirty   bool
}

// RunMigrations applies every pending migration in source to the SQLite
// database at dbPath and returns the resulting schema version.
// A database left dirty by an interrupted run is reported, not forced.
func RunMigrations(dbPath string, source fs.FS, logger *slog.Logger) (SchemaVersion, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldComponent, applog.ComponentStorage)

	// m.Close closes the database it was given, so it gets its own handle.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(source, ".")
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("read migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	before, err := currentVersion(m)
	if err != nil {
		return before, err
	}
	if before.Dirty {
		return before, fmt.Errorf("audit schema is dirty at version %d", before.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("run migrations: %w", err)
	}

	after, err := currentVersion(m)
	if err != nil {
		return after, err
	}

	if after.Version == before.Version {
		logger.Debug("Audit schema up to date", "version", after.Version)
	} else {
		logger.Info("Audit schema migrated",
			"from_version", before.Version,
			"to_version", after.Version,
			"db_path", dbPath)
	}
	return after, nil
}

func currentVersion(m *migrate.Migrate) (SchemaVersion, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("read schema version: %w", err)
	}
	return SchemaVersion{Version: v, Dirty: dirty}, nil
}
