package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

// ErrUnsupportedDriver is returned for drivers without an embedded
// migration set. SQLite is intentionally unsupported here; its schema is
// created by GORM auto-migration when the store opens.
var ErrUnsupportedDriver = errors.New("migration: unsupported driver")

// Entry describes one embedded migration file pair.
type Entry struct {
	Version uint
	Name    string
}

// Config selects the migration set and the bookkeeping table.
type Config struct {
	// Driver is "postgres" or "mysql".
	Driver string
	// TableName is the migrations bookkeeping table. Defaults to
	// "schema_migrations".
	TableName string
}

// Migrator applies embedded schema migrations over an existing database
// connection. The connection is owned by the caller and is not closed.
type Migrator struct {
	m      *migrate.Migrate
	driver string
	logger *zap.Logger
}

// NewMigrator wraps db with a golang-migrate instance for cfg.Driver.
func NewMigrator(db *sql.DB, cfg Config, logger *zap.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("migration: database connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	dbDriver, err := databaseDriver(db, cfg)
	if err != nil {
		return nil, err
	}

	srcDriver, err := sourceDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, cfg.Driver, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migration: create instance: %w", err)
	}

	return &Migrator{m: m, driver: cfg.Driver, logger: logger}, nil
}

func databaseDriver(db *sql.DB, cfg Config) (database.Driver, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.TableName})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

func sourceDriver(driver string) (source.Driver, error) {
	switch driver {
	case "postgres":
		return iofs.New(postgresFS, "migrations/postgres")
	case "mysql":
		return iofs.New(mysqlFS, "migrations/mysql")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: up: %w", err)
	}
	mg.logVersion("migrations applied")
	return nil
}

// Down rolls back a single migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down: %w", err)
	}
	mg.logVersion("migration rolled back")
	return nil
}

// Steps applies n migrations forward, or -n backward.
func (mg *Migrator) Steps(n int) error {
	if err := mg.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: steps(%d): %w", n, err)
	}
	return nil
}

// Goto migrates to a specific version, up or down.
func (mg *Migrator) Goto(version uint) error {
	if err := mg.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: goto %d: %w", version, err)
	}
	return nil
}

// Force marks the database at version without running migrations. Used to
// recover from a dirty state.
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("migration: force %d: %w", version, err)
	}
	return nil
}

// Version reports the current schema version. A database with no applied
// migrations reports version 0.
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration: version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migrate source. The database connection stays open.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (mg *Migrator) logVersion(msg string) {
	version, dirty, err := mg.Version()
	if err != nil {
		return
	}
	mg.logger.Info(msg,
		zap.String("driver", mg.driver),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}

// Available lists the migrations embedded for driver, sorted by version.
func Available(driver string) ([]Entry, error) {
	var fsys fs.FS
	var dir string
	switch driver {
	case "postgres":
		fsys, dir = postgresFS, "migrations/postgres"
	case "mysql":
		fsys, dir = mysqlFS, "migrations/mysql"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migration: read embedded dir: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(name), ".up.sql")
		idx := strings.Index(base, "_")
		if idx < 0 {
			continue
		}
		version, err := strconv.ParseUint(base[:idx], 10, 32)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Version: uint(version), Name: base[idx+1:]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}
