package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"
)

//go:embed migrations
var embedded embed.FS

// Migration represents a database migration
// ARCHITECTURAL DISCOVERY: Migration struct encapsulates all information needed
// for safe schema evolution
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationsFS returns the embedded migration files for a driver
func MigrationsFS(driver string) (fs.FS, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return fs.Sub(embedded, path.Join("migrations", driver))
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
}

// MigrationManager handles database migrations
// FUNCTIONAL DISCOVERY: Manager pattern encapsulates migration state and operations
// so both storage backends share one migration procedure
type MigrationManager struct {
	db     *sql.DB
	driver string
	files  fs.FS
}

// NewMigrationManager creates a migration manager over the driver's embedded migrations
func NewMigrationManager(db *sql.DB, driver string) (*MigrationManager, error) {
	files, err := MigrationsFS(driver)
	if err != nil {
		return nil, err
	}
	return &MigrationManager{db: db, driver: driver, files: files}, nil
}

// ApplyMigrations applies all pending migrations
// ARCHITECTURAL DISCOVERY: Each migration runs in its own transaction together
// with its tracking row, so a failed migration leaves no partial record
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// TECHNICAL DISCOVERY: Migration ordering by filename ensures consistent
	// application order across different environments
	for _, migration := range migrations {
		if slices.Contains(applied, migration.Version) {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema ensures database matches expected structure
func (m *MigrationManager) ValidateSchema() error {
	return NewSchemaValidator(m.db, m.driver).Validate()
}

func (m *MigrationManager) createMigrationTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// loadMigrations reads the *.sql files, e.g. "001_initial_schema.sql" -> version "001"
func (m *MigrationManager) loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(m.files, entry.Name())
		if err != nil {
			return nil, err
		}

		version, description, _ := strings.Cut(strings.TrimSuffix(entry.Name(), ".sql"), "_")
		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func (m *MigrationManager) getAppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	insert := "INSERT INTO schema_migrations (version) VALUES (?)"
	if m.driver == DriverPostgres {
		insert = "INSERT INTO schema_migrations (version) VALUES ($1)"
	}
	if _, err := tx.Exec(insert, migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
