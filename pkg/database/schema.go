package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db     *sql.DB
	driver string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, driver string) *SchemaValidator {
	return &SchemaValidator{db: db, driver: driver}
}

// Validate runs every check in order and returns the first failure
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
// FUNCTIONAL DISCOVERY: Explicit table validation prevents runtime errors
// from missing tables during database operations
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"rooms":             "Room records and key material",
		"messages":          "Encrypted message storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies every column the stores read and write is present
// TECHNICAL DISCOVERY: Column validation ensures the stores' queries match
// the schema before the first request arrives
func (v *SchemaValidator) ValidateTableStructure() error {
	roomColumns := []string{"id", "name", "key", "iv", "created_at"}
	if err := v.validateColumns("rooms", roomColumns); err != nil {
		return fmt.Errorf("rooms table structure invalid: %w", err)
	}

	messageColumns := []string{"seq", "id", "room_id", "sender", "ciphertext", "timestamp"}
	if err := v.validateColumns("messages", messageColumns); err != nil {
		return fmt.Errorf("messages table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_messages_room_time": "Recent history retrieval",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that referential integrity is enforced
// ARCHITECTURAL DISCOVERY: The check runs inside a transaction that is always
// rolled back, so validation never leaves rows behind
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin constraint check: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO messages (id, room_id, sender, ciphertext, timestamp)
		VALUES ('constraint-check', 'missing-room', 'check', x'00', 0)
	`
	if v.driver == DriverPostgres {
		query = strings.Replace(query, "x'00'", `'\x00'::bytea`, 1)
	}
	if _, err := tx.Exec(query); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: messages.room_id")
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	return v.count(query, tableName)
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1"
	}
	return v.count(query, indexName)
}

func (v *SchemaValidator) count(query string, arg string) (bool, error) {
	var n int
	if err := v.db.QueryRow(query, arg).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected []string) error {
	found, err := v.columns(tableName)
	if err != nil {
		return err
	}
	for _, col := range expected {
		if !found[col] {
			return fmt.Errorf("column %s not found", col)
		}
	}
	return nil
}

func (v *SchemaValidator) columns(tableName string) (map[string]bool, error) {
	if v.driver == DriverPostgres {
		rows, err := v.db.Query(
			"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1",
			tableName,
		)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		found := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			found[name] = true
		}
		return found, rows.Err()
	}

	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue interface{}
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		found[name] = true
	}
	return found, rows.Err()
}
