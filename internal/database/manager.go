package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	dbconfig "roomchat/pkg/database"
	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

// writeQueueTimeout bounds how long a write waits for a slot in the queue
const writeQueueTimeout = 30 * time.Second

// Manager is the SQLite implementation of interfaces.Store
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the SQLite database, applies migrations and starts the writer
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// ARCHITECTURAL DISCOVERY: Busy timeout, WAL and foreign keys are set in the
	// DSN so every pooled connection gets them, not only the first one
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := migrate(db, dbconfig.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		log:          logger.With("component", "database", "driver", dbconfig.DriverSQLite),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// migrate applies the embedded migrations and validates the result
func migrate(db *sql.DB, driver string) error {
	mgr, err := dbconfig.NewMigrationManager(db, driver)
	if err != nil {
		return err
	}
	if err := mgr.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := mgr.ValidateSchema(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- m.runWrite(op)
		case <-m.shutdown:
			m.log.Info("database write loop shutting down")
			return
		}
	}
}

// runWrite executes one operation, retrying once when SQLite reports contention
// FUNCTIONAL DISCOVERY: Only busy/locked errors are transient; constraint and
// context errors are returned unchanged so callers can map them
func (m *Manager) runWrite(op writeOperation) error {
	err := op.operation(m.db)
	if err == nil || !isBusy(err) {
		return err
	}

	m.log.Warn("database busy, retrying write", "delay", m.config.WriteRetryDelay, "error", err)
	timer := time.NewTimer(m.config.WriteRetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.shutdown:
		return err
	}

	if err = op.operation(m.db); err != nil {
		m.log.Error("database write failed after retry", "error", err)
	}
	return err
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(writeQueueTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	// FUNCTIONAL DISCOVERY: Once queued the outcome is whatever the write loop
	// reports; the operation observes ctx itself, so a reply here never claims
	// failure for a write that committed
	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// FindRoomByName returns the room with the given normalized name
func (m *Manager) FindRoomByName(ctx context.Context, name string) (*types.Room, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT id, name, key, iv, created_at FROM rooms WHERE name = ?", name)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return room, nil
}

// CreateRoom inserts a new room; a duplicate name returns interfaces.ErrRoomExists
func (m *Manager) CreateRoom(ctx context.Context, name string, key, iv []byte) (*types.Room, error) {
	room := &types.Room{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Key:       key,
		IV:        iv,
	}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO rooms (id, name, key, iv, created_at) VALUES (?, ?, ?, ?, ?)",
			room.ID, room.Name, room.Key, room.IV, room.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, interfaces.ErrRoomExists
		}
		return nil, fmt.Errorf("failed to insert room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room and all of its messages in one transaction
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = ?", roomID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID)
		if err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrRoomNotFound
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit room deletion: %w", err)
		}
		return nil
	})
}

// AppendMessage persists a message
func (m *Manager) AppendMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO messages (id, room_id, sender, ciphertext, timestamp) VALUES (?, ?, ?, ?, ?)",
			message.ID, message.RoomID, message.Sender, message.Ciphertext, message.Timestamp.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// ListRecentMessages returns at most limit of the newest messages, oldest first
// ARCHITECTURAL DISCOVERY: Reads bypass the write queue; WAL lets them run
// concurrently with the single writer
func (m *Manager) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, room_id, sender, ciphertext, timestamp FROM (
			SELECT seq, id, room_id, sender, ciphertext, timestamp
			FROM messages
			WHERE room_id = ?
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		) ORDER BY timestamp ASC, seq ASC
	`
	rows, err := m.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the write loop and the connection pool
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrency
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -64000",  // 64MB cache
		"PRAGMA temp_store = MEMORY",  // Use memory for temporary tables
		"PRAGMA foreign_keys = ON",    // Ensure referential integrity
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for write coordination
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*types.Room, error) {
	var (
		room      types.Room
		createdAt int64
	)
	if err := row.Scan(&room.ID, &room.Name, &room.Key, &room.IV, &createdAt); err != nil {
		return nil, err
	}
	room.CreatedAt = time.Unix(0, createdAt)
	return &room, nil
}

func scanMessages(rows *sql.Rows) ([]*types.Message, error) {
	var messages []*types.Message
	for rows.Next() {
		var (
			msg types.Message
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Sender, &msg.Ciphertext, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}
