package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	dbconfig "roomchat/pkg/database"
	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// PostgresStore is the PostgreSQL implementation of interfaces.Store
// ARCHITECTURAL DISCOVERY: PostgreSQL handles concurrent writers itself, so
// writes go straight to the pool instead of through a single-writer queue
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects the pool, applies migrations and validates the schema
func NewPostgresStore(ctx context.Context, config *dbconfig.Config, logger *slog.Logger) (*PostgresStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	// TECHNICAL DISCOVERY: Migrations share the database/sql path with SQLite
	// through a database/sql view of the same pool
	db := stdlib.OpenDBFromPool(pool)
	err = migrate(db, dbconfig.DriverPostgres)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool: pool,
		log:  logger.With("component", "database", "driver", dbconfig.DriverPostgres),
	}, nil
}

// FindRoomByName returns the room with the given normalized name
func (s *PostgresStore) FindRoomByName(ctx context.Context, name string) (*types.Room, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, name, key, iv, created_at FROM rooms WHERE name = $1", name)

	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return room, nil
}

// CreateRoom inserts a new room; a duplicate name returns interfaces.ErrRoomExists
func (s *PostgresStore) CreateRoom(ctx context.Context, name string, key, iv []byte) (*types.Room, error) {
	room := &types.Room{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Key:       key,
		IV:        iv,
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO rooms (id, name, key, iv, created_at) VALUES ($1, $2, $3, $4, $5)",
		room.ID, room.Name, room.Key, room.IV, room.CreatedAt.UnixNano(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, interfaces.ErrRoomExists
		}
		return nil, fmt.Errorf("failed to insert room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room and all of its messages in one transaction
func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE room_id = $1", roomID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrRoomNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit room deletion: %w", err)
	}
	return nil
}

// AppendMessage persists a message
func (s *PostgresStore) AppendMessage(ctx context.Context, message *types.Message) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO messages (id, room_id, sender, ciphertext, timestamp) VALUES ($1, $2, $3, $4, $5)",
		message.ID, message.RoomID, message.Sender, message.Ciphertext, message.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListRecentMessages returns at most limit of the newest messages, oldest first
func (s *PostgresStore) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, room_id, sender, ciphertext, timestamp FROM (
			SELECT seq, id, room_id, sender, ciphertext, timestamp
			FROM messages
			WHERE room_id = $1
			ORDER BY timestamp DESC, seq DESC
			LIMIT $2
		) recent ORDER BY timestamp ASC, seq ASC
	`
	rows, err := s.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	defer rows.Close()

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

// HealthCheck validates database connectivity
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.log.Info("postgres pool closed")
	return nil
}
