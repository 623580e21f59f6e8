package interfaces

import (
	"context"

	"roomchat/pkg/types"
)

// Store handles all durable room and message operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// lets the SQLite and PostgreSQL backends be swapped without touching the
// session controller
type Store interface {
	// FindRoomByName returns the room with the given normalized name
	// or ErrRoomNotFound
	FindRoomByName(ctx context.Context, name string) (*types.Room, error)

	// CreateRoom inserts a new room record
	// FUNCTIONAL DISCOVERY: Room names are unique in the store; a concurrent
	// creation of the same name surfaces as ErrRoomExists so callers can re-fetch
	CreateRoom(ctx context.Context, name string, key, iv []byte) (*types.Room, error)

	// DeleteRoom removes a room and all of its messages
	DeleteRoom(ctx context.Context, roomID string) error

	// AppendMessage persists a message
	// FUNCTIONAL DISCOVERY: Message storage must complete before broadcast
	AppendMessage(ctx context.Context, message *types.Message) error

	// ListRecentMessages returns at most limit of the newest messages of a room,
	// ordered oldest first for replay
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*types.Message, error)

	// HealthCheck verifies connectivity
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connections
	Close() error
}
