package interfaces

import "errors"

// Common store errors used across components
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)
