package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrEmptyDisplayName   = errors.New("display name cannot be empty")
	ErrDisplayNameTooLong = errors.New("display name must be at most 50 characters")
	ErrInvalidDisplayName = errors.New("display name contains control characters")
	ErrEmptyRoomName      = errors.New("room name cannot be empty")
	ErrRoomNameTooLong    = errors.New("room name must be at most 100 characters")
	ErrInvalidRoomName    = errors.New("room name contains control characters")
	ErrEmptyMessage       = errors.New("message text cannot be empty")
	ErrMessageTooLong     = errors.New("message text exceeds the maximum length")
)
