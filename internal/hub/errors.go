package hub

import "errors"

// Hub errors
var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrHubStopped         = errors.New("hub has been stopped")
	ErrConnectionNotFound = errors.New("connection not found")
)
