package router

import "errors"

// Router errors
var (
	ErrInvalidFrame      = errors.New("invalid frame")
	ErrUnknownFrameType  = errors.New("unknown frame type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
