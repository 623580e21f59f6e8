package app

import "errors"

// Application lifecycle errors
var ErrAlreadyStarted = errors.New("application already started")
