package server

import "errors"

// Inspector-specific errors
var (
	ErrServerClosed         = errors.New("inspector is closed")
	ErrServerNotRunning     = errors.New("inspector is not running")
	ErrServerAlreadyRunning = errors.New("inspector is already running")
	ErrInvalidConfig        = errors.New("invalid inspector configuration")
)
