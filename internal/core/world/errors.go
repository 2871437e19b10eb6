package world

import "errors"

var (
	ErrInvalidGravity = errors.New("gravity must be one of the six directions")
	ErrUnknownGroup   = errors.New("unknown tile group")
	ErrClosed         = errors.New("world is closed")
)
