package tiles

import "errors"

var (
	// ErrStaleHandle is returned for handles whose tile was destroyed (or that
	// never referred to a tile).
	ErrStaleHandle  = errors.New("stale tile handle")
	ErrNotConnector = errors.New("tile is not a connector backing tile")
	ErrUnknownType  = errors.New("unknown traversal type")
)
