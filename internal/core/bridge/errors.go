package bridge

import "errors"

var (
	// ErrMalformedBridge aborts a sibling search that revisits a connector or
	// runs deeper than the configured limit.
	ErrMalformedBridge  = errors.New("malformed bridge")
	ErrZeroAxis         = errors.New("bridging axis has zero length")
	ErrUnknownConnector = errors.New("unknown connector")
)
