package orientation

import "errors"

// ErrUnknownOrientation is returned by Parse for names outside the enumeration.
var ErrUnknownOrientation = errors.New("unknown orientation")
