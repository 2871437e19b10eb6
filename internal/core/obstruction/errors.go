package obstruction

import "errors"

var (
	ErrEmptySource   = errors.New("obstruction source id is empty")
	ErrUnknownSource = errors.New("unknown obstruction source")
)
