package registry

import "errors"

// ErrNotFound indicates no live session exists for the given identifier.
var ErrNotFound = errors.New("session not found")
