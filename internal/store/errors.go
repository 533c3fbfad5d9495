package store

import "errors"

// ErrNotFound is returned by store methods that modify a row addressed by
// id when no such row (or no row owned by the calling user) exists.
var ErrNotFound = errors.New("store: not found")
