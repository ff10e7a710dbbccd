package interfaces

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
	// ErrClosed is returned when a write targets a record that no longer
	// accepts changes.
	ErrClosed = errors.New("record closed")
)
