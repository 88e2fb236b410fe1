package db

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreMissing reports that the store file does not exist. This is
	// an expected state on first run, not corruption.
	ErrStoreMissing = errors.New("store file does not exist")

	// ErrHandleUnavailable is returned when the manager cannot produce a
	// usable handle even after corruption recovery. It is fatal: data
	// operations must stop until the process restarts.
	ErrHandleUnavailable = errors.New("database handle unavailable")
)

// CorruptError reports that a file is not a well-formed, readable store.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt store %s: %s", e.Path, e.Reason)
}

// IsCorrupt reports whether err carries a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
