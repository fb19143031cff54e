package docstore

import "errors"

// Common store errors.
var (
	// ErrNotFound is returned when a document is not found.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a save loses an optimistic-concurrency
	// race. The caller is expected to re-read before retrying.
	ErrConflict = errors.New("document revision conflict")
)
