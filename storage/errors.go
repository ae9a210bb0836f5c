package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a document, meta-bundle, or token is
	// not found.
	ErrNotFound = errors.New("entry not found")

	// ErrConflict is returned when a compare-and-set update lost a race;
	// callers re-read and retry.
	ErrConflict = errors.New("revision conflict")
)
