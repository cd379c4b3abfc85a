package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStore marks a local persistence failure (quota, corruption, lost
	// connection) surfaced to callers of the caches. Earlier writes of the
	// same operation are not rolled back.
	ErrStore = errors.New("store failure")
)
