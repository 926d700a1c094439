package shared

import "errors"

var (
	// ErrNotFound indicates a record absent from a storage backend.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the active storage backend rejected an
	// operation after fallback was exhausted.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation indicates a structurally malformed stored record.
	ErrValidation = errors.New("invalid record")
)
