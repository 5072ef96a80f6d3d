package errors

import (
	"errors"
)

// Schema configuration errors - fatal at handler construction
var (
	// ErrReservedColumn is returned when an additional field name collides
	// with one of the reserved log columns
	ErrReservedColumn = errors.New("additional field collides with reserved column")

	// ErrDuplicateField is returned when two additional fields share a name
	ErrDuplicateField = errors.New("duplicate additional field name")

	// ErrInvalidIdentifier is returned when a table or field name is not a
	// valid SQL identifier. Names are interpolated into DDL, so anything
	// outside [A-Za-z_][A-Za-z0-9_]* is rejected up front
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")

	// ErrMissingPath is returned when no database path is configured
	ErrMissingPath = errors.New("database path is required")

	// ErrInvalidCapacity is returned when the buffer capacity is not positive
	ErrInvalidCapacity = errors.New("capacity must be positive")
)

// Lifecycle errors
var (
	// ErrClosed is returned when emitting or flushing through a handler
	// after Close has completed
	ErrClosed = errors.New("handler is closed")
)
