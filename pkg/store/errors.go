package store

import "errors"

var (
	// ErrDatabaseNotFound indicates the database container does not exist.
	ErrDatabaseNotFound = errors.New("database not found")
	// ErrPrefixNotFound indicates the database exists but has no partition
	// for the requested prefix.
	ErrPrefixNotFound = errors.New("partition prefix not found")
	// ErrBlobNotFound indicates a named blob is absent from a container.
	ErrBlobNotFound = errors.New("blob not found")
)
