package database

import "errors"

var (
	// ErrNotFound is returned by Latest when no check has been stored for
	// the method.
	ErrNotFound = errors.New("no stored check found")

	// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is
	// false and the database file does not exist.
	ErrDatabaseNotFound = errors.New("database not found")
)
