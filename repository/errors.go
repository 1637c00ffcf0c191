package repository

import "errors"

var (
	// ErrDuplicateUser is returned when registering with an email that is
	// already taken.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)
