package storage

import "errors"

// Storage error constants
var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserConflict is returned when a sign-in cannot be matched to exactly one account
	ErrUserConflict = errors.New("user conflict")

	// ErrInvitationNotFound is returned when an invitation is not found
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrClosed is returned when the database handle was already closed
	ErrClosed = errors.New("database is closed")
)
