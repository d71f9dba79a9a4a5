package board

import "errors"

var (
	// ErrValidation marks a structurally invalid update. Rejected batches have no effect.
	ErrValidation = errors.New("invalid update")

	// ErrNotFound is returned for unknown checkpoint numbers.
	ErrNotFound = errors.New("not found")

	// ErrNotInitialized is returned by mirror operations before Start and SetUser.
	ErrNotInitialized = errors.New("not initialized")
)
