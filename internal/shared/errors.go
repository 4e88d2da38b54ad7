package shared

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller input violated a precondition before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict indicates a transition invalid for the record's current state.
	ErrStateConflict = errors.New("state conflict")
)
