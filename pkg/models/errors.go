package models

import "errors"

// Engine-wide error taxonomy. Callers classify failures with errors.Is
// and the API gateway maps them to 400/409/404 responses.
var (
	// ErrValidation indicates bad input that will never succeed on retry
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates a state conflict, e.g. starting a playbook
	// execution while one is already active
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates an unknown tenant, profile, playbook or
	// execution identifier
	ErrNotFound = errors.New("not found")
)
