package models

import "errors"

// Error taxonomy for the core API. Callers match with errors.Is; the
// store layer and services wrap these with %w and context.
var (
	// ErrNotFound means no row matched the given identifier.
	ErrNotFound = errors.New("not found")

	// ErrConstraint means the store rejected a write for a uniqueness,
	// foreign-key or check violation.
	ErrConstraint = errors.New("constraint violation")

	// ErrInvalidState means the operation is illegal in the entity's
	// current lifecycle state, e.g. mutating a purchased cart.
	ErrInvalidState = errors.New("invalid state")

	// ErrPermissionDenied means the authorization gate refused a
	// destructive operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation means the input is malformed, e.g. a non-positive
	// quantity or a receive date not after the send date.
	ErrValidation = errors.New("validation failed")

	// ErrConnection means the store is unreachable or the transaction
	// was aborted before commit.
	ErrConnection = errors.New("store unavailable")

	// ErrSchema means a required table or column is absent.
	ErrSchema = errors.New("schema incomplete")
)
