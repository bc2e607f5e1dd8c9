// Package apperr holds the sentinel errors shared across Folio packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// The configured content store cannot serve the operation (pull requests
	// and history on the local store).
	ErrUnsupported = errors.New("not supported by this store")

	// Navigation blob could not be parsed or has the wrong top-level shape.
	ErrMalformedNavigation = errors.New("malformed navigation data")

	// Mutation engine errors. These are user-correctable and never touch the cache.
	ErrParentNotFound = errors.New("parent directory not found")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrInvalidName    = errors.New("invalid name")
	ErrLocked         = errors.New("entry is locked")

	// Commit errors.
	ErrNoPendingChanges = errors.New("no pending changes")
	ErrWriteConflict    = errors.New("write conflict")
	ErrCommitFailed     = errors.New("commit failed")

	// A branch create/delete was not observed within the retry budget. Callers treat
	// this as a warning: the operation most likely succeeded server-side.
	ErrEventualConsistencyTimeout = errors.New("eventual consistency timeout")
)
