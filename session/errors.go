package session

import "errors"

// Operational failures surfaced to callers. Contract violations
// (double-lock, draining an unlocked context) are not errors — they
// panic, because they indicate a bug in the surrounding runtime.
var (
	// ErrNotFound is returned by Find when no row matches the id.
	ErrNotFound = errors.New("opal: object not found")

	// ErrAlreadyPersistent is returned by Persist when the id already
	// exists.
	ErrAlreadyPersistent = errors.New("opal: object already persistent")

	// ErrNotPersistent is returned by Update and Erase when the object
	// has no row.
	ErrNotPersistent = errors.New("opal: object not persistent")

	// ErrObjectChanged is returned by version-checked update and erase
	// when the stored version no longer matches: the engine reports the
	// conflict as zero rows affected and the decision to retry or abort
	// stays with the caller.
	ErrObjectChanged = errors.New("opal: object changed concurrently")
)
