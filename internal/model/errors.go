package model

import "errors"

// Domain errors shared across the storage, service, and transport layers.
var (
	// ErrAttemptAlreadyActive is returned when a student who already holds an
	// ACTIVE attempt tries to start another one.
	ErrAttemptAlreadyActive = errors.New("student already has an active attempt")

	// ErrAttemptNotFound is returned when the requested attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptAlreadyFinalized is returned when an attempt already sits in a
	// terminal state and a second finalization is requested.
	ErrAttemptAlreadyFinalized = errors.New("attempt already finalized")

	// ErrInsufficientQuestions is returned when the catalog pool is smaller
	// than the requested question count.
	ErrInsufficientQuestions = errors.New("question pool smaller than requested count")

	// ErrCatalogUnavailable is returned when the question catalog cannot be
	// reached. Attempt creation treats this as fatal.
	ErrCatalogUnavailable = errors.New("question catalog unavailable")
)
