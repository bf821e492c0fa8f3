package session

import "errors"

// Sentinel errors. Callers test for them with [errors.Is]; the returned
// errors wrap the underlying cause.
var (
	// ErrSessionNotFound is returned for ids absent from the metadata table,
	// including sessions deleted while a caller still held their [Store].
	ErrSessionNotFound = errors.New("session: not found")

	// ErrEmbedding is returned when the embedder fails or returns vectors
	// that do not match the request.
	ErrEmbedding = errors.New("session: embedding failed")

	// ErrPersistence is returned when durable state could not be written.
	// The in-memory state has already been updated and stays usable.
	ErrPersistence = errors.New("session: persistence failed")

	// ErrCorruptedState is returned when the index and ledger disagree, or a
	// snapshot fails its integrity checks.
	ErrCorruptedState = errors.New("session: corrupted state")

	// ErrClosed is returned by a [Registry] after Close.
	ErrClosed = errors.New("session: registry closed")
)
