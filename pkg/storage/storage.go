// Package storage defines the FileStore interface for reading and writing
// files. It abstracts the underlying storage backend so that callers can
// swap between local disk and S3-compatible object stores without changing
// application code.
//
// Session snapshots are the main payload: one file per session directory,
// replaced wholesale on every persist. Writes therefore become visible only
// when the writer is closed successfully: [Local] writes to a temporary file
// and renames it into place, [S3Store] uploads with a single PutObject.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidPath is returned for paths that are empty or escape the store root.
var ErrInvalidPath = errors.New("storage: invalid path")

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Parent directories are created
	// automatically. The previous content, if any, stays readable until Close
	// returns nil; if any Write or the Close fails, it is left untouched.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file.
	// If the file does not exist, Delete returns nil (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// RemoveAll removes the directory dir and everything below it.
	// A missing directory is not an error.
	RemoveAll(ctx context.Context, dir string) error
}
