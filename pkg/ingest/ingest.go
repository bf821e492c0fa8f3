// Package ingest turns uploaded documents into text chunks.
//
// [Load] extracts plain text from a file, choosing a reader by extension
// (.pdf, .docx, .txt, .sql, .csv, .json). [Split] cuts the text into
// overlapping fixed-size windows ready for embedding.
package ingest

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by [Load] for extensions it has no reader
// for.
var ErrUnsupportedFormat = errors.New("ingest: unsupported file type")

// ExtractError reports a failure reading a document of a supported format.
type ExtractError struct {
	Path   string
	Format string // lower-case extension without the dot, e.g. "pdf"
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("ingest: error reading %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }
