// Package vecstore provides an exact nearest-neighbor index over dense
// float32 vectors.
//
// Vectors are addressed by position: the ordinal at which they were inserted,
// starting at 0 and dense. Callers keep parallel data (text, metadata) in a
// slice indexed by the same position. There is no delete-by-position; the only
// way to drop vectors is [Index.Reset], which discards everything.
//
// The [Flat] implementation scans every stored vector and ranks by squared
// Euclidean distance. For the small per-document corpora this package is
// built for, a scan is fast and, unlike graph indexes, fully reproducible.
// [Flat.Save] and [LoadFlat] provide a compact binary snapshot.
package vecstore

import "errors"

// Sentinel errors.
var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension.
	ErrDimensionMismatch = errors.New("vecstore: dimension mismatch")

	// ErrInvalidFormat is returned by LoadFlat for data that is not a
	// serialized index.
	ErrInvalidFormat = errors.New("vecstore: invalid format")
)

// Index is an append-only vector index with exact k-nearest-neighbor search.
//
// All implementations must be safe for concurrent use.
type Index interface {
	// Insert appends vectors in order and returns the position of the first
	// one. An empty slice inserts nothing and returns the current size.
	// Either all vectors are inserted or, on error, none are.
	Insert(vectors [][]float32) (int, error)

	// Search returns up to k neighbors of query ordered by ascending distance,
	// ties broken by lower position. k <= 0 or an empty index yields no
	// results.
	Search(query []float32, k int) ([]Neighbor, error)

	// Reset discards all vectors. The dimension is unchanged.
	Reset()

	// Size returns the number of stored vectors.
	Size() int

	// Dim returns the fixed vector dimension.
	Dim() int
}

// Neighbor is a single search result.
type Neighbor struct {
	// Pos is the insertion position of the matched vector.
	Pos int

	// Distance is the squared Euclidean distance to the query.
	Distance float32
}
