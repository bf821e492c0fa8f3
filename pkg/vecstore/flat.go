package vecstore

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Flat is a brute-force [Index]. Vectors are stored contiguously in one
// float32 slice; search computes the distance to every stored vector.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // len(data) == n*dim
	n    int
	gen  uint64
}

var _ Index = (*Flat)(nil)

// NewFlat creates an empty index for vectors of the given dimension.
// Panics if dim is not positive.
func NewFlat(dim int) *Flat {
	if dim <= 0 {
		panic("vecstore: Flat dimension must be positive")
	}
	return &Flat{dim: dim}
}

// Insert appends vectors and returns the position of the first one.
func (f *Flat) Insert(vectors [][]float32) (int, error) {
	for i, v := range vectors {
		if len(v) != f.dim {
			return 0, fmt.Errorf("%w: vector %d has %d components, want %d",
				ErrDimensionMismatch, i, len(v), f.dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := f.n
	if len(vectors) == 0 {
		return start, nil
	}
	f.data = slices.Grow(f.data, len(vectors)*f.dim)
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	f.n += len(vectors)
	return start, nil
}

// Search returns the k nearest vectors to query by squared L2 distance.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d components, want %d",
			ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.n == 0 {
		return nil, nil
	}

	all := make([]Neighbor, f.n)
	for i := range f.n {
		all[i] = Neighbor{
			Pos:      i,
			Distance: SquaredL2(query, f.data[i*f.dim:(i+1)*f.dim]),
		}
	}
	slices.SortFunc(all, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Pos, b.Pos)
	})

	if k < len(all) {
		all = all[:k]
	}
	return all, nil
}

// Reset discards all vectors and bumps the generation counter.
func (f *Flat) Reset() {
	f.mu.Lock()
	f.data = nil
	f.n = 0
	f.gen++
	f.mu.Unlock()
}

// Size returns the number of stored vectors.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.n
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Generation returns how many times the index has been reset. Positions
// handed out under an older generation no longer refer to the same vectors.
func (f *Flat) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gen
}

// Vector returns a copy of the vector stored at pos.
func (f *Flat) Vector(pos int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if pos < 0 || pos >= f.n {
		return nil, false
	}
	return slices.Clone(f.data[pos*f.dim : (pos+1)*f.dim]), true
}

// SquaredL2 returns the squared Euclidean distance between a and b.
// The sum is accumulated in float64. Panics if lengths differ.
func SquaredL2(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vecstore: SquaredL2 length mismatch")
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}
