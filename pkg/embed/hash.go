package embed

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	hashDefaultDim = 384
	hashModel      = "feature-hash-v1"

	wordWeight    = 1.0
	trigramWeight = 0.5
)

// Hash is a local [Embedder] based on the hashing trick. Each lower-cased
// word and each character trigram of a word is hashed into one of Dim
// buckets with a hash-derived sign; the resulting vector is L2-normalized.
//
// It needs no model download or network access and always produces the same
// vector for the same text, which makes it the default for offline use and
// tests. Texts sharing vocabulary land close together; it has no notion of
// synonyms.
type Hash struct {
	dim    int
	closed atomic.Bool
}

var _ Embedder = (*Hash)(nil)

// NewHash creates a hashing embedder. Only WithDimension is honoured; the
// default dimension is 384.
func NewHash(opts ...Option) *Hash {
	cfg := config{dim: hashDefaultDim}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.dim <= 0 {
		cfg.dim = hashDefaultDim
	}
	return &Hash{dim: cfg.dim}
}

// Embed returns one vector per text. Texts without any letters or digits map
// to the zero vector.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

// Dimension returns the vector dimensionality.
func (h *Hash) Dimension() int { return h.dim }

// Model returns a stable identifier for the hashing scheme.
func (h *Hash) Model() string { return hashModel }

// Close marks the embedder closed.
func (h *Hash) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *Hash) vector(text string) []float32 {
	acc := make([]float64, h.dim)
	for _, word := range tokenize(text) {
		h.add(acc, "w:"+word, wordWeight)
		padded := []rune("^" + word + "$")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(acc, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, h.dim)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (h *Hash) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

// tokenize splits text into lower-cased runs of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
