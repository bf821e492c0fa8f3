// Package embed provides a text embedding interface and its implementations.
//
// An Embedder maps a batch of texts to fixed-dimension float32 vectors, one
// per input, in input order. Embedders are stateless across calls and safe
// for concurrent use, so a single instance is meant to be shared by every
// session in a process and closed once at shutdown.
//
// # Implementations
//
//   - [Hash]: local feature-hashing embedder, no network, deterministic
//   - [OpenAI]: OpenAI text-embedding-3-small / text-embedding-3-large
//   - [DashScope]: Aliyun DashScope text-embedding-v4 (and v1/v2/v3)
//
// The remote implementations use the OpenAI-compatible HTTP API.
//
// # Quick Start
//
//	e := embed.NewHash(embed.WithDimension(384))
//	defer e.Close()
//	vecs, err := e.Embed(ctx, []string{"hello", "world"})
package embed

import (
	"context"
	"errors"
	"fmt"
)

// Embedder converts texts into dense float32 vectors.
type Embedder interface {
	// Embed returns one vector per text, in the same order. An empty input
	// returns an empty result and no error.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int

	// Close releases the embedder. Embed fails with ErrClosed afterwards.
	Close() error
}

// Common errors.
var (
	// ErrClosed is returned by Embed after Close.
	ErrClosed = errors.New("embed: closed")

	// ErrUnknownProvider is returned by New for an unrecognized provider name.
	ErrUnknownProvider = errors.New("embed: unknown provider")
)

// Provider names accepted by [New].
const (
	ProviderHash      = "hash"
	ProviderOpenAI    = "openai"
	ProviderDashScope = "dashscope"
)

// New builds an embedder by provider name. apiKey is ignored by the
// hash provider.
func New(provider, apiKey string, opts ...Option) (Embedder, error) {
	switch provider {
	case "", ProviderHash:
		return NewHash(opts...), nil
	case ProviderOpenAI:
		return NewOpenAI(apiKey, opts...), nil
	case ProviderDashScope:
		return NewDashScope(apiKey, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
