package embed

import "context"

// OpenAI embedding models.
const (
	// ModelOpenAI3Small is the small embedding model (1536 dims, customizable).
	ModelOpenAI3Small = "text-embedding-3-small"

	// ModelOpenAI3Large is the large embedding model (3072 dims, customizable).
	ModelOpenAI3Large = "text-embedding-3-large"
)

const (
	openAIMaxBatch     = 2048
	openAIDefaultDim   = 1536
	openAIDefaultModel = ModelOpenAI3Small
)

// OpenAI implements [Embedder] using the OpenAI embeddings API.
//
// Any OpenAI-compatible provider works by setting WithBaseURL.
type OpenAI struct {
	r *remote
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := buildConfig(config{
		model:    openAIDefaultModel,
		dim:      openAIDefaultDim,
		maxBatch: openAIMaxBatch,
	}, opts)
	return &OpenAI{r: newRemote(apiKey, cfg)}
}

// Embed returns embeddings for texts. Batches larger than 2048 are split
// into multiple API calls.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return o.r.embed(ctx, texts)
}

// Dimension returns the configured vector dimensionality.
func (o *OpenAI) Dimension() int { return o.r.dim }

// Model returns the model identifier.
func (o *OpenAI) Model() string { return o.r.model }

// Close marks the embedder closed.
func (o *OpenAI) Close() error { return o.r.close() }
