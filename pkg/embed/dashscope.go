package embed

import "context"

// DashScope embedding models.
const (
	// ModelDashScopeV4 supports 100+ languages, dimensions 64–2048, default 1024.
	ModelDashScopeV4 = "text-embedding-v4"

	// ModelDashScopeV3 supports 50+ languages, dimensions 64–1024.
	ModelDashScopeV3 = "text-embedding-v3"
)

const (
	dashScopeBaseURL      = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	dashScopeMaxBatch     = 10 // v3/v4 max batch size
	dashScopeDefaultDim   = 1024
	dashScopeDefaultModel = ModelDashScopeV4
)

// DashScope implements [Embedder] using Aliyun DashScope's OpenAI-compatible
// embedding API.
type DashScope struct {
	r *remote
}

var _ Embedder = (*DashScope)(nil)

// NewDashScope creates a DashScope embedder.
func NewDashScope(apiKey string, opts ...Option) *DashScope {
	cfg := buildConfig(config{
		model:    dashScopeDefaultModel,
		dim:      dashScopeDefaultDim,
		baseURL:  dashScopeBaseURL,
		maxBatch: dashScopeMaxBatch,
	}, opts)
	return &DashScope{r: newRemote(apiKey, cfg)}
}

// Embed returns embeddings for texts, ten per API call.
func (d *DashScope) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return d.r.embed(ctx, texts)
}

// Dimension returns the configured vector dimensionality.
func (d *DashScope) Dimension() int { return d.r.dim }

// Model returns the model identifier.
func (d *DashScope) Model() string { return d.r.model }

// Close marks the embedder closed.
func (d *DashScope) Close() error { return d.r.close() }
