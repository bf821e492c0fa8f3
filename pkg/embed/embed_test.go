package embed_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/haivivi/retrieva/go/pkg/embed"
)

// fakeEmbeddingResponse builds a minimal OpenAI-compatible embedding response.
// Item i of the batch gets the vector (i+1)*0.01*(j+1) for j in [0, dim).
func fakeEmbeddingResponse(dim int, n int) []byte {
	type embItem struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	type resp struct {
		Object string    `json:"object"`
		Model  string    `json:"model"`
		Data   []embItem `json:"data"`
	}

	data := make([]embItem, n)
	// Reverse order: clients must place items by index, not by position.
	for i := range n {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = float64(i+1) * 0.01 * float64(j+1)
		}
		data[n-1-i] = embItem{Object: "embedding", Index: i, Embedding: vec}
	}
	b, _ := json.Marshal(resp{Object: "list", Model: "test-model", Data: data})
	return b
}

// newFakeServer creates a test HTTP server that returns fake embeddings and
// counts requests.
func newFakeServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(fakeEmbeddingResponse(dim, len(req.Input)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Embed(t *testing.T) {
	const dim = 4
	srv := newFakeServer(t, dim, nil)

	e := embed.NewOpenAI("test-key",
		embed.WithBaseURL(srv.URL),
		embed.WithDimension(dim),
	)
	if e.Dimension() != dim {
		t.Fatalf("Dimension() = %d, want %d", e.Dimension(), dim)
	}

	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != dim {
			t.Fatalf("len(vecs[%d]) = %d, want %d", i, len(v), dim)
		}
		want := float32(float64(i+1) * 0.01)
		if math.Abs(float64(v[0]-want)) > 1e-6 {
			t.Errorf("vecs[%d][0] = %v, want %v (order must follow input)", i, v[0], want)
		}
	}
}

func TestDashScope_SplitsBatches(t *testing.T) {
	const dim = 4
	var calls atomic.Int32
	srv := newFakeServer(t, dim, &calls)

	e := embed.NewDashScope("test-key",
		embed.WithBaseURL(srv.URL),
		embed.WithDimension(dim),
	)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 25 {
		t.Fatalf("len(vecs) = %d, want 25", len(vecs))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("API calls = %d, want 3", got)
	}
}

func TestRemote_DimensionMismatch(t *testing.T) {
	srv := newFakeServer(t, 3, nil)
	e := embed.NewOpenAI("test-key", embed.WithBaseURL(srv.URL), embed.WithDimension(8))
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error for wrong-sized embedding")
	}
}

func TestRemote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	e := embed.NewOpenAI("test-key", embed.WithBaseURL(srv.URL), embed.WithDimension(4))
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	ctx := context.Background()
	embedders := map[string]embed.Embedder{
		"hash":      embed.NewHash(),
		"openai":    embed.NewOpenAI("k", embed.WithBaseURL("http://127.0.0.1:1")),
		"dashscope": embed.NewDashScope("k", embed.WithBaseURL("http://127.0.0.1:1")),
	}
	for name, e := range embedders {
		t.Run(name, func(t *testing.T) {
			vecs, err := e.Embed(ctx, nil)
			if err != nil {
				t.Fatalf("Embed(nil): %v", err)
			}
			if len(vecs) != 0 {
				t.Errorf("len = %d, want 0", len(vecs))
			}
		})
	}
}

func TestEmbed_Closed(t *testing.T) {
	embedders := map[string]embed.Embedder{
		"hash":   embed.NewHash(),
		"openai": embed.NewOpenAI("k"),
	}
	for name, e := range embedders {
		t.Run(name, func(t *testing.T) {
			if err := e.Close(); err != nil {
				t.Fatal(err)
			}
			if _, err := e.Embed(context.Background(), []string{"x"}); !errors.Is(err, embed.ErrClosed) {
				t.Errorf("err = %v, want ErrClosed", err)
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	ctx := context.Background()
	a := embed.NewHash()
	b := embed.NewHash()

	va, err := a.Embed(ctx, []string{"alpha text", "beta text"})
	if err != nil {
		t.Fatal(err)
	}
	vb, err := b.Embed(ctx, []string{"alpha text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(va[0]) != 384 {
		t.Fatalf("dim = %d, want 384", len(va[0]))
	}
	for i := range va[0] {
		if va[0][i] != vb[0][i] {
			t.Fatalf("component %d differs across instances", i)
		}
	}
}

func TestHash_Normalized(t *testing.T) {
	e := embed.NewHash(embed.WithDimension(64))
	vecs, err := e.Embed(context.Background(), []string{"The quick brown fox", "!!!"})
	if err != nil {
		t.Fatal(err)
	}

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm² = %v, want 1", norm)
	}
	for _, v := range vecs[1] {
		if v != 0 {
			t.Fatal("punctuation-only text should map to the zero vector")
		}
	}
}

func TestHash_SimilarTextsAreCloser(t *testing.T) {
	e := embed.NewHash()
	vecs, err := e.Embed(context.Background(), []string{
		"the cat sat on the mat",
		"a cat sat on a mat",
		"quarterly revenue grew by twelve percent",
	})
	if err != nil {
		t.Fatal(err)
	}
	dist := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			d := float64(a[i] - b[i])
			s += d * d
		}
		return s
	}
	if near, far := dist(vecs[0], vecs[1]), dist(vecs[0], vecs[2]); near >= far {
		t.Errorf("related distance %v should be below unrelated %v", near, far)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		wantDim  int
		wantErr  bool
	}{
		{"", 384, false},
		{"hash", 384, false},
		{"openai", 1536, false},
		{"dashscope", 1024, false},
		{"cohere", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			e, err := embed.New(tt.provider, "k")
			if tt.wantErr {
				if !errors.Is(err, embed.ErrUnknownProvider) {
					t.Fatalf("err = %v, want ErrUnknownProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if e.Dimension() != tt.wantDim {
				t.Errorf("Dimension = %d, want %d", e.Dimension(), tt.wantDim)
			}
		})
	}
}

func TestEmbedder_Interface(t *testing.T) {
	var _ embed.Embedder = (*embed.Hash)(nil)
	var _ embed.Embedder = (*embed.OpenAI)(nil)
	var _ embed.Embedder = (*embed.DashScope)(nil)
}
