package answer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/retrieva/go/pkg/session"
)

var testHits = []session.Hit{
	{Text: "The warranty lasts two years.", Source: "manual.pdf", Distance: 0.1},
	{Text: "Returns are accepted within 30 days.", Source: "manual.pdf", Distance: 0.4},
}

func TestPrompt(t *testing.T) {
	p := Prompt("How long is the warranty?", testHits)
	want := "The warranty lasts two years.\n\nReturns are accepted within 30 days."
	if !strings.Contains(p, want) {
		t.Errorf("prompt does not contain joined context:\n%s", p)
	}
	if !strings.Contains(p, "Question: How long is the warranty?") {
		t.Errorf("prompt does not contain question:\n%s", p)
	}
	if strings.Contains(p, "{context}") || strings.Contains(p, "{question}") {
		t.Errorf("unreplaced placeholder:\n%s", p)
	}
}

const geminiOK = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Two "},{"text":"years."}]}}]}`

const geminiQuota = `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`

// newGeminiServer fails the first `fail` calls with status and then answers.
func newGeminiServer(t *testing.T, fail int32, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "The warranty lasts two years.") {
			t.Errorf("request lacks context: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		if n <= fail {
			w.WriteHeader(status)
			if status == http.StatusTooManyRequests {
				io.WriteString(w, geminiQuota)
			} else {
				io.WriteString(w, `{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`)
			}
			return
		}
		io.WriteString(w, geminiOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(t *testing.T, url string) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), Config{
		GeminiAPIKey:  "test-key",
		GeminiModel:   "test-model",
		GeminiBaseURL: url + "/",
		Backoff:       time.Millisecond,
		MaxAttempts:   3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGeminiAnswer(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 0, 0, &calls)
	g := newTestGemini(t, srv.URL)

	got, err := g.Answer(context.Background(), "How long is the warranty?", testHits)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Two years." {
		t.Errorf("answer = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGeminiRetriesQuota(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 2, http.StatusTooManyRequests, &calls)
	g := newTestGemini(t, srv.URL)

	got, err := g.Answer(context.Background(), "q", testHits)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Two years." || calls.Load() != 3 {
		t.Errorf("answer = %q after %d calls", got, calls.Load())
	}
}

func TestGeminiQuotaExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 100, http.StatusTooManyRequests, &calls)
	g := newTestGemini(t, srv.URL)

	_, err := g.Answer(context.Background(), "q", testHits)
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGeminiOtherErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 100, http.StatusBadRequest, &calls)
	g := newTestGemini(t, srv.URL)

	if _, err := g.Answer(context.Background(), "q", testHits); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGeminiRetryHonoursContext(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 100, http.StatusTooManyRequests, &calls)
	g := newTestGemini(t, srv.URL)
	g.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Answer(ctx, "q", testHits); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestNoHitsSkipsModel(t *testing.T) {
	var calls atomic.Int32
	srv := newGeminiServer(t, 0, 0, &calls)
	g := newTestGemini(t, srv.URL)
	o := NewOpenAI(Config{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL + "/"})

	for _, gen := range []Generator{g, o} {
		got, err := gen.Answer(context.Background(), "anything", nil)
		if err != nil || got != NoInformation {
			t.Errorf("%T: Answer = %q, %v", gen, got, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("model called %d times", calls.Load())
	}
}

func TestOpenAIAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model       string   `json:"model"`
			Temperature *float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-3.5-turbo" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("temperature = %v", req.Temperature)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != systemPrompt ||
			req.Messages[1].Role != "user" || !strings.Contains(req.Messages[1].Content, "30 days") {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"30 days."}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(Config{OpenAIAPIKey: "k", OpenAIBaseURL: srv.URL + "/"})
	got, err := o.Answer(context.Background(), "What is the return window?", testHits)
	if err != nil {
		t.Fatal(err)
	}
	if got != "30 days." {
		t.Errorf("answer = %q", got)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	g, err := New(ctx, Config{GeminiAPIKey: "g", OpenAIAPIKey: "o"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*Gemini); !ok {
		t.Errorf("with both keys got %T, want *Gemini", g)
	}

	g, err = New(ctx, Config{OpenAIAPIKey: "o"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*OpenAI); !ok {
		t.Errorf("with openai key got %T, want *OpenAI", g)
	}

	if _, err := New(ctx, Config{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("no keys: err = %v, want ErrNoProvider", err)
	}
}
