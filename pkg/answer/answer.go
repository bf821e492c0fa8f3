// Package answer generates grounded answers from retrieved chunks with a
// hosted language model.
//
// [New] picks a provider from the configured keys: [Gemini] when a Gemini key
// is set, otherwise [OpenAI]. Both build the same prompt (see [Prompt]) and
// answer [NoInformation] without calling the model when nothing was
// retrieved.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haivivi/retrieva/go/pkg/session"
)

// NoInformation is the answer given when retrieval found nothing.
const NoInformation = "Information not available in the document."

// ErrNoProvider is returned by [New] when no API key is configured.
var ErrNoProvider = errors.New("answer: no API key found. Please set GEMINI_API_KEY or OPENAI_API_KEY")

// Generator answers a question from retrieved context.
type Generator interface {
	Answer(ctx context.Context, question string, hits []session.Hit) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	GeminiAPIKey  string
	GeminiModel   string // default "gemini-1.5-flash-001"
	GeminiBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string // default "gpt-3.5-turbo"
	OpenAIBaseURL string

	// MaxAttempts bounds Gemini calls per answer when the API reports
	// quota exhaustion (HTTP 429). Default 5.
	MaxAttempts int

	// Backoff is the wait after the first 429; it doubles on each retry.
	// Default 3s.
	Backoff time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New returns the generator for the first configured provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch {
	case cfg.GeminiAPIKey != "":
		return NewGemini(ctx, cfg)
	case cfg.OpenAIAPIKey != "":
		return NewOpenAI(cfg), nil
	default:
		return nil, ErrNoProvider
	}
}

const promptTemplate = `You are an assistant answering questions about a document.
Answer using only the context below. If the context does not contain the
answer, reply exactly: "` + NoInformation + `"

Context:
{context}

Question: {question}

Answer:`

// Prompt builds the model prompt: the hit texts, separated by blank lines,
// followed by the question.
func Prompt(question string, hits []session.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.NewReplacer(
		"{context}", strings.Join(texts, "\n\n"),
		"{question}", question,
	).Replace(promptTemplate)
}

func logger(cfg Config) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}
