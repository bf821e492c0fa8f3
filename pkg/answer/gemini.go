package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haivivi/retrieva/go/pkg/session"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-1.5-flash-001"
	defaultAttempts    = 5
	defaultBackoff     = 3 * time.Second
)

// Gemini answers with the Gemini API.
type Gemini struct {
	client   *genai.Client
	model    string
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini generator from cfg.GeminiAPIKey.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.GeminiBaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("answer: genai client: %w", err)
	}

	g := &Gemini{
		client:   client,
		model:    cfg.GeminiModel,
		attempts: cfg.MaxAttempts,
		backoff:  cfg.Backoff,
		logger:   logger(cfg),
	}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	if g.attempts <= 0 {
		g.attempts = defaultAttempts
	}
	if g.backoff <= 0 {
		g.backoff = defaultBackoff
	}
	return g, nil
}

// Answer generates an answer. Quota errors (HTTP 429) are retried with
// exponential backoff; other errors are returned at once.
func (g *Gemini) Answer(ctx context.Context, question string, hits []session.Hit) (string, error) {
	if len(hits) == 0 {
		return NoInformation, nil
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: Prompt(question, hits)}},
	}}

	for attempt := 1; ; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
		if err == nil {
			return geminiText(resp)
		}

		var apiErr genai.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
			return "", fmt.Errorf("answer: gemini: %w", err)
		}
		if attempt == g.attempts {
			return "", fmt.Errorf("answer: gemini quota exceeded after %d attempts: %w", attempt, err)
		}

		wait := g.backoff << (attempt - 1)
		g.logger.Warn("answer: gemini quota exceeded, retrying",
			"attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("answer: gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
