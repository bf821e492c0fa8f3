package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/haivivi/retrieva/go/pkg/session"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel = openai.ChatModelGPT3_5Turbo
	systemPrompt       = "You are a helpful assistant."
)

// OpenAI answers with the OpenAI chat completions API, or any compatible
// endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI generator from cfg.OpenAIAPIKey.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := cfg.OpenAIModel
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: &client, model: model}
}

// Answer generates an answer at temperature 0.
func (o *OpenAI) Answer(ctx context.Context, question string, hits []session.Hit) (string, error) {
	if len(hits) == 0 {
		return NoInformation, nil
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(question, hits)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("answer: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("answer: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
