package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/echospot/echospot/internal/tracing"
)

const (
	// ProviderOpenAI names the OpenAI provider in spans and metrics.
	ProviderOpenAI = "openai"

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible servers
	Timeout time.Duration
}

// OpenAIProvider translates with chat completions.
type OpenAIProvider struct {
	client oai.Client
	model  string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &OpenAIProvider{client: oai.NewClient(opts...), model: model}, nil
}

func systemPrompt(sourceLocale, targetLocale string) string {
	return fmt.Sprintf(
		"You translate spoken captions from %s to %s. Reply with the translation only, without quotes or commentary.",
		sourceLocale, targetLocale)
}

// Translate implements Provider.
func (p *OpenAIProvider) Translate(ctx context.Context, text, sourceLocale, targetLocale string) (out string, err error) {
	ctx, endSpan := tracing.StartProviderSpan(ctx, ProviderOpenAI, "translate")
	defer func() { endSpan(err) }()

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(sourceLocale, targetLocale)),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(0.0),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	out = strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" && strings.TrimSpace(text) != "" {
		return "", errors.New("openai returned an empty translation")
	}
	return out, nil
}
