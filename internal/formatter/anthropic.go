package formatter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicMaxTokens    = 512
)

// Anthropic formats replies with the Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(cfg Config) (*Anthropic, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, "formatter api key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if v := strings.TrimSpace(cfg.BaseURL); v != "" {
		opts = append(opts, option.WithBaseURL(v))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: modelName}, nil
}

func (c *Anthropic) Name() string { return BackendAnthropic }

func (c *Anthropic) Format(ctx context.Context, req Request) (Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(req))),
		},
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Temperature: anthropic.Float(0.2),
	}
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, clierr.Wrap(clierr.CodeUnavailable, "anthropic formatter request", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseReply(text.String())
}

// New returns the configured backend, or nil when formatting is disabled or
// no key is set. A nil Formatter means template replies only.
func New(cfg Config) (Formatter, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == BackendNone || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	switch backend {
	case "", BackendGroq, BackendOpenAI:
		f, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendAnthropic:
		f, err := NewAnthropic(cfg)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, clierr.New(clierr.CodeUsage, "unsupported formatter backend: "+cfg.Backend)
	}
}
