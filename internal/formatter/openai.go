package formatter

import (
	"context"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/httpx"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.1-8b-instant"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultTimeout       = 10 * time.Second
)

type Config struct {
	Backend string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint. Groq is
// the default deployment.
type OpenAI struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	http    *httpx.Client
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, "formatter api key is required")
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	baseURL, modelName := DefaultGroqBaseURL, DefaultGroqModel
	if name == BackendOpenAI {
		baseURL, modelName = defaultOpenAIBaseURL, defaultOpenAIModel
	} else {
		name = BackendGroq
	}
	if v := strings.TrimSpace(cfg.BaseURL); v != "" {
		baseURL = v
	}
	if v := strings.TrimSpace(cfg.Model); v != "" {
		modelName = v
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		http:    httpx.New(timeout, 0),
	}, nil
}

func (c *OpenAI) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Format(ctx context.Context, req Request) (Reply, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserPrompt(req)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.2,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp chatResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/chat/completions", body, headers, &resp); err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, clierr.New(clierr.CodePayload, "formatter response has no choices")
	}
	return ParseReply(resp.Choices[0].Message.Content)
}
