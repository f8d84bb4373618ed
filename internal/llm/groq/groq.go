package groq

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"fin-query-agent/internal/llm"
	"fin-query-agent/internal/logger"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client completes prompts against Groq's OpenAI-compatible endpoint.
type Client struct {
	chat  model.ChatModel
	model string
}

var _ llm.Client = (*Client)(nil)

// New builds a client for one API key. Construction makes no network call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: empty api key", llm.ErrAuth)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	mc := &openai.ChatModelConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}
	temp := cfg.Temperature
	mc.Temperature = &temp
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}

	chat, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("groq chat model init: %w", err)
	}
	return &Client{chat: chat, model: cfg.Model}, nil
}

// NewWithModel wraps an existing chat model, used by tests.
func NewWithModel(chat model.ChatModel, name string) *Client {
	return &Client{chat: chat, model: name}
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: user},
	}

	start := time.Now()
	resp, err := c.chat.Generate(ctx, messages)
	if err != nil {
		return "", llm.Classify(err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil message", llm.ErrMalformedResponse)
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", llm.ErrEmptyCompletion
	}

	fields := []any{"model", c.model, "chars", len(out), "duration_ms", time.Since(start).Milliseconds()}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		fields = append(fields,
			"prompt_tokens", resp.ResponseMeta.Usage.PromptTokens,
			"completion_tokens", resp.ResponseMeta.Usage.CompletionTokens)
	}
	logger.Debug(ctx, "Groq completion received", fields...)

	return out, nil
}
