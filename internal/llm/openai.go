package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = openai.GPT4oMini
	DefaultTemperature = 0.2
)

// OpenAIChat はOpenAI互換のchat completions APIを使うChatModel
type OpenAIChat struct {
	client      *openai.Client
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option はOpenAIChatのオプション
type Option func(*OpenAIChat)

func WithBaseURL(url string) Option {
	return func(c *OpenAIChat) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithModel(model string) Option {
	return func(c *OpenAIChat) { c.model = model }
}

// WithTemperature は0〜2の範囲で設定する（範囲外は無視）
func WithTemperature(t float32) Option {
	return func(c *OpenAIChat) {
		if t >= 0 && t <= 2 {
			c.temperature = t
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *OpenAIChat) { c.httpClient = client }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *OpenAIChat) { c.logger = logger }
}

// NewOpenAIChat はOpenAIChatを作成する
func NewOpenAIChat(apiKey string, opts ...Option) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	c := &OpenAIChat{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = c.baseURL
	if c.httpClient != nil {
		config.HTTPClient = c.httpClient
	}
	c.client = openai.NewClientWithConfig(config)
	return c, nil
}

// Complete はプロンプトを1件のuserメッセージとして送り、最初の回答を返す
func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &CompletionError{Model: c.model, Err: ErrEmptyPrompt}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("chat completion failed", "model", c.model, "error", err)
		return "", &CompletionError{Model: c.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Model: c.model, Err: ErrEmptyCompletion}
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", &CompletionError{Model: c.model, Err: ErrEmptyCompletion}
	}
	return answer, nil
}

// ModelName はモデル名を返す
func (c *OpenAIChat) ModelName() string {
	return c.model
}
