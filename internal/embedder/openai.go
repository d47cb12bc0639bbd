package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/brbranch/vecstore/internal/codec"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = string(openai.SmallEmbedding3)
)

// OpenAIEmbedder はOpenAI互換のembeddings APIを使用するEmbedder実装
type OpenAIEmbedder struct {
	client     *openai.Client
	provider   string
	baseURL    string
	apiKey     string
	model      string
	dim        int
	sendDim    bool
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption はOpenAIEmbedderのオプション
type OpenAIOption func(*OpenAIEmbedder)

// WithBaseURL はベースURLを設定
func WithBaseURL(url string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel はモデルを設定
func WithModel(model string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.model = model
	}
}

// WithHTTPClient はHTTPクライアントを設定
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.httpClient = client
	}
}

// WithLogger はロガーを設定
func WithLogger(logger *slog.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.logger = logger
	}
}

// withProvider はエラー報告用のプロバイダ名を設定
func withProvider(name string) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		e.provider = name
	}
}

// NewOpenAIEmbedder は次元dimのベクトルを返すOpenAIEmbedderを作成
func NewOpenAIEmbedder(apiKey string, dim int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDim, dim)
	}

	e := &OpenAIEmbedder{
		provider: "openai",
		baseURL:  DefaultOpenAIBaseURL,
		apiKey:   apiKey,
		model:    DefaultOpenAIModel,
		dim:      dim,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	// text-embedding-3系はdimensionsで出力次元を縮められる
	e.sendDim = e.provider == "openai" && strings.HasPrefix(e.model, "text-embedding-3")

	config := openai.DefaultConfig(e.apiKey)
	config.BaseURL = e.baseURL
	if e.httpClient != nil {
		config.HTTPClient = e.httpClient
	}
	e.client = openai.NewClientWithConfig(config)
	return e, nil
}

// Embed はテキストを埋め込みベクトルに変換
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, e.fail(ErrEmptyInput)
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.sendDim {
		req.Dimensions = e.dim
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		// context.Canceledやcontext.DeadlineExceededはそのまま返す
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("embedding request failed", "provider", e.provider, "model", e.model, "status", statusOf(err), "error", err)
		return nil, e.fail(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, e.fail(ErrEmptyEmbedding)
	}

	vec := toFloat64(resp.Data[0].Embedding)
	if len(vec) != e.dim {
		return nil, e.fail(fmt.Errorf("%w: model returned %d, configured %d", codec.ErrDimensionMismatch, len(vec), e.dim))
	}
	return vec, nil
}

func (e *OpenAIEmbedder) fail(err error) error {
	return &EmbeddingError{Provider: e.provider, Model: e.model, Err: err}
}

// statusOf はAPIエラーのHTTPステータスを返す（不明なら0）
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Dimension は次元を返す
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelName はモデル名を返す
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
