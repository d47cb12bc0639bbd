package embedder

import (
	"fmt"
	"log/slog"

	"github.com/brbranch/vecstore/internal/model"
)

// NewEmbedder はEmbedderConfigから次元dimのEmbedderを作成
// RateLimitが正ならレート制限付きでラップする
func NewEmbedder(cfg *model.EmbedderConfig, dim int, envAPIKey string, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		emb Embedder
		err error
	)
	switch cfg.Provider {
	case model.ProviderOpenAI:
		// APIKey解決: cfg.APIKey > envAPIKey
		apiKey := envAPIKey
		if cfg.APIKey != nil && *cfg.APIKey != "" {
			apiKey = *cfg.APIKey
		}

		opts := []OpenAIOption{WithLogger(logger)}
		if cfg.BaseURL != nil && *cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(*cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		emb, err = NewOpenAIEmbedder(apiKey, dim, opts...)

	case model.ProviderOllama:
		baseURL := DefaultOllamaBaseURL
		if cfg.BaseURL != nil && *cfg.BaseURL != "" {
			baseURL = *cfg.BaseURL
		}
		emb, err = NewOllamaEmbedder(baseURL, cfg.Model, dim, WithLogger(logger))

	case model.ProviderLocal, "":
		emb, err = NewLocalEmbedder(dim)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRateLimited(emb, cfg.RateLimit), nil
}
