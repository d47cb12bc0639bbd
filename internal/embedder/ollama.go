package embedder

import "strings"

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "all-minilm"
)

// ollamaAPIKey はOllamaが無視するAPIキー（クライアントの必須項目を埋める）
const ollamaAPIKey = "ollama"

// NewOllamaEmbedder はOllamaのOpenAI互換エンドポイント（/v1）を使うEmbedderを作成
func NewOllamaEmbedder(baseURL, model string, dim int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	opts = append([]OpenAIOption{withProvider("ollama"), WithBaseURL(baseURL), WithModel(model)}, opts...)
	return NewOpenAIEmbedder(ollamaAPIKey, dim, opts...)
}
