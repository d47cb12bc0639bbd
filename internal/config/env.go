package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/brbranch/vecstore/internal/model"
)

// 環境変数名の定数
const (
	EnvPrefix       = "VECSTORE"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// envShortcuts はセクションを介さない短い環境変数
// VECSTORE_DB_PATH, VECSTORE_QDRANT_URL, VECSTORE_TRANSPORT
type envShortcuts struct {
	DBPath    string `split_words:"true"`
	QdrantURL string `split_words:"true"`
	Transport string
}

// ApplyEnvOverrides は環境変数による設定上書きを適用する
// VECSTORE_<SECTION>_<FIELD>（例: VECSTORE_STORE_DIM, VECSTORE_LOG_LEVEL）で各項目を上書きできる
// config を直接変更する
func ApplyEnvOverrides(config *model.Config) error {
	sections := []struct {
		name   string
		target any
	}{
		{"EMBEDDER", &config.Embedder},
		{"STORE", &config.Store},
		{"SERVER", &config.Server},
		{"KAFKA", &config.Kafka},
		{"ANSWER", &config.Answer},
		{"LOG", &config.Log},
		{"PATHS", &config.Paths},
	}
	for _, s := range sections {
		prefix := EnvPrefix + "_" + s.name
		if err := envconfig.Process(prefix, s.target); err != nil {
			return fmt.Errorf("failed to read %s_* environment: %w", prefix, err)
		}
	}

	var short envShortcuts
	if err := envconfig.Process(EnvPrefix, &short); err != nil {
		return fmt.Errorf("failed to read %s_* environment: %w", EnvPrefix, err)
	}
	if short.DBPath != "" {
		config.Store.Path = &short.DBPath
	}
	if short.QdrantURL != "" {
		config.Store.URL = &short.QdrantURL
	}
	if short.Transport != "" {
		config.TransportDefaults.DefaultTransport = short.Transport
	}

	// OpenAI APIキーの環境変数上書き
	// 回答生成のキーは未設定のときだけ埋める
	if apiKey := os.Getenv(EnvOpenAIAPIKey); apiKey != "" {
		config.Embedder.APIKey = &apiKey
		if config.Answer.APIKey == nil || *config.Answer.APIKey == "" {
			config.Answer.APIKey = &apiKey
		}
	}
	return nil
}

// GetOpenAIAPIKey は環境変数からOpenAI APIキーを取得する
// 設定ファイルの値より環境変数を優先
func GetOpenAIAPIKey(config *model.Config) string {
	if apiKey := os.Getenv(EnvOpenAIAPIKey); apiKey != "" {
		return apiKey
	}
	if config.Embedder.APIKey != nil {
		return *config.Embedder.APIKey
	}
	return ""
}
