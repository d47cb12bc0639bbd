package config

import (
	"testing"
	"time"

	"github.com/brbranch/vecstore/internal/model"
)

func TestApplyEnvOverrides_Sections(t *testing.T) {
	t.Setenv("VECSTORE_STORE_DIM", "768")
	t.Setenv("VECSTORE_STORE_LIST_COUNT", "32")
	t.Setenv("VECSTORE_STORE_METRIC", "l2")
	t.Setenv("VECSTORE_STORE_LEASE_TIMEOUT", "250ms")
	t.Setenv("VECSTORE_EMBEDDER_PROVIDER", "ollama")
	t.Setenv("VECSTORE_EMBEDDER_BASE_URL", "http://localhost:11434")
	t.Setenv("VECSTORE_SERVER_CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("VECSTORE_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("VECSTORE_LOG_FORMAT", "json")
	t.Setenv("VECSTORE_ANSWER_MODEL", "gpt-4o")
	t.Setenv("VECSTORE_ANSWER_CONTEXT_RUNES", "200")

	cfg := DefaultConfig("/tmp/config.json", "/tmp/data")
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}

	if cfg.Store.Dim != 768 || cfg.Store.ListCount != 32 || cfg.Store.Metric != model.MetricL2 {
		t.Errorf("store overrides not applied: %+v", cfg.Store)
	}
	if cfg.Store.LeaseTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms lease timeout, got %s", cfg.Store.LeaseTimeout)
	}
	if cfg.Embedder.Provider != model.ProviderOllama || cfg.Embedder.BaseURL == nil || *cfg.Embedder.BaseURL != "http://localhost:11434" {
		t.Errorf("embedder overrides not applied: %+v", cfg.Embedder)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("expected 2 cors origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Kafka.Brokers != "localhost:9092" || cfg.Log.Format != "json" {
		t.Errorf("unexpected kafka/log config %+v %+v", cfg.Kafka, cfg.Log)
	}
	if cfg.Answer.Model != "gpt-4o" || cfg.Answer.ContextRunes != 200 || cfg.Answer.Temperature != DefaultAnswerTemperature {
		t.Errorf("answer overrides not applied: %+v", cfg.Answer)
	}
	// 上書きしていない項目はそのまま
	if cfg.Store.PoolSize != model.DefaultPoolSize || cfg.Kafka.Topic != DefaultKafkaTopic {
		t.Errorf("untouched fields changed: %+v", cfg.Store)
	}
}

func TestApplyEnvOverrides_Shortcuts(t *testing.T) {
	t.Setenv("VECSTORE_DB_PATH", "/var/lib/vecstore/designs.db")
	t.Setenv("VECSTORE_QDRANT_URL", "localhost:6334")
	t.Setenv("VECSTORE_TRANSPORT", "http")
	t.Setenv(EnvOpenAIAPIKey, "sk-env")

	cfg := DefaultConfig("/tmp/config.json", "/tmp/data")
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}

	if *cfg.Store.Path != "/var/lib/vecstore/designs.db" {
		t.Errorf("unexpected db path %s", *cfg.Store.Path)
	}
	if cfg.Store.URL == nil || *cfg.Store.URL != "localhost:6334" {
		t.Errorf("unexpected qdrant url %v", cfg.Store.URL)
	}
	if cfg.TransportDefaults.DefaultTransport != model.TransportHTTP {
		t.Errorf("unexpected transport %s", cfg.TransportDefaults.DefaultTransport)
	}
	if cfg.Embedder.APIKey == nil || *cfg.Embedder.APIKey != "sk-env" {
		t.Errorf("expected api key from env, got %v", cfg.Embedder.APIKey)
	}
	if cfg.Answer.APIKey == nil || *cfg.Answer.APIKey != "sk-env" {
		t.Errorf("answer key should fall back to the openai key, got %v", cfg.Answer.APIKey)
	}
}

func TestApplyEnvOverrides_AnswerKeyKept(t *testing.T) {
	t.Setenv("VECSTORE_ANSWER_API_KEY", "sk-answer")
	t.Setenv(EnvOpenAIAPIKey, "sk-env")

	cfg := DefaultConfig("/tmp/config.json", "/tmp/data")
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	if cfg.Answer.APIKey == nil || *cfg.Answer.APIKey != "sk-answer" {
		t.Errorf("explicit answer key should win, got %v", cfg.Answer.APIKey)
	}
	if *cfg.Embedder.APIKey != "sk-env" {
		t.Errorf("unexpected embedder key %s", *cfg.Embedder.APIKey)
	}
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("VECSTORE_STORE_DIM", "wide")

	cfg := DefaultConfig("/tmp/config.json", "/tmp/data")
	if err := ApplyEnvOverrides(cfg); err == nil {
		t.Error("expected error for non-numeric dim")
	}
}

func TestGetOpenAIAPIKey(t *testing.T) {
	fileKey := "sk-file"
	cfg := DefaultConfig("/tmp/config.json", "/tmp/data")
	cfg.Embedder.APIKey = &fileKey

	t.Setenv(EnvOpenAIAPIKey, "")
	if got := GetOpenAIAPIKey(cfg); got != "sk-file" {
		t.Errorf("expected config fallback, got %q", got)
	}

	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	if got := GetOpenAIAPIKey(cfg); got != "sk-env" {
		t.Errorf("expected env to win, got %q", got)
	}
}
