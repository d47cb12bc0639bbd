package model

import (
	"errors"
	"fmt"
	"time"
)

// Config はサーバー全体の設定を表す
type Config struct {
	TransportDefaults TransportDefaults `json:"transportDefaults"`
	Embedder          EmbedderConfig    `json:"embedder"`
	Store             StoreConfig       `json:"store"`
	Server            ServerConfig      `json:"server"`
	Kafka             KafkaConfig       `json:"kafka"`
	Answer            AnswerConfig      `json:"answer"`
	Log               LogConfig         `json:"log"`
	Paths             PathsConfig       `json:"paths"`
}

// TransportDefaults はtransportのデフォルト設定
type TransportDefaults struct {
	DefaultTransport string `json:"defaultTransport"` // "stdio" | "http"
}

// EmbedderConfig はembedder設定
type EmbedderConfig struct {
	Provider  string  `json:"provider"`                             // "openai" | "ollama" | "local"
	Model     string  `json:"model"`                                // モデル名
	BaseURL   *string `json:"baseUrl,omitempty" split_words:"true"` // nullable、省略可
	APIKey    *string `json:"apiKey,omitempty" split_words:"true"`  // nullable、省略可（セキュリティ注意）
	RateLimit float64 `json:"rateLimit" split_words:"true"`         // 1秒あたりのリクエスト上限、0は無制限
}

// StoreConfig はvector store設定
// Validateで組み合わせを検証してから使う
type StoreConfig struct {
	Type         string        `json:"type"`                            // "sqlite" | "qdrant" | "memory"
	Path         *string       `json:"path,omitempty"`                  // nullable（SQLite用）
	URL          *string       `json:"url,omitempty"`                   // nullable（Qdrant用）
	Collection   string        `json:"collection"`                      // コレクション（テーブル）名の接頭辞
	Dim          int           `json:"dim"`                             // ベクトル次元（作成後は不変）
	Metric       Metric        `json:"metric"`                          // インデックス学習時のmetric
	ListCount    int           `json:"listCount" split_words:"true"`    // IVFリスト数L
	ProbeCount   int           `json:"probeCount" split_words:"true"`   // 0ならceil(sqrt(L))
	PoolSize     int           `json:"poolSize" split_words:"true"`     // 同時リース数の上限
	LeaseTimeout time.Duration `json:"leaseTimeout" split_words:"true"` // リース取得の待ち時間上限
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"corsOrigins,omitempty" split_words:"true"`
}

// KafkaConfig はKafka取り込み設定（Brokersが空なら無効）
type KafkaConfig struct {
	Brokers       string        `json:"brokers"` // カンマ区切り
	Topic         string        `json:"topic"`
	GroupID       string        `json:"groupId" split_words:"true"`
	BatchSize     int           `json:"batchSize" split_words:"true"`
	FlushInterval time.Duration `json:"flushInterval" split_words:"true"`
}

// AnswerConfig は検索結果を根拠にした回答生成の設定
// APIKeyが空なら回答は生成せず、検索結果だけを返す
type AnswerConfig struct {
	Model        string  `json:"model"`
	BaseURL      *string `json:"baseUrl,omitempty" split_words:"true"`
	APIKey       *string `json:"apiKey,omitempty" split_words:"true"`
	Temperature  float32 `json:"temperature"`
	ContextRunes int     `json:"contextRunes" split_words:"true"` // ヒット1件あたりプロンプトに入れる文字数
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `json:"level"`  // debug | info | warn | error
	Format string `json:"format"` // text | json
}

// PathsConfig はファイルパス設定
type PathsConfig struct {
	ConfigPath string `json:"configPath" ignored:"true"`   // 設定ファイルパス
	DataDir    string `json:"dataDir" split_words:"true"` // データディレクトリ
}

// Transport定数
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Embedder Provider定数
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// Store Type定数
const (
	StoreTypeSQLite = "sqlite"
	StoreTypeQdrant = "qdrant"
	StoreTypeMemory = "memory"
)

// StoreConfigのデフォルト値
const (
	DefaultDim          = 384
	DefaultListCount    = 100
	DefaultPoolSize     = 5
	DefaultLeaseTimeout = 5 * time.Second
	DefaultCollection   = "designs"
)

// 設定エラー
var ErrInvalidConfig = errors.New("invalid store config")

// Validate はStoreConfigの値と組み合わせを検証する
// 起動時に呼び、初回操作まで不正値を持ち越さない
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case StoreTypeSQLite, StoreTypeQdrant, StoreTypeMemory:
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Type)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, c.Dim)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, c.Metric)
	}
	if c.ListCount < 0 {
		return fmt.Errorf("%w: listCount must be >= 0, got %d", ErrInvalidConfig, c.ListCount)
	}
	if c.ProbeCount < 0 {
		return fmt.Errorf("%w: probeCount must be >= 0, got %d", ErrInvalidConfig, c.ProbeCount)
	}
	if c.ListCount > 0 && c.ProbeCount > c.ListCount {
		return fmt.Errorf("%w: probeCount (%d) must not exceed listCount (%d)", ErrInvalidConfig, c.ProbeCount, c.ListCount)
	}
	if c.ListCount == 0 && c.ProbeCount > 0 {
		return fmt.Errorf("%w: probeCount requires listCount > 0", ErrInvalidConfig)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("%w: poolSize must be positive, got %d", ErrInvalidConfig, c.PoolSize)
	}
	if c.LeaseTimeout < 0 {
		return fmt.Errorf("%w: leaseTimeout must be >= 0", ErrInvalidConfig)
	}
	if c.Type == StoreTypeQdrant && (c.URL == nil || *c.URL == "") {
		return fmt.Errorf("%w: qdrant store requires url", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection must not be empty", ErrInvalidConfig)
	}
	return nil
}

// CollectionName はdimごとのコレクション名を返す（例: "designs_384"）
func (c *StoreConfig) CollectionName() string {
	return fmt.Sprintf("%s_%d", c.Collection, c.Dim)
}
