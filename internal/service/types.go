package service

import (
	"encoding/json"

	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// RegisterRequest はテキスト登録リクエスト
type RegisterRequest struct {
	Description string
}

// RegisterResponse はテキスト登録レスポンス
type RegisterResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Dim       int    `json:"dim"`
}

// RegisterBatchRequest は一括登録リクエスト
type RegisterBatchRequest struct {
	Descriptions []string
}

// RegisterBatchResponse は一括登録レスポンス
type RegisterBatchResponse struct {
	BatchID   string      `json:"batch_id,omitempty"`
	Succeeded int         `json:"ok"`
	Failed    int         `json:"fail"`
	Items     []BatchItem `json:"items"`
}

// BatchItem は一括登録の1件の結果（Errがnilなら成功）
type BatchItem struct {
	Index     int
	ID        int64
	CreatedAt string
	Err       error
}

// MarshalJSON はErrをメッセージ文字列として出力する
func (b BatchItem) MarshalJSON() ([]byte, error) {
	v := struct {
		Index     int    `json:"index"`
		ID        int64  `json:"id,omitempty"`
		CreatedAt string `json:"created_at,omitempty"`
		Error     string `json:"error,omitempty"`
	}{Index: b.Index, ID: b.ID, CreatedAt: b.CreatedAt}
	if b.Err != nil {
		v.Error = b.Err.Error()
	}
	return json.Marshal(v)
}

// SearchRequest はテキスト検索リクエスト
type SearchRequest struct {
	Text   string
	TopK   *int   // default 5
	Metric string // default cosine
	Probes int    // 0ならストアの既定値
}

// SimilarRequest はベクトル検索リクエスト
type SimilarRequest struct {
	Vector []float64
	TopK   *int
	Metric string
	Probes int
}

// NeighborsRequest は既存レコードの近傍検索リクエスト
type NeighborsRequest struct {
	ID     int64
	TopK   *int
	Metric string
	Probes int
}

// SearchResponse は検索レスポンス
type SearchResponse struct {
	Metric  model.Metric   `json:"metric"`
	Results []SearchResult `json:"results"`
}

// SearchResult は検索結果の1件
type SearchResult struct {
	ID             int64   `json:"id"`
	PayloadExcerpt string  `json:"payload_excerpt"`
	Score          float64 `json:"score"` // 距離（小さいほど近い）
	CreatedAt      string  `json:"created_at,omitempty"`
}

// AnswerRequest は検索結果を根拠にした回答リクエスト
type AnswerRequest struct {
	Text   string
	TopK   *int
	Metric string
	Probes int
}

// AnswerResponse は回答と根拠にした検索結果
// Generatedがfalseならチャットモデルは呼んでいない
type AnswerResponse struct {
	Answer    string         `json:"answer"`
	Generated bool           `json:"generated"`
	Model     string         `json:"model,omitempty"`
	Metric    model.Metric   `json:"metric"`
	Results   []SearchResult `json:"items"`
}

// GetResponse はレコード取得レスポンス
type GetResponse struct {
	ID        int64     `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt string    `json:"created_at,omitempty"`
	ListNo    *int      `json:"list_no,omitempty"`
	Vector    []float64 `json:"vector"`
}

// HealthResponse はヘルスチェックレスポンス
type HealthResponse struct {
	Status    string             `json:"status"`
	ModelName string             `json:"model_name"`
	Dim       int                `json:"dim"`
	Store     vectorstore.Health `json:"store"`
}

// GetConfigResponse は設定取得レスポンス（APIキーは伏せる）
type GetConfigResponse struct {
	TransportDefaults model.TransportDefaults `json:"transportDefaults"`
	Embedder          model.EmbedderConfig    `json:"embedder"`
	Store             model.StoreConfig       `json:"store"`
	Server            model.ServerConfig      `json:"server"`
	Answer            model.AnswerConfig      `json:"answer"`
	Paths             model.PathsConfig       `json:"paths"`
}
