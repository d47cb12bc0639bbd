// Package service はテキストの登録と類似検索をまとめた業務ロジックを提供する
package service

import (
	"context"
	"errors"

	"github.com/brbranch/vecstore/internal/ivf"
)

// RecordService はテキストの埋め込み登録と類似検索を提供
type RecordService interface {
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)
	RegisterBatch(ctx context.Context, req *RegisterBatchRequest) (*RegisterBatchResponse, error)
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	Similar(ctx context.Context, req *SimilarRequest) (*SearchResponse, error)
	Neighbors(ctx context.Context, req *NeighborsRequest) (*SearchResponse, error)
	Answer(ctx context.Context, req *AnswerRequest) (*AnswerResponse, error)
	Get(ctx context.Context, id int64) (*GetResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)
	RebuildIndex(ctx context.Context) (*ivf.Stats, error)
}

// ConfigService は現在の設定の参照を提供
type ConfigService interface {
	GetConfig(ctx context.Context) (*GetConfigResponse, error)
}

// エラー定義
var (
	ErrDescriptionRequired = errors.New("description is required")
	ErrTextRequired        = errors.New("text is required")
	ErrVectorRequired      = errors.New("vector is required")
	ErrIDRequired          = errors.New("id is required")
	ErrInvalidTopK         = errors.New("k must be between 1 and 1000")
)

// 検索のデフォルト値
const (
	DefaultTopK    = 5
	MaxTopK        = 1000
	ExcerptRunes   = 80
	DefaultWorkers = 4
)

// Answerの定型文
const (
	NoChatModelAnswer = "No chat model is configured, so no answer was generated. See the similar designs below."
	NoHitsAnswer      = "No stored designs matched the question."
)
