// Package store provides vector storage interfaces and implementations.
package store

import (
	"context"

	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/model"
)

// Store はベクトルストアの抽象インターフェース
type Store interface {
	// スキーマ
	EnsureSchema(ctx context.Context) error

	// 取り込み
	Insert(ctx context.Context, vector []float64, payload string) (*model.Record, error)
	InsertBatch(ctx context.Context, items []model.BatchItem) (*model.BatchResult, error)

	// 検索（距離昇順、同距離はID昇順）
	Search(ctx context.Context, query []float64, k int, metric model.Metric, opts SearchOptions) ([]model.SearchHit, error)
	Get(ctx context.Context, id int64) (*model.Record, error)
	Count(ctx context.Context) (int64, error)

	// インデックス
	RebuildIndex(ctx context.Context) (ivf.Stats, error)
	IndexStats() ivf.Stats

	// 接続
	Ping(ctx context.Context) error
	Close() error
}
