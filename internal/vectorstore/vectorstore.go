// Package vectorstore はバックエンドとリースプールをまとめたベクトルストアを提供する
//
// 引数の検証はリース取得前に行い、不正な呼び出しでプールを待たせない。
// 各操作はリースを1つ取得してバックエンドを呼び、エラーやpanicでも必ず返却する。
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/pool"
	"github.com/brbranch/vecstore/internal/store"
)

// Health のStatus値
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// VectorStore はStoreとPoolを束ねた操作窓口
type VectorStore struct {
	cfg     model.StoreConfig
	backend store.Store
	pool    *pool.Pool
	logger  *slog.Logger
}

// Health はストアの状態
type Health struct {
	Status     string       `json:"status"`
	Backend    string       `json:"backend"`
	Collection string       `json:"collection"`
	Dim        int          `json:"dim"`
	Metric     model.Metric `json:"metric"`
	Records    int64        `json:"records"`
	PoolSize   int          `json:"pool_size"`
	PoolInUse  int          `json:"pool_in_use"`
	Index      ivf.Stats    `json:"index"`
	Error      string       `json:"error,omitempty"`
}

// Option はVectorStoreのオプション関数
type Option func(*options)

type options struct {
	logger    *slog.Logger
	backend   store.Store
	storeOpts []store.Option
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBackend は構築済みのバックエンドを使う（設定のType/Path/URLは無視される）
func WithBackend(backend store.Store) Option {
	return func(o *options) { o.backend = backend }
}

// WithStoreOptions はバックエンド作成時のオプションを追加する
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// New は設定を検証し、バックエンドとプールを作成する
// スキーマの用意はEnsureSchemaで別に行う
func New(cfg model.StoreConfig, opts ...Option) (*VectorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	p, err := pool.New(cfg.PoolSize, cfg.LeaseTimeout)
	if err != nil {
		return nil, err
	}

	backend := o.backend
	if backend == nil {
		storeOpts := append([]store.Option{store.WithLogger(o.logger)}, o.storeOpts...)
		backend, err = openBackend(cfg, storeOpts)
		if err != nil {
			p.Close()
			return nil, err
		}
	}

	return &VectorStore{
		cfg:     cfg,
		backend: backend,
		pool:    p,
		logger:  o.logger.With("collection", cfg.CollectionName()),
	}, nil
}

// openBackend は設定のTypeに応じたバックエンドを作成する
func openBackend(cfg model.StoreConfig, opts []store.Option) (store.Store, error) {
	sc := store.ConfigFrom(cfg)
	switch cfg.Type {
	case model.StoreTypeSQLite:
		dbPath := "vecstore.db"
		if cfg.Path != nil && *cfg.Path != "" {
			dbPath = *cfg.Path
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.NewSQLiteStore(dbPath, sc, cfg.PoolSize, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		return st, nil
	case model.StoreTypeQdrant:
		st, err := store.NewQdrantStore(*cfg.URL, sc, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(sc, opts...)
	}
}

// Config は検証済みの設定を返す
func (v *VectorStore) Config() model.StoreConfig {
	return v.cfg
}

// Dim はベクトル次元を返す
func (v *VectorStore) Dim() int {
	return v.cfg.Dim
}

// Close はプールとバックエンドをクローズする
func (v *VectorStore) Close() error {
	v.pool.Close()
	return v.backend.Close()
}

// EnsureSchema はコレクションを用意する（冪等）
func (v *VectorStore) EnsureSchema(ctx context.Context) error {
	return v.pool.Do(ctx, func(ctx context.Context) error {
		if err := v.backend.EnsureSchema(ctx); err != nil {
			return err
		}
		v.logger.Info("schema ready", "dim", v.cfg.Dim, "metric", v.cfg.Metric, "lists", v.cfg.ListCount)
		return nil
	})
}

// Insert は1件を追加する
func (v *VectorStore) Insert(ctx context.Context, vector []float64, payload string) (*model.Record, error) {
	if err := codec.Validate(vector, v.cfg.Dim); err != nil {
		return nil, &store.IngestError{Err: err}
	}

	var rec *model.Record
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = v.backend.Insert(ctx, vector, payload)
		return err
	})
	return rec, err
}

// InsertBatch は複数件を1トランザクションで追加する
// 件ごとの検証失敗はBatchResultに記録され、戻り値のerrorはバッチ全体の失敗を表す
func (v *VectorStore) InsertBatch(ctx context.Context, items []model.BatchItem) (*model.BatchResult, error) {
	var result *model.BatchResult
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = v.backend.InsertBatch(ctx, items)
		return err
	})
	return result, err
}

// SearchOption は検索オプション関数
type SearchOption func(*store.SearchOptions)

// WithProbes は走査するリスト数を指定する
func WithProbes(n int) SearchOption {
	return func(o *store.SearchOptions) { o.Probes = n }
}

// Search はクエリに近い上位k件を(距離, ID)の昇順で返す
func (v *VectorStore) Search(ctx context.Context, query []float64, k int, metric model.Metric, opts ...SearchOption) ([]model.SearchHit, error) {
	if err := store.ValidateQuery(query, k, metric, v.cfg.Dim); err != nil {
		return nil, err
	}
	var so store.SearchOptions
	for _, opt := range opts {
		opt(&so)
	}
	if so.Probes < 0 {
		return nil, &store.QueryError{Err: fmt.Errorf("%w: probes must be >= 0, got %d", store.ErrInvalidArgument, so.Probes)}
	}

	var hits []model.SearchHit
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		hits, err = v.backend.Search(ctx, query, k, metric, so)
		return err
	})
	return hits, err
}

// Neighbors は既存レコードに近い上位k件を、そのレコード自身を除いて返す
func (v *VectorStore) Neighbors(ctx context.Context, id int64, k int, metric model.Metric, opts ...SearchOption) ([]model.SearchHit, error) {
	if k < 1 {
		return nil, &store.QueryError{Err: fmt.Errorf("%w: k must be >= 1, got %d", store.ErrInvalidArgument, k)}
	}
	rec, err := v.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// 自分自身の分を1件多く取る（math.MaxIntのときはそのまま）
	searchK := k
	if k < math.MaxInt {
		searchK = k + 1
	}
	hits, err := v.Search(ctx, rec.Vector, searchK, metric, opts...)
	if err != nil {
		return nil, err
	}

	out := make([]model.SearchHit, 0, min(k, len(hits)))
	for _, h := range hits {
		if h.ID == id {
			continue
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Get はIDでレコードを取得する
func (v *VectorStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	var rec *model.Record
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = v.backend.Get(ctx, id)
		return err
	})
	return rec, err
}

// Count はレコード件数を返す
func (v *VectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = v.backend.Count(ctx)
		return err
	})
	return n, err
}

// RebuildIndex はIVFインデックスを学習し直す
func (v *VectorStore) RebuildIndex(ctx context.Context) (ivf.Stats, error) {
	var stats ivf.Stats
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = v.backend.RebuildIndex(ctx)
		return err
	})
	return stats, err
}

// Health は接続と件数を確認する
// バックエンドに届かない場合もerrorは返さず、StatusDegradedとして報告する
func (v *VectorStore) Health(ctx context.Context) Health {
	h := Health{
		Status:     StatusOK,
		Backend:    v.cfg.Type,
		Collection: v.cfg.CollectionName(),
		Dim:        v.cfg.Dim,
		Metric:     v.cfg.Metric,
		PoolSize:   v.pool.Size(),
		Index:      v.backend.IndexStats(),
	}

	err := v.pool.Do(ctx, func(ctx context.Context) error {
		h.PoolInUse = v.pool.InUse()
		if err := v.backend.Ping(ctx); err != nil {
			return err
		}
		n, err := v.backend.Count(ctx)
		if err != nil {
			return err
		}
		h.Records = n
		return nil
	})
	if err != nil {
		h.Status = StatusDegraded
		h.Error = err.Error()
		v.logger.Warn("health check failed", "error", err)
	}
	return h
}

// IsValidation は呼び出し側の入力が原因のエラーかどうかを返す
func IsValidation(err error) bool {
	return errors.Is(err, codec.ErrDimensionMismatch) ||
		errors.Is(err, codec.ErrInvalidVector) ||
		errors.Is(err, codec.ErrMalformedLiteral) ||
		errors.Is(err, store.ErrInvalidArgument)
}
