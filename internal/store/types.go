package store

import (
	"log/slog"
	"time"

	"github.com/brbranch/vecstore/internal/model"
)

// Config はバックエンド共通の設定
type Config struct {
	Collection string       // 次元込みのコレクション名（例: "designs_384"）
	Dim        int          // ベクトル次元
	Metric     model.Metric // インデックス学習時のmetric
	ListCount  int          // IVFリスト数、0ならインデックスなし
	ProbeCount int          // 既定のprobe数、0ならceil(sqrt(L))
}

// ConfigFrom は検証済みのStoreConfigからConfigを作る
func ConfigFrom(c model.StoreConfig) Config {
	return Config{
		Collection: c.CollectionName(),
		Dim:        c.Dim,
		Metric:     c.Metric,
		ListCount:  c.ListCount,
		ProbeCount: c.ProbeCount,
	}
}

// SearchOptions はSearch操作のオプション
type SearchOptions struct {
	Probes int // 0ならConfig.ProbeCount
}

// Option はバックエンド共通のオプション関数
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock は時刻取得関数を設定する（テスト用）
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
