package embedder

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimited は1秒あたりのリクエスト数を制限するEmbedderのラッパー
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited はperSecond件/秒に制限したEmbedderを返す
// perSecondが0以下なら制限しない
func NewRateLimited(inner Embedder, perSecond float64) Embedder {
	if perSecond <= 0 {
		return inner
	}
	burst := int(math.Max(1, math.Ceil(perSecond)))
	return &RateLimited{
		Embedder: inner,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Embed は枠が空くまで待ってから埋め込みを生成する
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.Embed(ctx, text)
}
