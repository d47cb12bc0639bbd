// Package embedder はテキストを埋め込みベクトルに変換する
package embedder

import (
	"context"
	"errors"
	"fmt"
)

// Embedder はテキストから埋め込みベクトルを生成するインターフェース
type Embedder interface {
	// Embed はテキストを長さDimension()のベクトルに変換する
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimension は生成するベクトルの次元数を返す
	Dimension() int

	// ModelName はモデル名を返す
	ModelName() string
}

// エラー定義
var (
	ErrAPIKeyRequired  = errors.New("api key is required")
	ErrEmptyInput      = errors.New("input text is empty")
	ErrEmptyEmbedding  = errors.New("empty embedding returned")
	ErrUnknownProvider = errors.New("unknown embedder provider")
	ErrInvalidDim      = errors.New("embedding dimension must be positive")
)

// EmbeddingError は埋め込み生成の失敗を表す
type EmbeddingError struct {
	Provider string
	Model    string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s/%s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// toFloat64 はAPIが返すfloat32のベクトルをfloat64に変換する
func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
