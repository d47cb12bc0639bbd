package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalModelName はLocalEmbedderのモデル名
const LocalModelName = "feature-hash"

// LocalEmbedder は外部APIを使わない決定的なEmbedder実装
//
// 小文字化した単語と文字3-gramを特徴量としてハッシュし、符号付きでdim次元に畳み込む。
// 出力は単位ベクトル。同じテキストは常に同じベクトルになる。
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder は新しいLocalEmbedderを作成
func NewLocalEmbedder(dim int) (*LocalEmbedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDim, dim)
	}
	return &LocalEmbedder{dim: dim}, nil
}

// Embed はテキストを埋め込みベクトルに変換
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, &EmbeddingError{Provider: "local", Model: LocalModelName, Err: ErrEmptyInput}
	}

	vec := make([]float64, e.dim)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		e.add(vec, "w:"+w, 1.0)
		runes := []rune(" " + w + " ")
		for i := 0; i+3 <= len(runes); i++ {
			e.add(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}
	if len(words) == 0 {
		e.add(vec, "t:"+text, 1.0)
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	// 符号の打ち消しで全成分が0になった場合
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// add は特徴量featureを重みweightでvecに加算する
func (e *LocalEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimension は次元を返す
func (e *LocalEmbedder) Dimension() int {
	return e.dim
}

// ModelName はモデル名を返す
func (e *LocalEmbedder) ModelName() string {
	return LocalModelName
}
