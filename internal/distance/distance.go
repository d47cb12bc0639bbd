// Package distance はベクトル間距離の計算を提供する
// どちらのmetricも「小さいほど近い」で揃えている
package distance

import (
	"fmt"
	"math"

	"github.com/brbranch/vecstore/internal/model"
)

// Func は2つの同次元ベクトル間の距離を返す
// 次元の一致は呼び出し側の責務
type Func func(a, b []float64) float64

// For はmetricに対応する距離関数を返す
func For(metric model.Metric) (Func, error) {
	switch metric {
	case model.MetricCosine:
		return Cosine, nil
	case model.MetricL2:
		return Euclidean, nil
	default:
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
}

// Cosine はcosine距離（1 - cosine類似度）を返す
// どちらかのノルムが0の場合は1.0、結果は[0, 2]に丸める
func Cosine(a, b []float64) float64 {
	var dot, na2, nb2 float64
	for i := range a {
		dot += a[i] * b[i]
		na2 += a[i] * a[i]
		nb2 += b[i] * b[i]
	}
	if na2 == 0 || nb2 == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2))
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Euclidean はL2距離を返す
func Euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Normalize は単位長に正規化したコピーを返す
// ノルムが0のときはfalse
func Normalize(v []float64) ([]float64, bool) {
	var n2 float64
	for _, x := range v {
		n2 += x * x
	}
	if n2 == 0 {
		return nil, false
	}
	inv := 1 / math.Sqrt(n2)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out, true
}
