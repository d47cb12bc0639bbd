package model

import (
	"fmt"
	"strings"
	"time"
)

// Record はストアに保存される1件のベクトルレコード
// コミット後は不変（更新操作はない）
type Record struct {
	ID        int64     `json:"id"`                // ストアが単調増加で採番、再利用しない
	Vector    []float64 `json:"vector,omitempty"`  // 長さは常にdim
	Payload   string    `json:"payload"`           // 呼び出し側が所有するテキスト
	CreatedAt time.Time `json:"created_at"`        // コミット時に付与
	ListNo    *int      `json:"list_no,omitempty"` // IVFリスト番号（インデックス未構築時はnil）
}

// Metric は距離関数の種類
type Metric string

// Metric定数
const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric は文字列からMetricを取得する
// 空文字列の場合はcosineを返す
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown metric %q (must be cosine or l2)", s)
	}
}

// Valid はサポート対象のMetricかどうかを返す
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricL2
}

// BatchItem はバッチ投入の候補1件
type BatchItem struct {
	Vector  []float64 `json:"vector"`
	Payload string    `json:"payload"`
}

// BatchItemResult はバッチ内1件の結果
// Errがnilなら成功、非nilなら失敗理由
type BatchItemResult struct {
	Index     int       `json:"index"`
	ID        int64     `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Err       error     `json:"-"`
}

// OK は成功したかどうかを返す
func (r BatchItemResult) OK() bool {
	return r.Err == nil
}

// BatchResult はバッチ投入全体の結果
type BatchResult struct {
	BatchID   string            `json:"batch_id"`
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// Tally はItemsから成功・失敗件数を再集計する
func (r *BatchResult) Tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, it := range r.Items {
		if it.OK() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// FailAll は全アイテムを同じエラーで失敗扱いにする（トランザクション全体のロールバック時）
func (r *BatchResult) FailAll(err error) {
	for i := range r.Items {
		r.Items[i].ID = 0
		r.Items[i].CreatedAt = time.Time{}
		r.Items[i].Err = err
	}
	r.Tally()
}

// SearchHit は検索結果の1件
type SearchHit struct {
	ID        int64     `json:"id"`
	Distance  float64   `json:"distance"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
