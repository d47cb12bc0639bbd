package store

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/model"
)

// ValidateQuery は検索引数を検証する
func ValidateQuery(query []float64, k int, metric model.Metric, dim int) error {
	if k < 1 {
		return &QueryError{Err: fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)}
	}
	if !metric.Valid() {
		return &QueryError{Err: fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, metric)}
	}
	if err := codec.Validate(query, dim); err != nil {
		return &QueryError{Err: err}
	}
	return nil
}

// less は(距離, ID)の辞書順で比較する
func less(a, b model.SearchHit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// topK は上位k件だけを保持する最大ヒープ
type topK struct {
	k     int
	items []model.SearchHit
}

// topKInitialCap は事前確保する上限（kが大きくてもappendで伸ばす）
const topKInitialCap = 64

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]model.SearchHit, 0, min(k, topKInitialCap))}
}

func (h *topK) Len() int           { return len(h.items) }
func (h *topK) Less(i, j int) bool { return less(h.items[j], h.items[i]) }
func (h *topK) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topK) Push(x any)         { h.items = append(h.items, x.(model.SearchHit)) }
func (h *topK) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}

// offer は候補を追加し、k件を超えたら最も遠いものを捨てる
func (h *topK) offer(hit model.SearchHit) {
	if len(h.items) < h.k {
		heap.Push(h, hit)
		return
	}
	if less(hit, h.items[0]) {
		h.items[0] = hit
		heap.Fix(h, 0)
	}
}

// sorted は距離昇順・ID昇順に並べた結果を返す
func (h *topK) sorted() []model.SearchHit {
	out := make([]model.SearchHit, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// mergeTopK は複数の部分結果を統合して上位k件を返す
func mergeTopK(k int, parts ...[]model.SearchHit) []model.SearchHit {
	h := newTopK(k)
	for _, p := range parts {
		for _, hit := range p {
			h.offer(hit)
		}
	}
	return h.sorted()
}

// formatTime は保存用の時刻文字列を返す
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime は保存された時刻文字列を解析する
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// decodeCreatedAt は保存された時刻を解析する
// 壊れた値はWarnを出してゼロ値にする
func decodeCreatedAt(logger *slog.Logger, id int64, value string) time.Time {
	t, err := parseTime(value)
	if err != nil {
		logger.Warn("corrupt created_at", "id", id, "value", value, "error", err)
		return time.Time{}
	}
	return t
}
