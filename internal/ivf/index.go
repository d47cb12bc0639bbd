// Package ivf は転置ファイル（IVF）方式の近似最近傍インデックスを提供する
//
// ベクトル空間を学習時のmetricでL個のリストに分割し、検索時はクエリに近い
// probe個のリストだけを走査する。学習後に追加されたレコードは最近傍リストへ
// 即時に吸収されるので、インデックスが新しい書き込みを取りこぼすことはない。
package ivf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/brbranch/vecstore/internal/distance"
	"github.com/brbranch/vecstore/internal/model"
)

// NoList は未割り当てを表すリスト番号
const NoList = -1

// エラー定義
var (
	ErrNotBuilt     = errors.New("index is not built")
	ErrInvalidList  = errors.New("list number out of range")
	ErrDimMismatch  = errors.New("centroid dimension mismatch")
	ErrInvalidLists = errors.New("list count must be positive")
)

// Point は学習対象のレコード
type Point struct {
	ID     int64
	Vector []float64
}

// Stats はインデックスの統計情報
type Stats struct {
	Built        bool         `json:"built"`
	Metric       model.Metric `json:"metric"`
	Lists        int          `json:"lists"`
	Indexed      uint64       `json:"indexed"`
	MinListSize  uint64       `json:"min_list_size"`
	MaxListSize  uint64       `json:"max_list_size"`
	DefaultProbe int          `json:"default_probes"`
}

// Index はcentroidとリストごとのメンバーシップを保持する
type Index struct {
	mu        sync.RWMutex
	dim       int
	metric    model.Metric
	dist      distance.Func
	centroids [][]float64
	lists     []*roaring64.Bitmap
}

// New は未学習のIndexを作成する
func New(dim int, metric model.Metric) (*Index, error) {
	dist, err := distance.For(metric)
	if err != nil {
		return nil, err
	}
	return &Index{dim: dim, metric: metric, dist: dist}, nil
}

// Restore は保存済みcentroidからIndexを復元する
// メンバーシップは空なのでAddで積み直す
func Restore(dim int, metric model.Metric, centroids [][]float64) (*Index, error) {
	ix, err := New(dim, metric)
	if err != nil {
		return nil, err
	}
	for i, c := range centroids {
		if len(c) != dim {
			return nil, fmt.Errorf("%w: centroid %d has %d components, want %d", ErrDimMismatch, i, len(c), dim)
		}
	}
	ix.setCentroids(centroids)
	return ix, nil
}

// Train はLloyd法でlists個のリストを学習し、各点を割り当てたIndexを返す
// 点がlistsより少ない場合はリスト数を点数に合わせる。点が0件なら未学習のまま返す
func Train(ctx context.Context, dim int, metric model.Metric, points []Point, lists int, opts ...TrainOption) (*Index, error) {
	if lists <= 0 {
		return nil, ErrInvalidLists
	}
	ix, err := New(dim, metric)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return ix, nil
	}

	o := trainOptions{seed: 1, maxIter: 25, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	vectors := make([][]float64, len(points))
	for i, p := range points {
		if len(p.Vector) != dim {
			return nil, fmt.Errorf("%w: point %d has %d components, want %d", ErrDimMismatch, p.ID, len(p.Vector), dim)
		}
		vectors[i] = p.Vector
	}

	centroids, assignments, err := kmeans(ctx, vectors, lists, ix.dist, metric == model.MetricCosine, o)
	if err != nil {
		return nil, fmt.Errorf("failed to train index: %w", err)
	}

	ix.setCentroids(centroids)
	for i, p := range points {
		ix.lists[assignments[i]].Add(uint64(p.ID))
	}
	return ix, nil
}

func (ix *Index) setCentroids(centroids [][]float64) {
	ix.centroids = make([][]float64, len(centroids))
	ix.lists = make([]*roaring64.Bitmap, len(centroids))
	for i, c := range centroids {
		ix.centroids[i] = append([]float64(nil), c...)
		ix.lists[i] = roaring64.New()
	}
}

// Built はcentroidが存在するかを返す
func (ix *Index) Built() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.centroids) > 0
}

// Metric は学習時のmetricを返す
func (ix *Index) Metric() model.Metric {
	return ix.metric
}

// Lists はリスト数を返す
func (ix *Index) Lists() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.centroids)
}

// Centroids はcentroidのコピーを返す
func (ix *Index) Centroids() [][]float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([][]float64, len(ix.centroids))
	for i, c := range ix.centroids {
		out[i] = append([]float64(nil), c...)
	}
	return out
}

// Assign はベクトルの最近傍リスト番号を返す。未学習ならNoList
func (ix *Index) Assign(vec []float64) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.centroids) == 0 {
		return NoList
	}
	return nearest(vec, ix.centroids, ix.dist)
}

// Add はレコードをリストに登録する
func (ix *Index) Add(id int64, list int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if list < 0 || list >= len(ix.lists) {
		return fmt.Errorf("%w: %d", ErrInvalidList, list)
	}
	ix.lists[list].Add(uint64(id))
	return nil
}

// DefaultProbes はprobe数の既定値ceil(sqrt(L))を返す
func DefaultProbes(lists int) int {
	if lists <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(lists))))
}

// Plan は走査するリスト番号をcentroidが近い順に返す
//
// まずprobes個の最近傍リストを選び、メンバー数の合計がk未満なら
// 次に近いリストを1つずつ追加していく。全リストを使い切った場合は
// fullにtrueを返す。未学習、またはmetricが学習時と異なる場合は
// (nil, true)を返し、呼び出し側は全件走査する。
func (ix *Index) Plan(query []float64, metric model.Metric, probes, k int) (lists []int, full bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	L := len(ix.centroids)
	if L == 0 || metric != ix.metric {
		return nil, true
	}
	if probes <= 0 {
		probes = DefaultProbes(L)
	}

	type ranked struct {
		list int
		dist float64
	}
	order := make([]ranked, L)
	for i, c := range ix.centroids {
		order[i] = ranked{list: i, dist: ix.dist(query, c)}
	}
	sort.Slice(order, func(a, b int) bool {
		if order[a].dist != order[b].dist {
			return order[a].dist < order[b].dist
		}
		return order[a].list < order[b].list
	})

	var members uint64
	for i, r := range order {
		if i >= probes && members >= uint64(k) {
			break
		}
		lists = append(lists, r.list)
		members += ix.lists[r.list].GetCardinality()
	}
	return lists, len(lists) == L
}

// Members は指定リストのレコードIDの和集合を返す
func (ix *Index) Members(lists []int) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := roaring64.New()
	for _, l := range lists {
		if l >= 0 && l < len(ix.lists) {
			out.Or(ix.lists[l])
		}
	}
	return out
}

// EachMember はリスト番号とレコードIDの組を列挙する
func (ix *Index) EachMember(fn func(list int, id int64) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for l, bm := range ix.lists {
		it := bm.Iterator()
		for it.HasNext() {
			if err := fn(l, int64(it.Next())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats は統計情報を返す
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := Stats{
		Built:        len(ix.centroids) > 0,
		Metric:       ix.metric,
		Lists:        len(ix.centroids),
		DefaultProbe: DefaultProbes(len(ix.centroids)),
	}
	for i, bm := range ix.lists {
		n := bm.GetCardinality()
		s.Indexed += n
		if i == 0 || n < s.MinListSize {
			s.MinListSize = n
		}
		if n > s.MaxListSize {
			s.MaxListSize = n
		}
	}
	return s
}
