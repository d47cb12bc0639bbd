package ivf

import (
	"context"
	"errors"
	"testing"

	"github.com/brbranch/vecstore/internal/model"
)

// twoClusters は(0,0)付近と(10,10)付近の2クラスタを返す
func twoClusters() []Point {
	return []Point{
		{ID: 1, Vector: []float64{0, 0}},
		{ID: 2, Vector: []float64{0, 1}},
		{ID: 3, Vector: []float64{1, 0}},
		{ID: 4, Vector: []float64{10, 10}},
		{ID: 5, Vector: []float64{10, 11}},
		{ID: 6, Vector: []float64{11, 10}},
	}
}

// TestTrain は2クラスタが別リストに分かれることをテスト
func TestTrain(t *testing.T) {
	ix, err := Train(context.Background(), 2, model.MetricL2, twoClusters(), 2)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if !ix.Built() || ix.Lists() != 2 {
		t.Fatalf("expected built index with 2 lists, got built=%v lists=%d", ix.Built(), ix.Lists())
	}

	p1 := ix.Assign([]float64{0.5, 0.5})
	p2 := ix.Assign([]float64{10.5, 10.5})
	if p1 == p2 {
		t.Errorf("expected different lists, both got %d", p1)
	}

	stats := ix.Stats()
	if stats.Indexed != 6 {
		t.Errorf("expected 6 indexed, got %d", stats.Indexed)
	}
	if stats.MinListSize != 3 || stats.MaxListSize != 3 {
		t.Errorf("expected balanced lists of 3, got min=%d max=%d", stats.MinListSize, stats.MaxListSize)
	}
}

// TestTrain_Deterministic は同じシードで同じcentroidになることをテスト
func TestTrain_Deterministic(t *testing.T) {
	a, err := Train(context.Background(), 2, model.MetricL2, twoClusters(), 2, WithSeed(7))
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	b, err := Train(context.Background(), 2, model.MetricL2, twoClusters(), 2, WithSeed(7), WithWorkers(1))
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	ca, cb := a.Centroids(), b.Centroids()
	for i := range ca {
		for d := range ca[i] {
			if ca[i][d] != cb[i][d] {
				t.Fatalf("centroid %d differs: %v vs %v", i, ca[i], cb[i])
			}
		}
	}
}

// TestTrain_FewerPointsThanLists はリスト数が点数に切り詰められることをテスト
func TestTrain_FewerPointsThanLists(t *testing.T) {
	ix, err := Train(context.Background(), 2, model.MetricL2, twoClusters()[:2], 100)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if ix.Lists() != 2 {
		t.Errorf("expected 2 lists, got %d", ix.Lists())
	}
}

// TestTrain_Empty は点が0件なら未学習のまま返すことをテスト
func TestTrain_Empty(t *testing.T) {
	ix, err := Train(context.Background(), 2, model.MetricL2, nil, 4)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if ix.Built() {
		t.Error("expected unbuilt index")
	}
	if ix.Assign([]float64{1, 1}) != NoList {
		t.Error("expected NoList from unbuilt index")
	}
	if _, full := ix.Plan([]float64{1, 1}, model.MetricL2, 1, 1); !full {
		t.Error("expected full scan plan from unbuilt index")
	}
}

// TestTrain_Cancellation はキャンセル済みcontextで失敗することをテスト
func TestTrain_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := make([]Point, 1000)
	for i := range points {
		points[i] = Point{ID: int64(i + 1), Vector: []float64{float64(i), float64(i % 7)}}
	}
	if _, err := Train(ctx, 2, model.MetricL2, points, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestTrain_InvalidArgs は不正な引数を拒否することをテスト
func TestTrain_InvalidArgs(t *testing.T) {
	if _, err := Train(context.Background(), 2, model.MetricL2, twoClusters(), 0); !errors.Is(err, ErrInvalidLists) {
		t.Errorf("expected ErrInvalidLists, got %v", err)
	}
	bad := []Point{{ID: 1, Vector: []float64{1, 2, 3}}}
	if _, err := Train(context.Background(), 2, model.MetricL2, bad, 1); !errors.Is(err, ErrDimMismatch) {
		t.Errorf("expected ErrDimMismatch, got %v", err)
	}
}

// TestPlan_Widening はメンバー不足のときにリストを広げることをテスト
func TestPlan_Widening(t *testing.T) {
	ix, err := Restore(1, model.MetricL2, [][]float64{{0}, {10}, {20}})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	_ = ix.Add(1, 0)
	_ = ix.Add(2, 1)
	_ = ix.Add(3, 1)
	_ = ix.Add(4, 2)

	lists, full := ix.Plan([]float64{1}, model.MetricL2, 1, 1)
	if len(lists) != 1 || lists[0] != 0 || full {
		t.Errorf("expected [0] partial, got %v full=%v", lists, full)
	}

	lists, full = ix.Plan([]float64{1}, model.MetricL2, 1, 3)
	if len(lists) != 2 || lists[0] != 0 || lists[1] != 1 || full {
		t.Errorf("expected [0 1] partial, got %v full=%v", lists, full)
	}

	lists, full = ix.Plan([]float64{19}, model.MetricL2, 1, 10)
	if len(lists) != 3 || lists[0] != 2 || !full {
		t.Errorf("expected all lists starting at 2, got %v full=%v", lists, full)
	}

	members := ix.Members([]int{0, 1})
	if members.GetCardinality() != 3 || !members.Contains(3) || members.Contains(4) {
		t.Errorf("unexpected members %v", members.ToArray())
	}
}

// TestPlan_MetricMismatch は学習時と異なるmetricなら全件走査になることをテスト
func TestPlan_MetricMismatch(t *testing.T) {
	ix, err := Restore(2, model.MetricCosine, [][]float64{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if lists, full := ix.Plan([]float64{1, 0}, model.MetricL2, 1, 1); lists != nil || !full {
		t.Errorf("expected full scan, got %v full=%v", lists, full)
	}
}

// TestAdd_OutOfRange は範囲外のリスト番号を拒否することをテスト
func TestAdd_OutOfRange(t *testing.T) {
	ix, err := Restore(1, model.MetricL2, [][]float64{{0}})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if err := ix.Add(1, 5); !errors.Is(err, ErrInvalidList) {
		t.Errorf("expected ErrInvalidList, got %v", err)
	}
}

// TestDefaultProbes はceil(sqrt(L))をテスト
func TestDefaultProbes(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 4: 2, 5: 3, 100: 10}
	for lists, want := range cases {
		if got := DefaultProbes(lists); got != want {
			t.Errorf("DefaultProbes(%d) = %d, want %d", lists, got, want)
		}
	}
}

// TestEachMember は全メンバーを列挙できることをテスト
func TestEachMember(t *testing.T) {
	ix, err := Train(context.Background(), 2, model.MetricL2, twoClusters(), 2)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	seen := map[int64]int{}
	if err := ix.EachMember(func(list int, id int64) error {
		seen[id] = list
		return nil
	}); err != nil {
		t.Fatalf("EachMember failed: %v", err)
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 members, got %d", len(seen))
	}
	if seen[1] != seen[2] || seen[1] == seen[4] {
		t.Errorf("unexpected assignment %v", seen)
	}
}
