package ivf

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/brbranch/vecstore/internal/distance"
)

// trainOptions はTrainのオプション
type trainOptions struct {
	seed    int64
	maxIter int
	workers int
}

// TrainOption はTrainのオプション関数
type TrainOption func(*trainOptions)

// WithSeed は初期centroid選択の乱数シードを設定する
func WithSeed(seed int64) TrainOption {
	return func(o *trainOptions) {
		o.seed = seed
	}
}

// WithMaxIter はLloyd反復の上限を設定する
func WithMaxIter(n int) TrainOption {
	return func(o *trainOptions) {
		if n > 0 {
			o.maxIter = n
		}
	}
}

// WithWorkers は割り当てステップの並列度を設定する
func WithWorkers(n int) TrainOption {
	return func(o *trainOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// kmeans はLloyd法でk個のcentroidを学習し、centroidと各点の割り当てを返す
// spherical=trueのときはcentroidを毎回単位長に正規化する（cosine用）
func kmeans(ctx context.Context, vectors [][]float64, k int, dist distance.Func, spherical bool, opts trainOptions) ([][]float64, []int, error) {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}
	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(opts.seed))

	centroids := make([][]float64, k)
	perm := rng.Perm(n)
	for j := 0; j < k; j++ {
		centroids[j] = cloneCentroid(vectors[perm[j]], spherical)
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < opts.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		changed, err := assignAll(ctx, vectors, centroids, dist, assignments, opts.workers)
		if err != nil {
			return nil, nil, err
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for j := range sums {
			sums[j] = make([]float64, dim)
		}
		for i, vec := range vectors {
			c := assignments[i]
			for d := 0; d < dim; d++ {
				sums[c][d] += vec[d]
			}
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				// 空クラスタはランダムな点で再初期化
				centroids[j] = cloneCentroid(vectors[rng.Intn(n)], spherical)
				continue
			}
			scale := 1 / float64(counts[j])
			for d := 0; d < dim; d++ {
				sums[j][d] *= scale
			}
			centroids[j] = cloneCentroid(sums[j], spherical)
		}
	}

	// 最終centroidに対する割り当てを確定させる
	if _, err := assignAll(ctx, vectors, centroids, dist, assignments, opts.workers); err != nil {
		return nil, nil, err
	}
	return centroids, assignments, nil
}

// assignAll は全点を最近傍centroidへ割り当て、変化があったかを返す
func assignAll(ctx context.Context, vectors, centroids [][]float64, dist distance.Func, assignments []int, workers int) (bool, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(vectors) + workers - 1) / workers
	if chunk == 0 {
		return false, nil
	}

	changedBy := make([]bool, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(vectors) {
			break
		}
		end := min(start+chunk, len(vectors))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				best := nearest(vectors[i], centroids, dist)
				if assignments[i] != best {
					assignments[i] = best
					changedBy[w] = true
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("failed to assign points: %w", err)
	}

	for _, c := range changedBy {
		if c {
			return true, nil
		}
	}
	return false, nil
}

// nearest は最も近いcentroidの番号を返す（同距離なら番号の小さい方）
func nearest(vec []float64, centroids [][]float64, dist distance.Func) int {
	best := -1
	bestDist := 0.0
	for j, c := range centroids {
		d := dist(vec, c)
		if best < 0 || d < bestDist {
			best = j
			bestDist = d
		}
	}
	return best
}

func cloneCentroid(v []float64, spherical bool) []float64 {
	if spherical {
		if n, ok := distance.Normalize(v); ok {
			return n
		}
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
