package store

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/distance"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/model"
)

// parallelScanThreshold を超える候補数なら走査を分割する
const parallelScanThreshold = 2048

// memoryHooks は障害注入用のフック（テスト用）
type memoryHooks struct {
	beforeCommit func() error
}

// MemoryStore はインメモリのStore実装
// ネストしたトランザクションがないので、バッチはステージングバッファを
// 1件ずつ適用し、適用済みオフセットまでを巻き戻すことでSAVEPOINTを再現する
type MemoryStore struct {
	mu          sync.RWMutex
	cfg         Config
	opts        options
	records     []*model.Record // ID昇順
	byID        map[int64]*model.Record
	nextID      int64
	index       *ivf.Index
	batches     []string
	initialized bool
	hooks       memoryHooks
}

// NewMemoryStore はMemoryStoreを作成する
func NewMemoryStore(cfg Config, opts ...Option) (*MemoryStore, error) {
	ix, err := ivf.New(cfg.Dim, cfg.Metric)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		cfg:   cfg,
		opts:  buildOptions(opts),
		byID:  make(map[int64]*model.Record),
		index: ix,
	}, nil
}

// EnsureSchema はストアを初期化する（冪等）
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	if !s.index.Built() && s.cfg.ListCount > 0 && len(s.records) > 0 {
		if err := s.rebuild(ctx); err != nil {
			return &SchemaError{Collection: s.cfg.Collection, Err: err}
		}
	}
	return nil
}

// Close はストアをクローズする
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.byID = make(map[int64]*model.Record)
	s.initialized = false
	return nil
}

// Ping は常に成功する
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Insert は1件を追加する
func (s *MemoryStore) Insert(ctx context.Context, vector []float64, payload string) (*model.Record, error) {
	if err := codec.Validate(vector, s.cfg.Dim); err != nil {
		return nil, &IngestError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	rec := s.appendRecord(append([]float64(nil), vector...), payload, s.opts.now())
	s.commitRecord(s.opts.logger, rec)
	return copyRecord(rec), nil
}

// appendRecord はIDを採番してレコードを末尾に積む（byIDとインデックスへの反映はcommitRecord）
func (s *MemoryStore) appendRecord(vector []float64, payload string, createdAt time.Time) *model.Record {
	s.nextID++
	rec := &model.Record{
		ID:        s.nextID,
		Vector:    vector,
		Payload:   payload,
		CreatedAt: createdAt,
	}
	if l := s.index.Assign(vector); l != ivf.NoList {
		rec.ListNo = &l
	}
	s.records = append(s.records, rec)
	return rec
}

func (s *MemoryStore) commitRecord(log *slog.Logger, rec *model.Record) {
	s.byID[rec.ID] = rec
	if rec.ListNo != nil {
		if err := s.index.Add(rec.ID, *rec.ListNo); err != nil {
			log.Warn("failed to absorb record into index", "id", rec.ID, "error", err)
		}
	}
}

// InsertBatch はステージングバッファ経由で複数件を追加する
func (s *MemoryStore) InsertBatch(ctx context.Context, items []model.BatchItem) (*model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	result := newBatchResult(items)
	log := s.opts.logger.With("batch_id", result.BatchID, "collection", s.cfg.Collection)
	buf := stageItems(ctx, log, result, items, s.cfg.Dim)

	createdAt := s.opts.now()
	base := len(s.records)
	committed := 0
	for _, st := range buf {
		rec := s.appendRecord(st.vector, st.payload, createdAt)
		committed++
		result.Items[st.index].ID = rec.ID
		result.Items[st.index].CreatedAt = createdAt
	}

	if s.hooks.beforeCommit != nil {
		if err := s.hooks.beforeCommit(); err != nil {
			s.records = s.records[:base]
			return abortBatch(log, result, "commit", err)
		}
	}

	for _, rec := range s.records[base : base+committed] {
		s.commitRecord(log, rec)
	}
	s.batches = append(s.batches, result.BatchID)

	result.Tally()
	log.Info("batch committed", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// Search はクエリに近い上位k件を返す
func (s *MemoryStore) Search(ctx context.Context, query []float64, k int, metric model.Metric, opts SearchOptions) ([]model.SearchHit, error) {
	if err := ValidateQuery(query, k, metric, s.cfg.Dim); err != nil {
		return nil, err
	}
	dist, err := distance.For(metric)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	probes := opts.Probes
	if probes <= 0 {
		probes = s.cfg.ProbeCount
	}
	candidates := s.records
	if lists, full := s.index.Plan(query, metric, probes, k); !full {
		members := s.index.Members(lists)
		candidates = make([]*model.Record, 0, members.GetCardinality())
		for _, rec := range s.records {
			if rec.ListNo == nil || members.Contains(uint64(rec.ID)) {
				candidates = append(candidates, rec)
			}
		}
	}

	hits, err := scanParallel(ctx, candidates, query, k, dist)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	return hits, nil
}

// scanParallel は候補を分割して距離を計算し、上位k件を統合する
func scanParallel(ctx context.Context, candidates []*model.Record, query []float64, k int, dist distance.Func) ([]model.SearchHit, error) {
	workers := 1
	if len(candidates) > parallelScanThreshold {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(candidates) + workers - 1) / workers
	parts := make([][]model.SearchHit, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(candidates) {
			break
		}
		end := min(start+chunk, len(candidates))
		g.Go(func() error {
			top := newTopK(k)
			for _, rec := range candidates[start:end] {
				if err := gctx.Err(); err != nil {
					return err
				}
				top.offer(model.SearchHit{
					ID:        rec.ID,
					Distance:  dist(query, rec.Vector),
					Payload:   rec.Payload,
					CreatedAt: rec.CreatedAt,
				})
			}
			parts[w] = top.sorted()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeTopK(k, parts...), nil
}

// Get はIDでレコードを取得する
func (s *MemoryStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// Count はレコード件数を返す
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, ErrNotInitialized
	}
	return int64(len(s.records)), nil
}

// RebuildIndex はcentroidを学習し直す
func (s *MemoryStore) RebuildIndex(ctx context.Context) (ivf.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ivf.Stats{}, ErrNotInitialized
	}
	if err := s.rebuild(ctx); err != nil {
		return ivf.Stats{}, err
	}
	return s.index.Stats(), nil
}

func (s *MemoryStore) rebuild(ctx context.Context) error {
	if s.cfg.ListCount == 0 {
		return nil
	}
	points := make([]ivf.Point, len(s.records))
	for i, rec := range s.records {
		points[i] = ivf.Point{ID: rec.ID, Vector: rec.Vector}
	}
	ix, err := ivf.Train(ctx, s.cfg.Dim, s.cfg.Metric, points, s.cfg.ListCount)
	if err != nil {
		return err
	}
	if err := ix.EachMember(func(list int, id int64) error {
		l := list
		s.byID[id].ListNo = &l
		return nil
	}); err != nil {
		return err
	}
	s.index = ix
	s.opts.logger.Info("index rebuilt", "collection", s.cfg.Collection, "lists", ix.Lists(), "records", len(points))
	return nil
}

// IndexStats はIVFインデックスの統計情報を返す
func (s *MemoryStore) IndexStats() ivf.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Stats()
}

func copyRecord(rec *model.Record) *model.Record {
	out := *rec
	out.Vector = append([]float64(nil), rec.Vector...)
	if rec.ListNo != nil {
		l := *rec.ListNo
		out.ListNo = &l
	}
	return &out
}
