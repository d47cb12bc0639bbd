package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/distance"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/model"
)

const (
	// qdrantMetaPointID はメタ情報を保持するポイントのID
	qdrantMetaPointID = 1
	// qdrantApplyChunk はステージングバッファを適用する単位
	qdrantApplyChunk = 64
	// qdrantScrollPage は全件走査時のページサイズ
	qdrantScrollPage = 256
	// qdrantEfFactor はprobe数からhnsw_efを導く倍率
	qdrantEfFactor = 8
)

// qdrantHooks は障害注入用のフック（テスト用）
type qdrantHooks struct {
	beforeCommit func() error
}

// QdrantStore はQdrantを使用したStore実装
//
// Qdrantにはトランザクションがないため、バッチは検証済みのステージングバッファを
// チャンク単位で書き込み、適用済みオフセットを記録する。途中で失敗した場合は
// 適用済みのポイントを削除してバッチ全体を取り消す。
// IVFの代わりにQdrant内蔵のHNSWを使い、probe数はhnsw_efに換算する。
type QdrantStore struct {
	mu          sync.RWMutex // ID採番と初期化状態の保護
	client      *qdrant.Client
	url         string
	cfg         Config
	opts        options
	nextID      uint64
	initialized bool
	hooks       qdrantHooks
}

// sanitizeCollectionName はQdrantのコレクション名として使用できる文字列に変換する
func sanitizeCollectionName(name string) string {
	return strings.ReplaceAll(name, ":", "_")
}

// NewQdrantStore はQdrantStoreを作成する
func NewQdrantStore(urlStr string, cfg Config, opts ...Option) (*QdrantStore, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	host := parsedURL.Hostname()
	portStr := parsedURL.Port()
	// Qdrant gRPCポートはデフォルト6334（HTTPは6333）
	port := 6334
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			if p == 6333 {
				port = 6334
			} else {
				port = p
			}
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, ErrConnectionFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, ErrConnectionFailed
	}

	cfg.Collection = sanitizeCollectionName(cfg.Collection)
	return &QdrantStore{
		client: client,
		url:    urlStr,
		cfg:    cfg,
		opts:   buildOptions(opts),
	}, nil
}

func (s *QdrantStore) metaCollection() string {
	return s.cfg.Collection + "_meta"
}

// qdrantDistance はmetricに対応するQdrantの距離種別を返す
func qdrantDistance(m model.Metric) qdrant.Distance {
	if m == model.MetricL2 {
		return qdrant.Distance_Euclid
	}
	return qdrant.Distance_Cosine
}

// EnsureSchema はコレクションとメタ情報を用意し、次元を確認する（冪等）
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollection(ctx, s.cfg.Collection, uint64(s.cfg.Dim), qdrantDistance(s.cfg.Metric)); err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: err}
	}
	// メタ情報用コレクション（ダミーの1次元ベクトル）
	if err := s.ensureCollection(ctx, s.metaCollection(), 1, qdrant.Distance_Cosine); err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: err}
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.metaCollection(),
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(qdrantMetaPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: fmt.Errorf("failed to read meta: %w", err)}
	}

	if len(points) == 0 {
		if err := s.writeMeta(ctx, 0); err != nil {
			return &SchemaError{Collection: s.cfg.Collection, Err: err}
		}
		s.nextID = 0
		s.opts.logger.Info("created collection", "collection", s.cfg.Collection, "dim", s.cfg.Dim)
	} else {
		payload := points[0].Payload
		if dim := payload["dim"].GetIntegerValue(); dim != int64(s.cfg.Dim) {
			return &SchemaError{Collection: s.cfg.Collection, Err: fmt.Errorf("%w: collection %s has dim %d, configured %d",
				codec.ErrDimensionMismatch, s.cfg.Collection, dim, s.cfg.Dim)}
		}
		s.nextID = uint64(payload["next_id"].GetIntegerValue())
	}

	s.initialized = true
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string, size uint64, dist qdrant.Distance) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: dist,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// writeMeta は次元・metric・次のIDをメタ情報に書き込む
func (s *QdrantStore) writeMeta(ctx context.Context, nextID uint64) error {
	payload := make(map[string]*qdrant.Value)
	payload["dim"], _ = qdrant.NewValue(int64(s.cfg.Dim))
	payload["metric"], _ = qdrant.NewValue(string(s.cfg.Metric))
	payload["next_id"], _ = qdrant.NewValue(int64(nextID))

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.metaCollection(),
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(qdrantMetaPointID),
				Vectors: qdrant.NewVectors(1.0),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	return nil
}

// reserveIDs はn個の連番IDを予約し、先頭IDを返す
// 予約はメタ情報に永続化されるので、失敗したバッチのIDも再利用されない
func (s *QdrantStore) reserveIDs(ctx context.Context, n int) (uint64, error) {
	first := s.nextID + 1
	if err := s.writeMeta(ctx, s.nextID+uint64(n)); err != nil {
		return 0, err
	}
	s.nextID += uint64(n)
	return first, nil
}

// Close はストアをクローズする
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Ping は接続を確認する
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (s *QdrantStore) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// point はレコードをQdrantのポイントに変換する
// Qdrantはcosineコレクションのベクトルを正規化して保存するので、元のベクトルはpayloadにも持つ
func point(id uint64, vec []float64, lit, payload string, createdAt time.Time) *qdrant.PointStruct {
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	p := make(map[string]*qdrant.Value)
	p["payload"], _ = qdrant.NewValue(payload)
	p["embedding"], _ = qdrant.NewValue(lit)
	p["created_at"], _ = qdrant.NewValue(formatTime(createdAt))
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(id),
		Vectors: qdrant.NewVectors(f32...),
		Payload: p,
	}
}

// apply はポイントをチャンク単位で書き込む
// 失敗した場合は書き込んだ可能性のあるポイントを削除してからエラーを返す
func (s *QdrantStore) apply(ctx context.Context, log *slog.Logger, points []*qdrant.PointStruct) error {
	applied := 0
	for applied < len(points) {
		end := min(applied+qdrantApplyChunk, len(points))
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points[applied:end],
		}); err != nil {
			s.compensate(ctx, log, points[:end])
			return fmt.Errorf("failed to upsert points at offset %d: %w", applied, err)
		}
		applied = end
	}
	return nil
}

// compensate は適用済みのポイントを削除する
func (s *QdrantStore) compensate(ctx context.Context, log *slog.Logger, points []*qdrant.PointStruct) {
	if len(points) == 0 {
		return
	}
	ids := make([]*qdrant.PointId, len(points))
	for i, p := range points {
		ids[i] = p.Id
	}
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(ids...),
	}); err != nil {
		log.Error("failed to remove partially applied points", "count", len(ids), "error", err)
	}
}

// Insert は1件を追加する
func (s *QdrantStore) Insert(ctx context.Context, vector []float64, payload string) (*model.Record, error) {
	lit, err := codec.EncodeChecked(vector, s.cfg.Dim)
	if err != nil {
		return nil, &IngestError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	id, err := s.reserveIDs(ctx, 1)
	if err != nil {
		return nil, &IngestError{Err: err}
	}
	createdAt := s.opts.now()
	if err := s.apply(ctx, s.opts.logger, []*qdrant.PointStruct{point(id, vector, lit, payload, createdAt)}); err != nil {
		return nil, &IngestError{Err: err}
	}

	return &model.Record{
		ID:        int64(id),
		Vector:    append([]float64(nil), vector...),
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}

// InsertBatch はステージングバッファ経由で複数件を追加する
func (s *QdrantStore) InsertBatch(ctx context.Context, items []model.BatchItem) (*model.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	result := newBatchResult(items)
	log := s.opts.logger.With("batch_id", result.BatchID, "collection", s.cfg.Collection)
	buf := stageItems(ctx, log, result, items, s.cfg.Dim)
	if len(buf) == 0 {
		result.Tally()
		return result, nil
	}

	applyCtx := context.WithoutCancel(ctx)
	first, err := s.reserveIDs(applyCtx, len(buf))
	if err != nil {
		return abortBatch(log, result, "begin", err)
	}

	createdAt := s.opts.now()
	points := make([]*qdrant.PointStruct, len(buf))
	for i, st := range buf {
		points[i] = point(first+uint64(i), st.vector, st.literal, st.payload, createdAt)
	}
	if err := s.apply(applyCtx, log, points); err != nil {
		return abortBatch(log, result, "apply", err)
	}
	if s.hooks.beforeCommit != nil {
		if err := s.hooks.beforeCommit(); err != nil {
			s.compensate(applyCtx, log, points)
			return abortBatch(log, result, "commit", err)
		}
	}

	for i, st := range buf {
		result.Items[st.index].ID = int64(first + uint64(i))
		result.Items[st.index].CreatedAt = createdAt
	}
	result.Tally()
	log.Info("batch committed", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// Search はクエリに近い上位k件を返す
//
// probe数がリスト数以上、リスト数が0、またはmetricがコレクションと異なる場合は全件を正確に走査する。
// それ以外はHNSWで候補を取り、payloadのベクトルで距離を計算し直して並べる。
func (s *QdrantStore) Search(ctx context.Context, query []float64, k int, metric model.Metric, opts SearchOptions) ([]model.SearchHit, error) {
	if err := ValidateQuery(query, k, metric, s.cfg.Dim); err != nil {
		return nil, err
	}
	if !s.isInitialized() {
		return nil, ErrNotInitialized
	}
	dist, err := distance.For(metric)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	if metric != s.cfg.Metric {
		return s.scanAll(ctx, query, k, dist)
	}

	probes := opts.Probes
	if probes <= 0 {
		probes = s.cfg.ProbeCount
	}
	if probes <= 0 {
		probes = ivf.DefaultProbes(s.cfg.ListCount)
	}
	exact := s.cfg.ListCount == 0 || probes >= s.cfg.ListCount
	ef := min(uint64(max(k, probes)), math.MaxUint64/qdrantEfFactor) * qdrantEfFactor

	f32 := make([]float32, len(query))
	for i, v := range query {
		f32[i] = float32(v)
	}

	// 境界の同距離をID順で並べ直せるよう少し多めに取る
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(f32...),
		Limit:          qdrant.PtrOf(uint64(k) + qdrantEfFactor),
		WithPayload:    qdrant.NewWithPayload(true),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(ef),
			Exact:  qdrant.PtrOf(exact),
		},
	})
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("failed to query points: %w", err)}
	}

	top := newTopK(k)
	for _, p := range resp {
		hit, ok := s.toHit(p.GetId().GetNum(), p.Payload, query, dist)
		if ok {
			top.offer(hit)
		}
	}
	return top.sorted(), nil
}

// scanAll はScrollで全ポイントを走査して上位k件を返す
func (s *QdrantStore) scanAll(ctx context.Context, query []float64, k int, dist distance.Func) ([]model.SearchHit, error) {
	top := newTopK(k)
	next := uint64(0)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Offset:         qdrant.NewIDNum(next),
			Limit:          qdrant.PtrOf(uint32(qdrantScrollPage)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, &QueryError{Err: fmt.Errorf("failed to scroll points: %w", err)}
		}
		for _, p := range points {
			id := p.GetId().GetNum()
			if hit, ok := s.toHit(id, p.Payload, query, dist); ok {
				top.offer(hit)
			}
			if id >= next {
				next = id + 1
			}
		}
		if len(points) < qdrantScrollPage {
			break
		}
	}
	return top.sorted(), nil
}

// toHit はpayloadのベクトルから距離を計算する。壊れたベクトルは除外する
func (s *QdrantStore) toHit(id uint64, payload map[string]*qdrant.Value, query []float64, dist distance.Func) (model.SearchHit, bool) {
	vec, err := codec.DecodeDim(payload["embedding"].GetStringValue(), s.cfg.Dim)
	if err != nil {
		s.opts.logger.Warn("skipping corrupt vector", "id", id, "error", err)
		return model.SearchHit{}, false
	}
	hit := model.SearchHit{
		ID:       int64(id),
		Distance: dist(query, vec),
		Payload:  payload["payload"].GetStringValue(),
	}
	hit.CreatedAt = decodeCreatedAt(s.opts.logger, int64(id), payload["created_at"].GetStringValue())
	return hit, true
}

// Get はIDでレコードを取得する
func (s *QdrantStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	if !s.isInitialized() {
		return nil, ErrNotInitialized
	}
	if id <= 0 {
		return nil, ErrNotFound
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get point: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	payload := points[0].Payload
	vec, err := codec.DecodeDim(payload["embedding"].GetStringValue(), s.cfg.Dim)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptVector, id, err)
	}
	rec := &model.Record{ID: id, Vector: vec, Payload: payload["payload"].GetStringValue()}
	rec.CreatedAt = decodeCreatedAt(s.opts.logger, id, payload["created_at"].GetStringValue())
	return rec, nil
}

// Count はポイント件数を返す
func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	if !s.isInitialized() {
		return 0, ErrNotInitialized
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int64(n), nil
}

// RebuildIndex はQdrant側のHNSWが自動で維持されるので件数を確認するだけ
func (s *QdrantStore) RebuildIndex(ctx context.Context) (ivf.Stats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return ivf.Stats{}, err
	}
	stats := s.IndexStats()
	stats.Indexed = uint64(n)
	s.opts.logger.Info("index is maintained by qdrant", "collection", s.cfg.Collection, "records", n)
	return stats, nil
}

// IndexStats はインデックス設定を返す
func (s *QdrantStore) IndexStats() ivf.Stats {
	return ivf.Stats{
		Built:        s.cfg.ListCount > 0,
		Metric:       s.cfg.Metric,
		Lists:        s.cfg.ListCount,
		DefaultProbe: ivf.DefaultProbes(s.cfg.ListCount),
	}
}
