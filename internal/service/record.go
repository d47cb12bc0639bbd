package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brbranch/vecstore/internal/embedder"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/llm"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/store"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// recordService はRecordServiceの実装
type recordService struct {
	embedder     embedder.Embedder
	store        *vectorstore.VectorStore
	chat         llm.ChatModel
	contextRunes int
	workers      int
	logger       *slog.Logger
}

// RecordOption はRecordServiceのオプション
type RecordOption func(*recordService)

// WithChatModel はAnswerで使うチャットモデルを設定する
// contextRunesはヒット1件あたりプロンプトに入れる文字数（0以下なら既定値）
func WithChatModel(chat llm.ChatModel, contextRunes int) RecordOption {
	return func(s *recordService) {
		s.chat = chat
		s.contextRunes = contextRunes
	}
}

// NewRecordService はRecordServiceの新しいインスタンスを作成
func NewRecordService(emb embedder.Embedder, vs *vectorstore.VectorStore, logger *slog.Logger, opts ...RecordOption) RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &recordService{
		embedder: emb,
		store:    vs,
		workers:  DefaultWorkers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register はテキストを埋め込んで1件登録する
func (s *recordService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	text := strings.TrimSpace(req.Description)
	if text == "" {
		return nil, ErrDescriptionRequired
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	rec, err := s.store.Insert(ctx, vec, text)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}

	return &RegisterResponse{
		ID:        rec.ID,
		CreatedAt: formatTime(rec.CreatedAt),
		Dim:       len(vec),
	}, nil
}

// RegisterBatch は複数のテキストを埋め込み、1トランザクションで登録する
//
// 空のテキストや埋め込みに失敗したテキストは、その件だけ失敗として報告する。
// 残りの件はストアの結果と元の位置を保ったまま統合する。
// ストアのトランザクションが失敗した場合は、レスポンスとエラーの両方を返す。
func (s *recordService) RegisterBatch(ctx context.Context, req *RegisterBatchRequest) (*RegisterBatchResponse, error) {
	n := len(req.Descriptions)
	resp := &RegisterBatchResponse{Items: make([]BatchItem, n)}
	vectors := make([][]float64, n)
	texts := make([]string, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, raw := range req.Descriptions {
		resp.Items[i].Index = i
		text := strings.TrimSpace(raw)
		if text == "" {
			resp.Items[i].Err = ErrDescriptionRequired
			continue
		}
		texts[i] = text
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, text)
			if err != nil {
				resp.Items[i].Err = fmt.Errorf("failed to generate embedding: %w", err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	g.Wait()

	// 埋め込みに成功した件だけをストアに渡し、元の位置を覚えておく
	var items []model.BatchItem
	var origin []int
	for i := range resp.Items {
		if resp.Items[i].Err != nil {
			s.logger.Warn("batch item rejected before insert", "index", i, "error", resp.Items[i].Err)
			continue
		}
		items = append(items, model.BatchItem{Vector: vectors[i], Payload: texts[i]})
		origin = append(origin, i)
	}

	if len(items) > 0 {
		result, err := s.store.InsertBatch(ctx, items)
		if result != nil {
			resp.BatchID = result.BatchID
			for j, it := range result.Items {
				dst := &resp.Items[origin[j]]
				dst.ID = it.ID
				dst.Err = it.Err
				if it.OK() {
					dst.CreatedAt = formatTime(it.CreatedAt)
				}
			}
		}
		if err != nil {
			resp.tally()
			return resp, fmt.Errorf("failed to insert batch: %w", err)
		}
	}

	resp.tally()
	return resp, nil
}

func (r *RegisterBatchResponse) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, it := range r.Items {
		if it.Err == nil {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// Search はテキストに近いレコードを検索する
func (s *recordService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	k, metric, err := searchParams(req.TopK, req.Metric)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	hits, err := s.store.Search(ctx, vec, k, metric, vectorstore.WithProbes(req.Probes))
	if err != nil {
		return nil, err
	}
	return toSearchResponse(metric, hits), nil
}

// Answer はテキストで検索し、上位のヒットを根拠にチャットモデルで回答する
// チャットモデルが無い場合やヒットが無い場合は、回答を生成せず定型文とヒットを返す
func (s *recordService) Answer(ctx context.Context, req *AnswerRequest) (*AnswerResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	k, metric, err := searchParams(req.TopK, req.Metric)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	hits, err := s.store.Search(ctx, vec, k, metric, vectorstore.WithProbes(req.Probes))
	if err != nil {
		return nil, err
	}

	resp := &AnswerResponse{Metric: metric, Results: toSearchResponse(metric, hits).Results}
	switch {
	case s.chat == nil:
		resp.Answer = NoChatModelAnswer
		return resp, nil
	case len(hits) == 0:
		resp.Answer = NoHitsAnswer
		return resp, nil
	}

	passages := make([]llm.Passage, len(hits))
	for i, h := range hits {
		passages[i] = llm.Passage{ID: h.ID, Distance: h.Distance, Text: h.Payload}
	}
	answer, err := s.chat.Complete(ctx, llm.BuildPrompt(text, metric, passages, s.contextRunes))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	resp.Answer = answer
	resp.Generated = true
	resp.Model = s.chat.ModelName()
	return resp, nil
}

// Similar はベクトルに近いレコードを検索する
func (s *recordService) Similar(ctx context.Context, req *SimilarRequest) (*SearchResponse, error) {
	if len(req.Vector) == 0 {
		return nil, ErrVectorRequired
	}
	k, metric, err := searchParams(req.TopK, req.Metric)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Search(ctx, req.Vector, k, metric, vectorstore.WithProbes(req.Probes))
	if err != nil {
		return nil, err
	}
	return toSearchResponse(metric, hits), nil
}

// Neighbors は既存レコードに近いレコードを、そのレコード自身を除いて返す
func (s *recordService) Neighbors(ctx context.Context, req *NeighborsRequest) (*SearchResponse, error) {
	if req.ID <= 0 {
		return nil, ErrIDRequired
	}
	k, metric, err := searchParams(req.TopK, req.Metric)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Neighbors(ctx, req.ID, k, metric, vectorstore.WithProbes(req.Probes))
	if err != nil {
		return nil, err
	}
	return toSearchResponse(metric, hits), nil
}

// Get はIDでレコードを取得する
func (s *recordService) Get(ctx context.Context, id int64) (*GetResponse, error) {
	if id <= 0 {
		return nil, ErrIDRequired
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetResponse{
		ID:        rec.ID,
		Payload:   rec.Payload,
		CreatedAt: formatTime(rec.CreatedAt),
		ListNo:    rec.ListNo,
		Vector:    rec.Vector,
	}, nil
}

// Health はストアとEmbedderの状態を返す
func (s *recordService) Health(ctx context.Context) (*HealthResponse, error) {
	h := s.store.Health(ctx)
	return &HealthResponse{
		Status:    h.Status,
		ModelName: s.embedder.ModelName(),
		Dim:       s.embedder.Dimension(),
		Store:     h,
	}, nil
}

// RebuildIndex はIVFインデックスを学習し直す
func (s *recordService) RebuildIndex(ctx context.Context) (*ivf.Stats, error) {
	stats, err := s.store.RebuildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return &stats, nil
}

// searchParams はTopKとmetricの既定値を補い、範囲を検証する
func searchParams(topK *int, metricName string) (int, model.Metric, error) {
	k := DefaultTopK
	if topK != nil {
		k = *topK
	}
	if k < 1 || k > MaxTopK {
		return 0, "", fmt.Errorf("%w: %w (got %d)", store.ErrInvalidArgument, ErrInvalidTopK, k)
	}
	metric, err := model.ParseMetric(metricName)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}
	return k, metric, nil
}

func toSearchResponse(metric model.Metric, hits []model.SearchHit) *SearchResponse {
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{
			ID:             h.ID,
			PayloadExcerpt: excerpt(h.Payload, ExcerptRunes),
			Score:          h.Distance,
			CreatedAt:      formatTime(h.CreatedAt),
		}
	}
	return &SearchResponse{Metric: metric, Results: results}
}

// excerpt は先頭nルーンを返す
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// formatTime はUTCのRFC3339形式に変換する（ゼロ値は空文字）
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
