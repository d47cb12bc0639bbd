package jsonrpc

import (
	"context"

	"github.com/brbranch/vecstore/internal/service"
)

// handleRegister は vector.register を処理
func (h *Handler) handleRegister(ctx context.Context, params any) (any, error) {
	var p RegisterParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Register(ctx, &service.RegisterRequest{Description: p.Description})
}

// handleRegisterBatch は vector.register_batch を処理
// トランザクション全体が失敗した場合はエラーを返す（件ごとの失敗は結果に含める）
func (h *Handler) handleRegisterBatch(ctx context.Context, params any) (any, error) {
	var p RegisterBatchParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	resp, err := h.recordService.RegisterBatch(ctx, &service.RegisterBatchRequest{Descriptions: p.Descriptions})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// handleSearch は vector.search を処理
func (h *Handler) handleSearch(ctx context.Context, params any) (any, error) {
	var p SearchParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Search(ctx, p.ToRequest())
}

// handleAnswer は vector.answer を処理
func (h *Handler) handleAnswer(ctx context.Context, params any) (any, error) {
	var p SearchParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Answer(ctx, p.ToAnswerRequest())
}

// handleSimilar は vector.similar を処理
func (h *Handler) handleSimilar(ctx context.Context, params any) (any, error) {
	var p SimilarParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Similar(ctx, p.ToRequest())
}

// handleNeighbors は vector.neighbors を処理
func (h *Handler) handleNeighbors(ctx context.Context, params any) (any, error) {
	var p NeighborsParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Neighbors(ctx, p.ToRequest())
}

// handleGet は vector.get を処理
func (h *Handler) handleGet(ctx context.Context, params any) (any, error) {
	var p GetParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	return h.recordService.Get(ctx, p.ID)
}

// handleHealth は vector.health を処理
func (h *Handler) handleHealth(ctx context.Context) (any, error) {
	return h.recordService.Health(ctx)
}

// handleRebuildIndex は vector.rebuild_index を処理
func (h *Handler) handleRebuildIndex(ctx context.Context) (any, error) {
	return h.recordService.RebuildIndex(ctx)
}

// handleGetConfig は vector.get_config を処理
func (h *Handler) handleGetConfig(ctx context.Context) (any, error) {
	return h.configService.GetConfig(ctx)
}
