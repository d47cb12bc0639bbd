// Package jsonrpc implements JSON-RPC 2.0 handlers for vecstore.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/embedder"
	"github.com/brbranch/vecstore/internal/llm"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/pool"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/store"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// Handler はJSON-RPCリクエストを処理する
type Handler struct {
	recordService service.RecordService
	configService service.ConfigService
	logger        *slog.Logger
}

// New は新しいHandlerを生成
func New(recordService service.RecordService, configService service.ConfigService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		recordService: recordService,
		configService: configService,
		logger:        logger,
	}
}

// Handle はJSON-RPCリクエスト（単体または配列のバッチ）を処理する
// 応答は *model.Response / *model.ErrorResponse（バッチならその配列）のJSON
// 応答すべきものがない（通知のみ）場合はnilを返す
func (h *Handler) Handle(ctx context.Context, requestBytes []byte) []byte {
	trimmed := bytes.TrimLeft(requestBytes, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return h.handleBatch(ctx, trimmed)
	}
	resp := h.handleOne(ctx, requestBytes)
	if resp == nil {
		return nil
	}
	b, _ := json.Marshal(resp)
	return b
}

// handleBatch は配列の各要素を順に処理し、応答を同じ順で返す
func (h *Handler) handleBatch(ctx context.Context, requestBytes []byte) []byte {
	var raws []json.RawMessage
	if err := json.Unmarshal(requestBytes, &raws); err != nil {
		b, _ := json.Marshal(model.NewParseError(err.Error()))
		return b
	}
	if len(raws) == 0 {
		b, _ := json.Marshal(model.NewInvalidRequest(nil, "empty batch"))
		return b
	}

	responses := make([]any, 0, len(raws))
	for _, raw := range raws {
		if resp := h.handleOne(ctx, raw); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	b, _ := json.Marshal(responses)
	return b
}

// handleOne は1件のリクエストを処理する
// 戻り値は *model.Response か *model.ErrorResponse、通知ならnil
func (h *Handler) handleOne(ctx context.Context, requestBytes []byte) any {
	var req model.Request
	if err := json.Unmarshal(requestBytes, &req); err != nil {
		return model.NewParseError(err.Error())
	}
	if req.JSONRPC != model.JSONRPCVersion {
		return model.NewInvalidRequest(req.ID, "jsonrpc must be 2.0")
	}
	if req.Method == "" {
		return model.NewInvalidRequest(req.ID, "method is required")
	}

	// MCPの通知（notifications/initialized など）は受け取るだけ
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		h.logger.Debug("notification received", "method", req.Method)
		return nil
	}

	result, err := h.dispatch(ctx, req.ID, req.Method, req.Params)
	if err != nil {
		resp := mapError(req.ID, err)
		if resp.Error.Code == model.ErrCodeInternalError {
			h.logger.Error("request failed", "method", req.Method, "error", err)
		}
		return resp
	}
	return model.NewResponse(req.ID, result)
}

// dispatch はメソッドに応じて適切なハンドラーを呼び出す
func (h *Handler) dispatch(ctx context.Context, id any, method string, params any) (any, error) {
	switch method {
	case "initialize":
		return h.handleInitialize(ctx, params)
	case "tools/list":
		return h.handleToolsList(ctx, params)
	case "tools/call":
		return h.handleToolsCall(ctx, id, params)
	default:
		return h.dispatchInternal(ctx, method, params)
	}
}

// dispatchInternal は vector.* メソッドを呼び出す（tools/callからも使う）
func (h *Handler) dispatchInternal(ctx context.Context, method string, params any) (any, error) {
	switch method {
	case "vector.register":
		return h.handleRegister(ctx, params)
	case "vector.register_batch":
		return h.handleRegisterBatch(ctx, params)
	case "vector.search":
		return h.handleSearch(ctx, params)
	case "vector.answer":
		return h.handleAnswer(ctx, params)
	case "vector.similar":
		return h.handleSimilar(ctx, params)
	case "vector.neighbors":
		return h.handleNeighbors(ctx, params)
	case "vector.get":
		return h.handleGet(ctx, params)
	case "vector.health":
		return h.handleHealth(ctx)
	case "vector.rebuild_index":
		return h.handleRebuildIndex(ctx)
	case "vector.get_config":
		return h.handleGetConfig(ctx)
	default:
		return nil, &methodNotFoundError{method: method}
	}
}

// mapError はサービスエラーをJSON-RPCエラーに変換
func mapError(id any, err error) *model.ErrorResponse {
	// method not found
	var mnfErr *methodNotFoundError
	if errors.As(err, &mnfErr) {
		return model.NewMethodNotFound(id, mnfErr.method)
	}

	// API key missing
	if errors.Is(err, embedder.ErrAPIKeyRequired) {
		return model.NewErrorResponse(id, model.ErrCodeAPIKeyMissing, err.Error(), nil)
	}

	// embedding provider
	var embErr *embedder.EmbeddingError
	if errors.As(err, &embErr) {
		return model.NewErrorResponse(id, model.ErrCodeProviderError, err.Error(), nil)
	}

	// chat model
	var compErr *llm.CompletionError
	if errors.As(err, &compErr) {
		return model.NewErrorResponse(id, model.ErrCodeCompletionFailed, err.Error(), nil)
	}

	// dimension mismatch
	if errors.Is(err, codec.ErrDimensionMismatch) {
		return model.NewErrorResponse(id, model.ErrCodeDimensionMismatch, err.Error(), nil)
	}

	// invalid params
	if errors.Is(err, service.ErrDescriptionRequired) ||
		errors.Is(err, service.ErrTextRequired) ||
		errors.Is(err, service.ErrVectorRequired) ||
		errors.Is(err, service.ErrIDRequired) ||
		errors.Is(err, errInvalidParams) ||
		vectorstore.IsValidation(err) {
		return model.NewInvalidParams(id, err.Error())
	}

	// not found
	if errors.Is(err, store.ErrNotFound) {
		return model.NewErrorResponse(id, model.ErrCodeNotFound, "Record not found", nil)
	}

	// busy or unavailable
	if errors.Is(err, pool.ErrLeaseTimeout) ||
		errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, store.ErrConnectionFailed) ||
		errors.Is(err, store.ErrNotInitialized) {
		return model.NewErrorResponse(id, model.ErrCodeUnavailable, err.Error(), nil)
	}

	// internal error
	return model.NewInternalError(id, err.Error())
}

// methodNotFoundError はメソッド未検出エラー
type methodNotFoundError struct {
	method string
}

func (e *methodNotFoundError) Error() string {
	return "method not found: " + e.method
}

// errInvalidParams はパラメータの形式エラー
var errInvalidParams = errors.New("invalid params")
