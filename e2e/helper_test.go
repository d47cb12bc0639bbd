//go:build e2e || qdrant_e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/brbranch/vecstore/internal/config"
	"github.com/brbranch/vecstore/internal/embedder"
	"github.com/brbranch/vecstore/internal/jsonrpc"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// testDim はe2eで使うベクトル次元
const testDim = 256

// designs はe2eで投入する設計説明
var designs = []string{
	"payment gateway with retry queue and idempotency keys",
	"user profile cache backed by redis",
	"order service publishing events to kafka",
	"payment reconciliation batch job",
	"image thumbnail worker pool",
	"search index over product catalog",
}

// RawResponse はJSON-RPCレスポンスをそのまま保持する
type RawResponse struct {
	ID     any             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *model.RPCError `json:"error"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestHandler は実際のストアとローカルEmbedderでHandlerを構築する
// mutateで設定を調整できる（nil可）
func setupTestHandler(t *testing.T, mutate func(cfg *model.Config)) *jsonrpc.Handler {
	t.Helper()

	cfg := config.DefaultConfig("", t.TempDir())
	cfg.Store.Dim = testDim
	cfg.Store.ListCount = 0
	if mutate != nil {
		mutate(cfg)
	}

	emb, err := embedder.NewLocalEmbedder(cfg.Store.Dim)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	vs, err := vectorstore.New(cfg.Store, vectorstore.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	t.Cleanup(func() { vs.Close() })
	if err := vs.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	records := service.NewRecordService(emb, vs, quietLogger())
	configs := service.NewConfigService(config.NewManagerWithConfig(cfg))
	return jsonrpc.New(records, configs, quietLogger())
}

// callRaw はメソッドを呼び出してレスポンスをデコードする
func callRaw(t *testing.T, h *jsonrpc.Handler, method string, params any) *RawResponse {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	var resp RawResponse
	if err := json.Unmarshal(h.Handle(context.Background(), body), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return &resp
}

// call はエラーなしを期待してresultをoutにデコードする
func call(t *testing.T, h *jsonrpc.Handler, method string, params any, out any) {
	t.Helper()
	resp := callRaw(t, h, method, params)
	if resp.Error != nil {
		t.Fatalf("%s returned error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			t.Fatalf("failed to decode %s result: %v", method, err)
		}
	}
}

// expectError は指定コードのエラーを期待する
func expectError(t *testing.T, h *jsonrpc.Handler, method string, params any, code int) {
	t.Helper()
	resp := callRaw(t, h, method, params)
	if resp.Error == nil {
		t.Fatalf("%s: expected error %d, got result %s", method, code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("%s: expected error %d, got %d (%s)", method, code, resp.Error.Code, resp.Error.Message)
	}
}

func callRegister(t *testing.T, h *jsonrpc.Handler, description string) *service.RegisterResponse {
	t.Helper()
	var resp service.RegisterResponse
	call(t, h, "vector.register", map[string]any{"description": description}, &resp)
	return &resp
}

// BatchResult はvector.register_batchの結果
type BatchResult struct {
	BatchID string `json:"batch_id"`
	OK      int    `json:"ok"`
	Fail    int    `json:"fail"`
	Items   []struct {
		Index int    `json:"index"`
		ID    int64  `json:"id"`
		Error string `json:"error"`
	} `json:"items"`
}

func callRegisterBatch(t *testing.T, h *jsonrpc.Handler, descriptions []string) *BatchResult {
	t.Helper()
	var resp BatchResult
	call(t, h, "vector.register_batch", map[string]any{"descriptions": descriptions}, &resp)
	return &resp
}

func callSearch(t *testing.T, h *jsonrpc.Handler, params map[string]any) *service.SearchResponse {
	t.Helper()
	var resp service.SearchResponse
	call(t, h, "vector.search", params, &resp)
	return &resp
}

func ids(results []service.SearchResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
