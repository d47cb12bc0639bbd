//go:build e2e

package e2e

import (
	"fmt"
	"slices"
	"testing"

	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/service"
)

// TestE2E_RegisterAndSearch は登録したテキストが検索で上位に来ることを検証
func TestE2E_RegisterAndSearch(t *testing.T) {
	h := setupTestHandler(t, nil)

	var first *service.RegisterResponse
	for i, d := range designs {
		resp := callRegister(t, h, d)
		if resp.ID != int64(i+1) {
			t.Errorf("ids should be assigned in order, got %d for #%d", resp.ID, i)
		}
		if resp.Dim != testDim || resp.CreatedAt == "" {
			t.Errorf("unexpected register response %+v", resp)
		}
		if first == nil {
			first = resp
		}
	}

	resp := callSearch(t, h, map[string]any{"text": designs[0], "k": 3})
	if resp.Metric != model.MetricCosine || len(resp.Results) != 3 {
		t.Fatalf("unexpected search response %+v", resp)
	}
	if resp.Results[0].ID != first.ID || resp.Results[0].Score > 1e-9 {
		t.Errorf("identical text should rank first with distance 0, got %+v", resp.Results[0])
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score < resp.Results[i-1].Score {
			t.Errorf("results must be sorted by distance: %+v", resp.Results)
		}
	}

	// 省略時のkは5
	resp = callSearch(t, h, map[string]any{"text": "payment"})
	if len(resp.Results) != service.DefaultTopK {
		t.Errorf("expected %d results by default, got %d", service.DefaultTopK, len(resp.Results))
	}

	// k が件数より多い場合は全件
	resp = callSearch(t, h, map[string]any{"text": "payment", "k": 100, "metric": "l2"})
	if len(resp.Results) != len(designs) || resp.Metric != model.MetricL2 {
		t.Errorf("expected all %d records with l2, got %d (%s)", len(designs), len(resp.Results), resp.Metric)
	}
}

// TestE2E_RegisterBatch_PartialFailure は一部失敗しても残りがコミットされることを検証
func TestE2E_RegisterBatch_PartialFailure(t *testing.T) {
	h := setupTestHandler(t, nil)

	resp := callRegisterBatch(t, h, []string{"alpha design", "   ", "beta design"})
	if resp.OK != 2 || resp.Fail != 1 || resp.BatchID == "" {
		t.Fatalf("unexpected batch result %+v", resp)
	}
	if resp.Items[1].Error == "" || resp.Items[1].ID != 0 {
		t.Errorf("blank item should fail without id, got %+v", resp.Items[1])
	}
	if resp.Items[0].ID == 0 || resp.Items[2].ID <= resp.Items[0].ID {
		t.Errorf("successful ids should ascend, got %+v", resp.Items)
	}

	var got service.GetResponse
	call(t, h, "vector.get", map[string]any{"id": resp.Items[2].ID}, &got)
	if got.Payload != "beta design" || len(got.Vector) != testDim {
		t.Errorf("unexpected record %+v", got)
	}

	var health service.HealthResponse
	call(t, h, "vector.health", nil, &health)
	if health.Store.Records != 2 {
		t.Errorf("expected 2 records, got %d", health.Store.Records)
	}
}

// TestE2E_SimilarAndNeighbors はベクトル検索と近傍検索を検証
func TestE2E_SimilarAndNeighbors(t *testing.T) {
	h := setupTestHandler(t, nil)
	for _, d := range designs {
		callRegister(t, h, d)
	}

	var rec service.GetResponse
	call(t, h, "vector.get", map[string]any{"id": 4}, &rec)

	var similar service.SearchResponse
	call(t, h, "vector.similar", map[string]any{"vector": rec.Vector, "k": 1}, &similar)
	if len(similar.Results) != 1 || similar.Results[0].ID != 4 {
		t.Errorf("stored vector should find itself, got %+v", similar.Results)
	}

	var neighbors service.SearchResponse
	call(t, h, "vector.neighbors", map[string]any{"id": 4, "k": 3}, &neighbors)
	if len(neighbors.Results) != 3 || slices.Contains(ids(neighbors.Results), 4) {
		t.Errorf("neighbors must exclude the record itself, got %v", ids(neighbors.Results))
	}
	if !slices.Contains(ids(neighbors.Results), 1) {
		t.Errorf("the other payment design should be among the nearest, got %v", ids(neighbors.Results))
	}
}

// TestE2E_IVF_FullProbeMatchesExact は全リストを探索した結果が全件走査と一致することを検証
func TestE2E_IVF_FullProbeMatchesExact(t *testing.T) {
	const lists = 4
	h := setupTestHandler(t, func(cfg *model.Config) {
		cfg.Store.ListCount = lists
	})

	texts := make([]string, 0, 40)
	for i := range 40 {
		texts = append(texts, fmt.Sprintf("%s variant %d", designs[i%len(designs)], i))
	}
	callRegisterBatch(t, h, texts)

	query := map[string]any{"text": "payment retry job", "k": 10}
	exact := callSearch(t, h, query)

	var stats struct {
		Built   bool   `json:"built"`
		Lists   int    `json:"lists"`
		Indexed uint64 `json:"indexed"`
	}
	call(t, h, "vector.rebuild_index", nil, &stats)
	if !stats.Built || stats.Lists != lists || stats.Indexed != 40 {
		t.Fatalf("unexpected rebuild stats %+v", stats)
	}

	var rec service.GetResponse
	call(t, h, "vector.get", map[string]any{"id": 1}, &rec)
	if rec.ListNo == nil || *rec.ListNo < 0 || *rec.ListNo >= lists {
		t.Errorf("record should be assigned to a list, got %v", rec.ListNo)
	}

	full := callSearch(t, h, map[string]any{"text": "payment retry job", "k": 10, "probes": lists})
	if !slices.Equal(ids(exact.Results), ids(full.Results)) {
		t.Errorf("full probe should match exact scan:\nexact %v\nfull  %v", ids(exact.Results), ids(full.Results))
	}

	// probes=1でも最低k件まではリストを広げる
	narrow := callSearch(t, h, map[string]any{"text": "payment retry job", "k": 10, "probes": 1})
	if len(narrow.Results) != 10 {
		t.Errorf("narrow probe should still return k results, got %d", len(narrow.Results))
	}

	// 再構築後の新規レコードも検索対象になる
	added := callRegister(t, h, "brand new ledger design")
	after := callSearch(t, h, map[string]any{"text": "brand new ledger design", "k": 1, "probes": 1})
	if len(after.Results) != 1 || after.Results[0].ID != added.ID {
		t.Errorf("record inserted after rebuild should be found, got %v", ids(after.Results))
	}
}

// TestE2E_Errors はエラーコードの対応を検証
func TestE2E_Errors(t *testing.T) {
	h := setupTestHandler(t, nil)
	callRegister(t, h, "only design")

	expectError(t, h, "vector.register", map[string]any{"description": ""}, model.ErrCodeInvalidParams)
	expectError(t, h, "vector.search", map[string]any{"text": "x", "k": 0}, model.ErrCodeInvalidParams)
	expectError(t, h, "vector.search", map[string]any{"text": "x", "metric": "dot"}, model.ErrCodeInvalidParams)
	expectError(t, h, "vector.similar", map[string]any{"vector": []float64{1, 2, 3}}, model.ErrCodeDimensionMismatch)
	expectError(t, h, "vector.get", map[string]any{"id": 999}, model.ErrCodeNotFound)
	expectError(t, h, "vector.neighbors", map[string]any{"id": 999}, model.ErrCodeNotFound)
	expectError(t, h, "vector.unknown", nil, model.ErrCodeMethodNotFound)
}

// TestE2E_GetConfig は設定取得でAPIキーが伏せられることを検証
func TestE2E_GetConfig(t *testing.T) {
	key := "sk-secret"
	h := setupTestHandler(t, func(cfg *model.Config) {
		cfg.Embedder.APIKey = &key
	})

	var got service.GetConfigResponse
	call(t, h, "vector.get_config", nil, &got)
	if got.Store.Dim != testDim || got.Store.Type != model.StoreTypeSQLite {
		t.Errorf("unexpected store config %+v", got.Store)
	}
	if got.Embedder.APIKey != nil && *got.Embedder.APIKey == key {
		t.Error("api key must be masked")
	}
}
