package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validStoreConfig() StoreConfig {
	path := "/data/vecstore.db"
	return StoreConfig{
		Type:         StoreTypeSQLite,
		Path:         &path,
		Collection:   DefaultCollection,
		Dim:          384,
		Metric:       MetricCosine,
		ListCount:    100,
		ProbeCount:   10,
		PoolSize:     5,
		LeaseTimeout: 5 * time.Second,
	}
}

// TestConfig_JSONUnmarshal はJSONからConfigが正しくデシリアライズされることをテスト
func TestConfig_JSONUnmarshal(t *testing.T) {
	jsonData := `{
		"transportDefaults": {"defaultTransport": "http"},
		"embedder": {"provider": "local", "model": "hash-384"},
		"store": {
			"type": "sqlite",
			"path": "/tmp/x.db",
			"collection": "designs",
			"dim": 384,
			"metric": "l2",
			"listCount": 16,
			"probeCount": 4,
			"poolSize": 3
		},
		"server": {"host": "127.0.0.1", "port": 8000},
		"paths": {"configPath": "/config/test.json", "dataDir": "/data/test"}
	}`

	var cfg Config
	if err := json.Unmarshal([]byte(jsonData), &cfg); err != nil {
		t.Fatalf("failed to unmarshal Config: %v", err)
	}

	if cfg.Store.Metric != MetricL2 {
		t.Errorf("expected metric l2, got %q", cfg.Store.Metric)
	}
	if cfg.Store.ListCount != 16 || cfg.Store.ProbeCount != 4 {
		t.Errorf("unexpected list/probe: %d/%d", cfg.Store.ListCount, cfg.Store.ProbeCount)
	}
	if cfg.Store.Path == nil || *cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("unexpected path: %v", cfg.Store.Path)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

// TestStoreConfig_Validate は不正な組み合わせが起動時に拒否されることをテスト
func TestStoreConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *StoreConfig)
		wantErr bool
	}{
		{"valid", func(c *StoreConfig) {}, false},
		{"valid without index", func(c *StoreConfig) { c.ListCount, c.ProbeCount = 0, 0 }, false},
		{"unknown type", func(c *StoreConfig) { c.Type = "faiss" }, true},
		{"zero dim", func(c *StoreConfig) { c.Dim = 0 }, true},
		{"negative dim", func(c *StoreConfig) { c.Dim = -3 }, true},
		{"unknown metric", func(c *StoreConfig) { c.Metric = "dot" }, true},
		{"probe exceeds lists", func(c *StoreConfig) { c.ProbeCount = 101 }, true},
		{"probe without lists", func(c *StoreConfig) { c.ListCount = 0; c.ProbeCount = 1 }, true},
		{"negative lists", func(c *StoreConfig) { c.ListCount = -1 }, true},
		{"zero pool", func(c *StoreConfig) { c.PoolSize = 0 }, true},
		{"negative lease timeout", func(c *StoreConfig) { c.LeaseTimeout = -time.Second }, true},
		{"qdrant without url", func(c *StoreConfig) { c.Type = StoreTypeQdrant }, true},
		{"empty collection", func(c *StoreConfig) { c.Collection = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validStoreConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestStoreConfig_CollectionName はdimごとのコレクション名をテスト
func TestStoreConfig_CollectionName(t *testing.T) {
	cfg := validStoreConfig()
	if got := cfg.CollectionName(); got != "designs_384" {
		t.Errorf("expected designs_384, got %q", got)
	}
}

// TestParseMetric はmetric文字列のパースをテスト
func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricCosine, false},
		{"cosine", MetricCosine, false},
		{"COSINE", MetricCosine, false},
		{"l2", MetricL2, false},
		{"euclidean", MetricL2, false},
		{"dot", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetric(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestBatchResult_FailAll はトランザクション失敗時に全件が失敗扱いになることをテスト
func TestBatchResult_FailAll(t *testing.T) {
	res := &BatchResult{Items: []BatchItemResult{
		{Index: 0, ID: 1, CreatedAt: time.Now()},
		{Index: 1, Err: errors.New("bad")},
		{Index: 2, ID: 2, CreatedAt: time.Now()},
	}}
	res.Tally()
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("unexpected tally before FailAll: %d/%d", res.Succeeded, res.Failed)
	}

	cause := errors.New("connection lost")
	res.FailAll(cause)
	if res.Succeeded != 0 || res.Failed != 3 {
		t.Errorf("expected 0/3, got %d/%d", res.Succeeded, res.Failed)
	}
	for _, it := range res.Items {
		if it.ID != 0 || it.Err != cause {
			t.Errorf("item %d not failed correctly: %+v", it.Index, it)
		}
	}
}
