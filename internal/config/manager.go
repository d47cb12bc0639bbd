// Package config はJSON設定ファイルと環境変数から設定を組み立てる
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brbranch/vecstore/internal/model"
)

// デフォルト値
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8765
	DefaultKafkaTopic    = "designs"
	DefaultKafkaGroupID  = "vecstore"
	DefaultKafkaBatch    = 64
	DefaultFlushInterval = 2 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"

	DefaultAnswerModel        = "gpt-4o-mini"
	DefaultAnswerTemperature  = 0.2
	DefaultAnswerContextRunes = 500
)

// Manager は設定の読み書きを管理する
type Manager struct {
	mu         sync.RWMutex
	config     *model.Config
	configPath string
}

// NewManager は新しいManagerを作成する
// configPathが空文字の場合は DefaultConfigPath を使う
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
		configPath = defaultPath
	} else {
		expanded, err := ExpandTilde(configPath)
		if err != nil {
			return nil, err
		}
		configPath = expanded
	}

	dataDir, err := DefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get default data dir: %w", err)
	}

	return &Manager{
		config:     DefaultConfig(configPath, dataDir),
		configPath: configPath,
	}, nil
}

// Load は設定ファイルを読み込む
// ファイルが存在しない場合はデフォルト設定を使用（エラーなし）
// ファイルにないフィールドはデフォルト値のまま残る
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config := *m.config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	config.Paths.ConfigPath = m.configPath

	if err := expandPaths(&config); err != nil {
		return err
	}
	m.config = &config
	return nil
}

// expandPaths はデータディレクトリとDBパスの"~"を展開する
func expandPaths(config *model.Config) error {
	dataDir, err := ExpandTilde(config.Paths.DataDir)
	if err != nil {
		return err
	}
	config.Paths.DataDir = dataDir

	if config.Store.Path != nil {
		p, err := ExpandTilde(*config.Store.Path)
		if err != nil {
			return err
		}
		config.Store.Path = &p
	}
	return nil
}

// Save は設定ファイルを0600で保存する
// 同じディレクトリの一時ファイルに書いてからrenameする
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.config, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(m.configPath)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.configPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp config file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}
	return nil
}

// GetConfig は現在の設定を返す
func (m *Manager) GetConfig() *model.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetConfigPath は設定ファイルパスを返す
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// ApplyEnv は環境変数による上書きを現在の設定に適用する
func (m *Manager) ApplyEnv() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := *m.config
	if err := ApplyEnvOverrides(&config); err != nil {
		return err
	}
	if err := expandPaths(&config); err != nil {
		return err
	}
	m.config = &config
	return nil
}

// NewManagerWithConfig は指定した設定でManagerを作成する（テスト用）
func NewManagerWithConfig(cfg *model.Config) *Manager {
	return &Manager{
		config:     cfg,
		configPath: cfg.Paths.ConfigPath,
	}
}

// DefaultConfig はデフォルト設定を返す
// APIキー不要のlocal embedderとSQLiteで、そのまま起動できる
func DefaultConfig(configPath, dataDir string) *model.Config {
	dbPath := filepath.Join(dataDir, DefaultDBFile)
	return &model.Config{
		TransportDefaults: model.TransportDefaults{
			DefaultTransport: model.TransportStdio,
		},
		Embedder: model.EmbedderConfig{
			Provider: model.ProviderLocal,
		},
		Store: model.StoreConfig{
			Type:         model.StoreTypeSQLite,
			Path:         &dbPath,
			Collection:   model.DefaultCollection,
			Dim:          model.DefaultDim,
			Metric:       model.MetricCosine,
			ListCount:    model.DefaultListCount,
			PoolSize:     model.DefaultPoolSize,
			LeaseTimeout: model.DefaultLeaseTimeout,
		},
		Server: model.ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Kafka: model.KafkaConfig{
			Topic:         DefaultKafkaTopic,
			GroupID:       DefaultKafkaGroupID,
			BatchSize:     DefaultKafkaBatch,
			FlushInterval: DefaultFlushInterval,
		},
		Answer: model.AnswerConfig{
			Model:        DefaultAnswerModel,
			Temperature:  DefaultAnswerTemperature,
			ContextRunes: DefaultAnswerContextRunes,
		},
		Log: model.LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Paths: model.PathsConfig{
			ConfigPath: configPath,
			DataDir:    dataDir,
		},
	}
}
