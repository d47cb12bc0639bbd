// Package bootstrap は設定からサービス群を組み立てる共通の初期化処理を提供する
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brbranch/vecstore/internal/config"
	"github.com/brbranch/vecstore/internal/embedder"
	"github.com/brbranch/vecstore/internal/llm"
	"github.com/brbranch/vecstore/internal/logging"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// Services は初期化されたサービス群を保持
type Services struct {
	RecordService service.RecordService
	ConfigService service.ConfigService
	Config        *model.Config
	Store         *vectorstore.VectorStore
	Embedder      embedder.Embedder
	Chat          llm.ChatModel // APIキーが無ければnil
	Logger        *slog.Logger
}

// Initialize は設定を読み込み、必要なサービスを初期化する
// 順序: 設定 → ロガー → Embedder → VectorStore → スキーマ → サービス
// 戻り値のcleanupでストアをクローズする
func Initialize(ctx context.Context, configPath string) (*Services, func(), error) {
	// 1. 設定（ファイル → 環境変数の順に上書き）
	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := configManager.Load(); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configManager.ApplyEnv(); err != nil {
		return nil, nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg := configManager.GetConfig()

	// 2. ロガー（stdoutはstdioトランスポートの応答に使うのでstderrへ）
	logger, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	// SQLiteのファイルを置くディレクトリ
	if cfg.Store.Type == model.StoreTypeSQLite && cfg.Store.Path != nil && *cfg.Store.Path != ":memory:" {
		if err := config.EnsureDir(filepath.Dir(*cfg.Store.Path)); err != nil {
			return nil, nil, err
		}
	}

	// 3. Embedder（次元はストアの設定に合わせる）
	emb, err := embedder.NewEmbedder(&cfg.Embedder, cfg.Store.Dim, config.GetOpenAIAPIKey(cfg), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	// 回答生成のチャットモデル（APIキーが無ければnil）
	chat, err := llm.New(cfg.Answer, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	// 4. VectorStore（設定の検証、プール、バックエンド）
	vs, err := vectorstore.New(cfg.Store, vectorstore.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	// 5. スキーマ（作成または既存の次元を検証）
	if err := vs.EnsureSchema(ctx); err != nil {
		vs.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 6. Services
	var recordOpts []service.RecordOption
	if chat != nil {
		recordOpts = append(recordOpts, service.WithChatModel(chat, cfg.Answer.ContextRunes))
	}
	recordService := service.NewRecordService(emb, vs, logger, recordOpts...)
	configService := service.NewConfigService(configManager)

	logger.Info("vecstore initialized",
		"store", cfg.Store.Type,
		"collection", cfg.Store.CollectionName(),
		"embedder", cfg.Embedder.Provider,
		"model", emb.ModelName(),
		"answers", chat != nil,
	)

	cleanup := func() {
		if err := vs.Close(); err != nil {
			logger.Warn("failed to close vector store", "error", err)
		}
	}

	return &Services{
		RecordService: recordService,
		ConfigService: configService,
		Config:        cfg,
		Store:         vs,
		Embedder:      emb,
		Chat:          chat,
		Logger:        logger,
	}, cleanup, nil
}
