package service

import (
	"context"

	"github.com/brbranch/vecstore/internal/config"
)

// maskedAPIKey はレスポンスでAPIキーの代わりに返す値
const maskedAPIKey = "********"

// configService はConfigServiceの実装
type configService struct {
	manager *config.Manager
}

// NewConfigService はConfigServiceの新しいインスタンスを作成
func NewConfigService(mgr *config.Manager) ConfigService {
	return &configService{
		manager: mgr,
	}
}

// GetConfig は現在の設定を取得する
// 次元やリスト数はコレクション作成後に変えられないので、変更操作は提供しない
func (s *configService) GetConfig(ctx context.Context) (*GetConfigResponse, error) {
	cfg := s.manager.GetConfig()

	embedderCfg := cfg.Embedder
	if embedderCfg.APIKey != nil && *embedderCfg.APIKey != "" {
		masked := maskedAPIKey
		embedderCfg.APIKey = &masked
	}

	answerCfg := cfg.Answer
	if answerCfg.APIKey != nil && *answerCfg.APIKey != "" {
		masked := maskedAPIKey
		answerCfg.APIKey = &masked
	}

	return &GetConfigResponse{
		TransportDefaults: cfg.TransportDefaults,
		Embedder:          embedderCfg,
		Store:             cfg.Store,
		Server:            cfg.Server,
		Answer:            answerCfg,
		Paths:             cfg.Paths,
	}, nil
}
