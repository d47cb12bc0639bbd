// Package llm は検索結果を根拠にしたチャットモデルへの問い合わせを提供する
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brbranch/vecstore/internal/model"
)

// ChatModel はプロンプトから回答を生成する
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// エラー定義
var (
	ErrAPIKeyRequired  = errors.New("api key is required for answer generation")
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrEmptyCompletion = errors.New("model returned no answer")
)

// CompletionError はチャットモデル呼び出しの失敗
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (%s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// DefaultContextRunes はヒット1件あたりプロンプトに入れる最大文字数
const DefaultContextRunes = 500

// Passage はプロンプトに入れる検索結果1件
type Passage struct {
	ID       int64
	Distance float64
	Text     string
}

// BuildPrompt は質問と上位ヒットから回答用のプロンプトを組み立てる
// 各ヒットの本文はmaxRunes文字で切る（0以下ならDefaultContextRunes）
func BuildPrompt(question string, metric model.Metric, passages []Passage, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultContextRunes
	}

	var b strings.Builder
	b.WriteString("You are an assistant answering questions about stored design descriptions.\n")
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(question))
	fmt.Fprintf(&b, "\n\nTop-%d similar designs (id | %s distance | description):\n", len(passages), metric)
	for _, p := range passages {
		text := strings.Join(strings.Fields(p.Text), " ")
		if r := []rune(text); len(r) > maxRunes {
			text = string(r[:maxRunes])
		}
		fmt.Fprintf(&b, "%d | %.4f | %s\n", p.ID, p.Distance, text)
	}
	b.WriteString("\nAnswer concisely:\n")
	b.WriteString("- first, the id of the most relevant design and why, in one line\n")
	b.WriteString("- then the points from these designs that answer the question, as bullets\n")
	b.WriteString("- finally, up to 3 follow-up checks\n")
	b.WriteString("Use only the designs above. If they do not answer the question, say so.\n")
	return b.String()
}

// New は設定からChatModelを作成する
// APIキーが無い場合は (nil, nil) を返し、回答生成は無効になる
func New(cfg model.AnswerConfig, logger *slog.Logger) (ChatModel, error) {
	if cfg.APIKey == nil || *cfg.APIKey == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []Option{WithLogger(logger), WithTemperature(cfg.Temperature)}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.BaseURL != nil && *cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(*cfg.BaseURL))
	}
	chat, err := NewOpenAIChat(*cfg.APIKey, opts...)
	if err != nil {
		return nil, err
	}
	return chat, nil
}
