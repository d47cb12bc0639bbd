// Package logging は設定からプロセス全体のslog.Loggerを組み立てる
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/brbranch/vecstore/internal/model"
)

// ErrUnknownFormat は未対応のログ形式
var ErrUnknownFormat = errors.New("unknown log format")

// ParseLevel はログレベル名をslog.Levelに変換する（空文字はinfo）
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// New は level と format（text|json）に従ってwへ書くLoggerを作成する
func New(cfg model.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
	}
}

// Setup はLoggerを作成してslog.SetDefaultに設定する
// stdioトランスポートではstdoutが応答専用なので、wには通常stderrを渡す
func Setup(cfg model.LogConfig, w io.Writer) (*slog.Logger, error) {
	logger, err := New(cfg, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
