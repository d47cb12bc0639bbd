// Package stdio は1行1リクエストのJSON-RPCをstdin/stdoutで処理する
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// MaxLineSize は1リクエストの最大サイズ（8MB）
// vector.register_batch や vector.similar はベクトルや多数の本文を1行で送る
const MaxLineSize = 8 * 1024 * 1024

// Handler はJSON-RPCリクエストを処理するインターフェース
type Handler interface {
	Handle(ctx context.Context, requestBytes []byte) []byte
}

// Server はstdio JSON-RPCサーバー
type Server struct {
	handler Handler
	reader  io.Reader
	writer  io.Writer
	maxLine int
	logger  *slog.Logger
}

// Option はサーバーオプション
type Option func(*Server)

// WithReader はreaderを設定（テスト用）
func WithReader(r io.Reader) Option {
	return func(s *Server) { s.reader = r }
}

// WithWriter はwriterを設定（テスト用）
func WithWriter(w io.Writer) Option {
	return func(s *Server) { s.writer = w }
}

// WithMaxLineSize は1行の上限を変更する（0以下は無視）
func WithMaxLineSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithLogger はロガーを設定（stdoutは応答専用なのでstderr側に出す）
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New は新しいServerを生成
func New(handler Handler, opts ...Option) *Server {
	s := &Server{
		handler: handler,
		reader:  os.Stdin,
		writer:  os.Stdout,
		maxLine: MaxLineSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run はEOFかcontextのキャンセルまでリクエストを順に処理する
// 読み込みは別goroutineで行い、ブロック中のReadでもキャンセルに反応する
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.reader)
		// 初期バッファがmaxLineより大きいと上限が効かない
		scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLine)), s.maxLine)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.logger.Debug("stdio server started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read request: %w", err)
				}
				s.logger.Debug("stdin closed")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := s.respond(ctx, line); err != nil {
				return err
			}
		}
	}
}

// respond は1リクエストを処理して応答を1行で書き込む
func (s *Server) respond(ctx context.Context, line string) error {
	response := s.handler.Handle(ctx, []byte(line))
	if len(response) == 0 {
		// 通知には応答しない
		return nil
	}
	response = append(response, '\n')
	if _, err := s.writer.Write(response); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
