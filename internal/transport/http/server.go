// Package http はJSON-RPCエンドポイントとREST APIをHTTPで提供する
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/brbranch/vecstore/internal/service"
)

const (
	// DefaultAddr はAddr未設定時のlisten address
	DefaultAddr = "127.0.0.1:8765"
	// MaxBodySize はリクエストボディの上限（8MB）
	MaxBodySize = 8 * 1024 * 1024
	// ShutdownTimeout はGraceful shutdownの待ち時間
	ShutdownTimeout = 10 * time.Second
)

// Handler はJSON-RPCリクエストを処理する
type Handler interface {
	Handle(ctx context.Context, requestBytes []byte) []byte
}

// Config はHTTPサーバー設定
type Config struct {
	Addr        string   // listen address (例: "127.0.0.1:8765")
	CORSOrigins []string // 許可するオリジンリスト、空ならCORS無効
}

// Server はHTTPサーバー
type Server struct {
	handler Handler
	records service.RecordService
	configs service.ConfigService
	config  Config
	srv     *http.Server
	logger  *slog.Logger
}

// Option はサーバーオプション
type Option func(*Server)

// WithLogger はロガーを設定
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New は新しいServerを生成
// recordsがnilの場合はRESTルートを登録せず /rpc のみ提供する
func New(handler Handler, records service.RecordService, configs service.ConfigService, config Config, opts ...Option) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	s := &Server{
		handler: handler,
		records: records,
		configs: configs,
		config:  config,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("GET /ping", s.handlePing)
	if records != nil {
		s.registerRoutes(mux)
	}

	s.srv = &http.Server{
		Addr:              config.Addr,
		Handler:           s.withAccessLog(s.withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	return s
}

// Run はConfig.Addrでlistenし、contextがキャンセルされるまで実行
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve はlnで受け付け、contextのキャンセルでgraceful shutdownする
// shutdown完了まで戻らない
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	stopped := context.AfterFunc(ctx, func() {
		defer close(done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown failed", "error", err)
		}
	})

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	err := s.srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		stopped()
		return err
	}
	<-done
	return nil
}

// handleRPC はJSON-RPCリクエストを処理
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	respBytes := s.handler.Handle(r.Context(), body)
	if len(respBytes) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(respBytes)
}

// statusRecorder は書き込まれたステータスを記録する
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withAccessLog はリクエストごとにmethod/path/status/durationをDebugで記録する
// 5xxはWarn
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// withCORS は許可オリジンへのCORSヘッダー付与とPreflight応答を行う
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(s.config.CORSOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
