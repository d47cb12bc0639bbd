package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brbranch/vecstore/internal/model"
)

// mockHandler はメソッド名を結果として返すJSON-RPCハンドラー
type mockHandler struct{}

func (h *mockHandler) Handle(ctx context.Context, requestBytes []byte) []byte {
	var req model.Request
	if err := json.Unmarshal(requestBytes, &req); err != nil {
		b, _ := json.Marshal(model.NewParseError(err.Error()))
		return b
	}
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}
	b, _ := json.Marshal(model.NewResponse(req.ID, map[string]any{"method": req.Method}))
	return b
}

func newRPCServer(cfg Config) *Server {
	return New(&mockHandler{}, nil, nil, cfg, WithLogger(quietLogger()))
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func rpcRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestServer_RPC は /rpc のJSON-RPC呼び出しをテスト
func TestServer_RPC(t *testing.T) {
	server := newRPCServer(Config{})

	w := serve(server, rpcRequest(`{"jsonrpc":"2.0","id":1,"method":"vector.health"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp model.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != float64(1) {
		t.Errorf("expected id 1, got %v", resp.ID)
	}

	// JSON-RPCのエラーもHTTPとしては200
	w = serve(server, rpcRequest(`{invalid`))
	var errResp model.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &errResp)
	if w.Code != http.StatusOK || errResp.Error.Code != model.ErrCodeParseError {
		t.Errorf("expected parse error with 200, got %d %+v", w.Code, errResp)
	}
}

// TestServer_RPC_Notification は応答のない通知が202で返ることをテスト
func TestServer_RPC_Notification(t *testing.T) {
	server := newRPCServer(Config{})
	w := serve(server, rpcRequest(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if w.Code != http.StatusAccepted || w.Body.Len() != 0 {
		t.Errorf("expected empty 202, got %d %q", w.Code, w.Body.String())
	}
}

// TestServer_RPC_Rejects はHTTPレベルで拒否されるリクエストをテスト
func TestServer_RPC_Rejects(t *testing.T) {
	server := newRPCServer(Config{})

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"get", func() *http.Request { return httptest.NewRequest(http.MethodGet, "/rpc", nil) }, http.StatusMethodNotAllowed},
		{"content type", func() *http.Request {
			req := rpcRequest(`{}`)
			req.Header.Set("Content-Type", "text/plain")
			return req
		}, http.StatusUnsupportedMediaType},
		{"too large", func() *http.Request { return rpcRequest(strings.Repeat("a", MaxBodySize+1)) }, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(server, tt.req()); w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

// TestServer_Defaults はデフォルト設定をテスト
func TestServer_Defaults(t *testing.T) {
	server := newRPCServer(Config{})
	if server.srv.Addr != DefaultAddr {
		t.Errorf("expected default addr %s, got %s", DefaultAddr, server.srv.Addr)
	}
	if server.srv.ReadHeaderTimeout == 0 {
		t.Error("expected ReadHeaderTimeout to be set")
	}

	// RecordServiceなしではRESTルートは存在しない
	if w := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without record service, got %d", w.Code)
	}
	if w := serve(server, httptest.NewRequest(http.MethodGet, "/ping", nil)); w.Code != http.StatusOK {
		t.Errorf("ping should always be served, got %d", w.Code)
	}
}

// TestServer_GracefulShutdown はcontextキャンセルで停止することをテスト
func TestServer_GracefulShutdown(t *testing.T) {
	server := newRPCServer(Config{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for server to stop")
	}
}

// TestServer_Serve は実際のlistenerで /rpc と /ping に応答できることをテスト
func TestServer_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	server := newRPCServer(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Post(base+"/rpc", "application/json; charset=utf-8",
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"vector.get"}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	var out model.Response
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out.ID != float64(7) {
		t.Errorf("unexpected response %d %+v", resp.StatusCode, out)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil after shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for server to stop")
	}
}

// TestServer_Run_ListenError は使用中のアドレスでエラーを返すことをテスト
func TestServer_Run_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	server := newRPCServer(Config{Addr: ln.Addr().String()})
	if err := server.Run(context.Background()); err == nil {
		t.Error("expected listen error on an address in use")
	}
}

// TestServer_AccessLog は5xxがWarnで記録されることをテスト
func TestServer_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	server := New(&mockHandler{}, nil, nil, Config{}, WithLogger(logger))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server.withAccessLog(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(buf.String(), "status=503") || !strings.Contains(buf.String(), "path=/health") {
		t.Errorf("expected access log for 503, got %q", buf.String())
	}

	buf.Reset()
	serve(server, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if buf.Len() != 0 {
		t.Errorf("2xx should be logged below warn, got %q", buf.String())
	}
}

// TestCORS は許可オリジンへのヘッダー付与とPreflightをテスト
func TestCORS(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"vector.health"}`

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"disabled", nil, "http://example.com", ""},
		{"allowed", []string{"http://example.com"}, "http://example.com", "http://example.com"},
		{"second of many", []string{"http://example.com", "http://localhost:3000"}, "http://localhost:3000", "http://localhost:3000"},
		{"not allowed", []string{"http://example.com"}, "http://evil.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRPCServer(Config{CORSOrigins: tt.origins})
			req := rpcRequest(body)
			req.Header.Set("Origin", tt.origin)
			w := serve(server, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("expected allow origin %q, got %q", tt.want, got)
			}
			if tt.want != "" && w.Header().Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", w.Header().Get("Vary"))
			}
		})
	}
}

// TestCORS_Preflight はOPTIONSリクエストが空の204で返ることをテスト
func TestCORS_Preflight(t *testing.T) {
	server := newRPCServer(Config{CORSOrigins: []string{"http://example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := serve(server, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("unexpected allow methods %q", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}
}
