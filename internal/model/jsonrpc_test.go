package model

import (
	"encoding/json"
	"testing"
)

// TestNewParseError はパースエラーのIDがnullになることをテスト
func TestNewParseError(t *testing.T) {
	resp := NewParseError("unexpected token")
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	expected := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error","data":{"reason":"parse_error","detail":"unexpected token"}}}`
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}

// TestErrorResponses はエラーレスポンスのコードとreasonをテスト
func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		resp   *ErrorResponse
		code   int
		reason string
	}{
		{"invalid request", NewInvalidRequest(1, "jsonrpc must be 2.0"), ErrCodeInvalidRequest, ReasonInvalidRequest},
		{"method not found", NewMethodNotFound(2, "vector.unknown"), ErrCodeMethodNotFound, ReasonMethodNotFound},
		{"invalid params", NewInvalidParams(3, "k must be >= 1"), ErrCodeInvalidParams, ReasonInvalidArgument},
		{"internal", NewInternalError(4, "boom"), ErrCodeInternalError, ReasonInternal},
		{"dimension mismatch", NewErrorResponse(5, ErrCodeDimensionMismatch, "dim", nil), ErrCodeDimensionMismatch, ReasonDimensionMismatch},
		{"unavailable", NewErrorResponse(6, ErrCodeUnavailable, "lease timeout", nil), ErrCodeUnavailable, ReasonUnavailable},
		{"completion failed", NewErrorResponse(7, ErrCodeCompletionFailed, "chat", nil), ErrCodeCompletionFailed, ReasonCompletionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.resp.JSONRPC != JSONRPCVersion {
				t.Errorf("expected jsonrpc 2.0, got %q", tt.resp.JSONRPC)
			}
			if tt.resp.Error.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, tt.resp.Error.Code)
			}
			data, ok := tt.resp.Error.Data.(*ErrorData)
			if !ok || data.Reason != tt.reason {
				t.Errorf("expected reason %s, got %+v", tt.reason, tt.resp.Error.Data)
			}
		})
	}
}

// TestReasonOf_Unknown は未知のコードがinternalになることをテスト
func TestReasonOf_Unknown(t *testing.T) {
	if got := ReasonOf(-31999); got != ReasonInternal {
		t.Errorf("expected internal, got %s", got)
	}
}

// TestRequest_OmitParams はparams省略時にフィールドが出力されないことをテスト
func TestRequest_OmitParams(t *testing.T) {
	b, err := json.Marshal(&Request{JSONRPC: JSONRPCVersion, ID: "req-1", Method: "vector.health"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	expected := `{"jsonrpc":"2.0","id":"req-1","method":"vector.health"}`
	if string(b) != expected {
		t.Errorf("expected %s, got %s", expected, string(b))
	}
}
