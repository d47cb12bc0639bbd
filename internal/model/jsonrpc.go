package model

// JSONRPCVersion はサポートするJSON-RPCのバージョン
const JSONRPCVersion = "2.0"

// Request はJSON-RPC 2.0リクエスト
// IDは string | number | null、Paramsは省略可
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response は成功レスポンス
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

// ErrorResponse はエラーレスポンス（パース失敗時のIDはnull）
type ErrorResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      any      `json:"id"`
	Error   RPCError `json:"error"`
}

// RPCError はエラーオブジェクト
// DataにはErrorDataが入る（クライアントから受け取る場合は任意の値）
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorData はエラーのdataに載せる機械可読な情報
// ReasonはHTTPのエラー応答と同じ語彙
type ErrorData struct {
	Reason string `json:"reason"`
	Detail any    `json:"detail,omitempty"`
}

// JSON-RPC 2.0 標準エラーコード
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// サーバー定義のエラーコード（-32000 〜 -32099）
const (
	ErrCodeAPIKeyMissing     = -32001
	ErrCodeDimensionMismatch = -32002
	ErrCodeNotFound          = -32003
	ErrCodeProviderError     = -32004
	ErrCodeUnavailable       = -32005 // リース待ちタイムアウト、接続断など
	ErrCodeCompletionFailed  = -32006
)

// エラーのreason
const (
	ReasonParseError        = "parse_error"
	ReasonInvalidRequest    = "invalid_request"
	ReasonMethodNotFound    = "method_not_found"
	ReasonInvalidArgument   = "invalid_argument"
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonNotFound          = "not_found"
	ReasonAPIKeyMissing     = "api_key_missing"
	ReasonEmbeddingFailed   = "embedding_failed"
	ReasonUnavailable       = "unavailable"
	ReasonCompletionFailed  = "completion_failed"
	ReasonInternal          = "internal"
)

var codeReasons = map[int]string{
	ErrCodeParseError:        ReasonParseError,
	ErrCodeInvalidRequest:    ReasonInvalidRequest,
	ErrCodeMethodNotFound:    ReasonMethodNotFound,
	ErrCodeInvalidParams:     ReasonInvalidArgument,
	ErrCodeInternalError:     ReasonInternal,
	ErrCodeAPIKeyMissing:     ReasonAPIKeyMissing,
	ErrCodeDimensionMismatch: ReasonDimensionMismatch,
	ErrCodeNotFound:          ReasonNotFound,
	ErrCodeProviderError:     ReasonEmbeddingFailed,
	ErrCodeUnavailable:       ReasonUnavailable,
	ErrCodeCompletionFailed:  ReasonCompletionFailed,
}

// ReasonOf はエラーコードに対応するreasonを返す（未知のコードはinternal）
func ReasonOf(code int) string {
	if r, ok := codeReasons[code]; ok {
		return r
	}
	return ReasonInternal
}

// NewResponse は成功レスポンスを生成
func NewResponse(id any, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse はcodeのreasonとdetailをdataに載せたエラーレスポンスを生成
func NewErrorResponse(id any, code int, message string, detail any) *ErrorResponse {
	return &ErrorResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: RPCError{
			Code:    code,
			Message: message,
			Data:    &ErrorData{Reason: ReasonOf(code), Detail: detail},
		},
	}
}

// NewParseError はIDがnullのパースエラーを生成
func NewParseError(detail any) *ErrorResponse {
	return NewErrorResponse(nil, ErrCodeParseError, "Parse error", detail)
}

func NewInvalidRequest(id any, detail any) *ErrorResponse {
	return NewErrorResponse(id, ErrCodeInvalidRequest, "Invalid Request", detail)
}

// NewMethodNotFound はメソッド名をdetailに入れる
func NewMethodNotFound(id any, method string) *ErrorResponse {
	return NewErrorResponse(id, ErrCodeMethodNotFound, "Method not found", method)
}

func NewInvalidParams(id any, message string) *ErrorResponse {
	return NewErrorResponse(id, ErrCodeInvalidParams, message, nil)
}

func NewInternalError(id any, message string) *ErrorResponse {
	return NewErrorResponse(id, ErrCodeInternalError, message, nil)
}
