package model

import (
	"encoding/json"
	"fmt"
	"slices"
)

// SupportedProtocolVersions はサポートするMCPプロトコルバージョン（新しい順）
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// NegotiateProtocolVersion はクライアントが要求したバージョンを使えるならそれを、
// 使えなければサーバーの最新を返す
func NegotiateProtocolVersion(requested string) string {
	if slices.Contains(SupportedProtocolVersions, requested) {
		return requested
	}
	return SupportedProtocolVersions[0]
}

// Implementation はクライアントまたはサーバーの名前とバージョン
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams は initialize のパラメータ
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      Implementation `json:"clientInfo"`
	Capabilities    Capabilities   `json:"capabilities,omitempty"`
}

// Capabilities はクライアント/サーバーの機能
// vecstoreが提供するのはtoolsのみ
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeResult は initialize の結果
// Instructionsにはストアの次元とmetricをクライアント向けに書く
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      Implementation `json:"serverInfo"`
	Capabilities    Capabilities   `json:"capabilities"`
	Instructions    string         `json:"instructions,omitempty"`
}

// Tool はMCPツールの定義
type Tool struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	InputSchema JSONSchema       `json:"inputSchema"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ToolAnnotations はツールの副作用のヒント
type ToolAnnotations struct {
	ReadOnlyHint    bool `json:"readOnlyHint"`
	DestructiveHint bool `json:"destructiveHint"`
	IdempotentHint  bool `json:"idempotentHint"`
	OpenWorldHint   bool `json:"openWorldHint"`
}

// JSONSchema はツール引数のJSON Schema（使う範囲のみ）
type JSONSchema struct {
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
	Default     any                   `json:"default,omitempty"`
	Minimum     *float64              `json:"minimum,omitempty"`
	Maximum     *float64              `json:"maximum,omitempty"`
	MinItems    *int                  `json:"minItems,omitempty"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolsCallResult は tools/call の結果
// 成功時はテキスト（JSON）とstructuredContentの両方に同じ結果を入れる
type ToolsCallResult struct {
	Content           []ContentItem `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent はテキストコンテンツを生成
func NewTextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

// NewToolResult はresultをJSONテキストとstructuredContentに入れた結果を生成
func NewToolResult(result any) (*ToolsCallResult, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tool result: %w", err)
	}
	return &ToolsCallResult{
		Content:           []ContentItem{NewTextContent(string(b))},
		StructuredContent: result,
	}, nil
}

// NewToolError はisError付きの結果を生成
// テキストは "Error (code reason): message" の形
func NewToolError(code int, message string) *ToolsCallResult {
	return &ToolsCallResult{
		Content: []ContentItem{NewTextContent(fmt.Sprintf("Error (%d %s): %s", code, ReasonOf(code), message))},
		IsError: true,
	}
}
