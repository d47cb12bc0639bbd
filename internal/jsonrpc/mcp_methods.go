package jsonrpc

import (
	"context"
	"fmt"

	"github.com/brbranch/vecstore/internal/model"
)

// ServerName はinitializeで名乗るサーバー名
const ServerName = "vecstore"

// ServerVersion はサーバーのバージョン（ビルド時に設定可能）
var ServerVersion = "0.1.0"

// handleInitialize はプロトコルバージョンを合わせ、ストアの概要をinstructionsに載せる
func (h *Handler) handleInitialize(ctx context.Context, params any) (any, error) {
	var p model.InitializeParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	h.logger.Info("mcp client connected", "client", p.ClientInfo.Name, "version", p.ClientInfo.Version, "protocol", p.ProtocolVersion)

	return &model.InitializeResult{
		ProtocolVersion: model.NegotiateProtocolVersion(p.ProtocolVersion),
		ServerInfo:      model.Implementation{Name: ServerName, Version: ServerVersion},
		Capabilities:    model.Capabilities{Tools: &model.ToolsCapability{}},
		Instructions:    h.instructions(ctx),
	}, nil
}

// instructions はストアの次元とモデルを説明する文を返す（取得できなければ空）
func (h *Handler) instructions(ctx context.Context) string {
	health, err := h.recordService.Health(ctx)
	if err != nil || health == nil {
		return ""
	}
	return fmt.Sprintf(
		"Design descriptions are embedded with %s into %d-dimensional vectors. "+
			"Search scores are distances (cosine or l2): lower is closer, ties are ordered by id.",
		health.ModelName, health.Dim)
}

func (h *Handler) handleToolsList(ctx context.Context, params any) (any, error) {
	return &model.ToolsListResult{Tools: mcpTools}, nil
}

// handleToolsCall はツールを内部メソッドに振り替える
// 失敗はJSON-RPCのエラーではなくisError付きのcontentで返す
func (h *Handler) handleToolsCall(ctx context.Context, id any, params any) (any, error) {
	var p model.ToolsCallParams
	if err := mapParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return model.NewToolError(model.ErrCodeInvalidParams, "tool name is required"), nil
	}
	method, ok := toolNameToMethod[p.Name]
	if !ok {
		return model.NewToolError(model.ErrCodeMethodNotFound, "Tool not found: "+p.Name), nil
	}

	result, err := h.dispatchInternal(ctx, method, p.Arguments)
	if err != nil {
		e := mapError(id, err)
		if e.Error.Code == model.ErrCodeInternalError {
			h.logger.Error("tool call failed", "tool", p.Name, "error", err)
		}
		return model.NewToolError(e.Error.Code, err.Error()), nil
	}

	out, err := model.NewToolResult(result)
	if err != nil {
		return model.NewToolError(model.ErrCodeInternalError, err.Error()), nil
	}
	return out, nil
}
