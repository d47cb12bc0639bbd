package jsonrpc

import "github.com/brbranch/vecstore/internal/model"

func floatPtr(v float64) *float64 { return &v }

// searchOptionProperties は検索系ツール共通の引数
func searchOptionProperties(props map[string]model.JSONSchema) map[string]model.JSONSchema {
	props["k"] = model.JSONSchema{Type: "integer", Description: "Number of results (1-1000)", Default: 5, Minimum: floatPtr(1)}
	props["metric"] = model.JSONSchema{Type: "string", Description: "Distance metric", Enum: []string{"cosine", "l2"}, Default: "cosine"}
	props["probes"] = model.JSONSchema{Type: "integer", Description: "Index lists to scan (0 uses the configured default)", Minimum: floatPtr(0)}
	return props
}

// ツールの副作用ヒント
var (
	readOnlyTool = &model.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true}
	appendTool   = &model.ToolAnnotations{}
	rebuildTool  = &model.ToolAnnotations{IdempotentHint: true}
	answerTool   = &model.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: true} // 外部のチャットモデルを呼ぶ
)

// mcpTools は tools/list が返すツール定義
var mcpTools = []model.Tool{
	{
		Name:        "register_design",
		Title:       "Register design",
		Annotations: appendTool,
		Description: "Embed a design description and store it. Returns the new record id.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: map[string]model.JSONSchema{
				"description": {Type: "string", Description: "Design description text"},
			},
			Required: []string{"description"},
		},
	},
	{
		Name:        "register_designs",
		Title:       "Register designs",
		Annotations: appendTool,
		Description: "Embed and store several descriptions in one transaction. Each item succeeds or fails on its own.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: map[string]model.JSONSchema{
				"descriptions": {Type: "array", Items: &model.JSONSchema{Type: "string"}},
			},
			Required: []string{"descriptions"},
		},
	},
	{
		Name:        "search_designs",
		Title:       "Search designs",
		Annotations: readOnlyTool,
		Description: "Find stored designs closest to a text query.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: searchOptionProperties(map[string]model.JSONSchema{
				"text": {Type: "string", Description: "Query text"},
			}),
			Required: []string{"text"},
		},
	},
	{
		Name:        "answer_question",
		Title:       "Answer question",
		Annotations: answerTool,
		Description: "Search stored designs for a question and answer it from the closest ones with a chat model. Without a configured chat model only the matches are returned.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: searchOptionProperties(map[string]model.JSONSchema{
				"text": {Type: "string", Description: "Question"},
			}),
			Required: []string{"text"},
		},
	},
	{
		Name:        "similar_vectors",
		Title:       "Similar vectors",
		Annotations: readOnlyTool,
		Description: "Find stored designs closest to a raw vector.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: searchOptionProperties(map[string]model.JSONSchema{
				"vector": {Type: "array", Items: &model.JSONSchema{Type: "number"}},
			}),
			Required: []string{"vector"},
		},
	},
	{
		Name:        "design_neighbors",
		Title:       "Design neighbors",
		Annotations: readOnlyTool,
		Description: "Find designs closest to an existing record, excluding the record itself.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: searchOptionProperties(map[string]model.JSONSchema{
				"id": {Type: "integer", Description: "Record id", Minimum: floatPtr(1)},
			}),
			Required: []string{"id"},
		},
	},
	{
		Name:        "get_design",
		Title:       "Get design",
		Annotations: readOnlyTool,
		Description: "Get a stored design by id.",
		InputSchema: model.JSONSchema{
			Type: "object",
			Properties: map[string]model.JSONSchema{
				"id": {Type: "integer", Description: "Record id", Minimum: floatPtr(1)},
			},
			Required: []string{"id"},
		},
	},
	{
		Name:        "store_health",
		Title:       "Store health",
		Annotations: readOnlyTool,
		Description: "Report store status, record count and index statistics.",
		InputSchema: model.JSONSchema{Type: "object"},
	},
	{
		Name:        "rebuild_index",
		Title:       "Rebuild index",
		Annotations: rebuildTool,
		Description: "Retrain the IVF index over all stored vectors.",
		InputSchema: model.JSONSchema{Type: "object"},
	},
	{
		Name:        "get_config",
		Title:       "Get config",
		Annotations: readOnlyTool,
		Description: "Get the current configuration.",
		InputSchema: model.JSONSchema{Type: "object"},
	},
}

// toolNameToMethod はツール名から内部メソッド名への対応
var toolNameToMethod = map[string]string{
	"register_design":  "vector.register",
	"register_designs": "vector.register_batch",
	"search_designs":   "vector.search",
	"answer_question":  "vector.answer",
	"similar_vectors":  "vector.similar",
	"design_neighbors": "vector.neighbors",
	"get_design":       "vector.get",
	"store_health":     "vector.health",
	"rebuild_index":    "vector.rebuild_index",
	"get_config":       "vector.get_config",
}
