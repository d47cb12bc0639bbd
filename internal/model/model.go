// Package model defines data structures for vecstore.
//
// This package contains:
//   - Record / Batch: 永続化されるベクトルレコードとバッチ投入の結果
//   - Metric: 距離関数の種類
//   - Config: サーバー設定
//   - JSON-RPC 2.0 / MCP: request/response/error structures
package model
