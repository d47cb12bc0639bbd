package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/brbranch/vecstore/internal/service"
)

// RegisterParams は vector.register のパラメータ
type RegisterParams struct {
	Description string `json:"description"`
}

// RegisterBatchParams は vector.register_batch のパラメータ
type RegisterBatchParams struct {
	Descriptions []string `json:"descriptions"`
}

// SearchParams は vector.search のパラメータ
type SearchParams struct {
	Text   string `json:"text"`
	K      *int   `json:"k"`
	Metric string `json:"metric"`
	Probes int    `json:"probes"`
}

// ToRequest はサービスリクエストに変換
func (p *SearchParams) ToRequest() *service.SearchRequest {
	return &service.SearchRequest{Text: p.Text, TopK: p.K, Metric: p.Metric, Probes: p.Probes}
}

// ToAnswerRequest は vector.answer 用のサービスリクエストに変換
// 引数は vector.search と同じ
func (p *SearchParams) ToAnswerRequest() *service.AnswerRequest {
	return &service.AnswerRequest{Text: p.Text, TopK: p.K, Metric: p.Metric, Probes: p.Probes}
}

// SimilarParams は vector.similar のパラメータ
type SimilarParams struct {
	Vector []float64 `json:"vector"`
	K      *int      `json:"k"`
	Metric string    `json:"metric"`
	Probes int       `json:"probes"`
}

// ToRequest はサービスリクエストに変換
func (p *SimilarParams) ToRequest() *service.SimilarRequest {
	return &service.SimilarRequest{Vector: p.Vector, TopK: p.K, Metric: p.Metric, Probes: p.Probes}
}

// NeighborsParams は vector.neighbors のパラメータ
type NeighborsParams struct {
	ID     int64  `json:"id"`
	K      *int   `json:"k"`
	Metric string `json:"metric"`
	Probes int    `json:"probes"`
}

// ToRequest はサービスリクエストに変換
func (p *NeighborsParams) ToRequest() *service.NeighborsRequest {
	return &service.NeighborsRequest{ID: p.ID, TopK: p.K, Metric: p.Metric, Probes: p.Probes}
}

// GetParams は vector.get のパラメータ
type GetParams struct {
	ID int64 `json:"id"`
}

// mapParams はparamsを構造体に変換する
func mapParams(params any, target any) error {
	if params == nil {
		return nil
	}

	// anyをJSONに変換してから構造体にアンマーシャル
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}
