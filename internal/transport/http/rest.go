package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/embedder"
	"github.com/brbranch/vecstore/internal/llm"
	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/pool"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/store"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// エラー応答のreason（JSON-RPCのerror.data.reasonと共通）
const (
	ReasonInvalidArgument   = model.ReasonInvalidArgument
	ReasonDimensionMismatch = model.ReasonDimensionMismatch
	ReasonNotFound          = model.ReasonNotFound
	ReasonAPIKeyMissing     = model.ReasonAPIKeyMissing
	ReasonEmbeddingFailed   = model.ReasonEmbeddingFailed
	ReasonUnavailable       = model.ReasonUnavailable
	ReasonCompletionFailed  = model.ReasonCompletionFailed
	ReasonInternal          = model.ReasonInternal
)

// errorBody はエラー応答の本文
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// registerBody は POST /register の本文
type registerBody struct {
	Description string `json:"description"`
}

// registerBatchBody は POST /register/batch の本文
type registerBatchBody struct {
	Descriptions []string `json:"descriptions"`
}

// similarBody は POST /similar の本文
type similarBody struct {
	Vector []float64 `json:"vector"`
	K      *int      `json:"k"`
	Metric string    `json:"metric"`
	Probes int       `json:"probes"`
}

// errBadRequest は本文やクエリ文字列の形式エラー
var errBadRequest = errors.New("bad request")

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /register/batch", s.handleRegisterBatch)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /rag", s.handleRAG)
	mux.HandleFunc("POST /similar", s.handleSimilar)
	mux.HandleFunc("GET /records/{id}", s.handleGet)
	mux.HandleFunc("GET /records/{id}/neighbors", s.handleNeighbors)
	mux.HandleFunc("POST /index/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.configs != nil {
		mux.HandleFunc("GET /config", s.handleConfig)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.Register(r.Context(), &service.RegisterRequest{Description: body.Description})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleRegisterBatch は件ごとの失敗を含めて200で返す
// トランザクション全体が失敗した場合はエラー応答にする
func (s *Server) handleRegisterBatch(w http.ResponseWriter, r *http.Request) {
	var body registerBatchBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.RegisterBatch(r.Context(), &service.RegisterBatchRequest{Descriptions: body.Descriptions})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k, probes, err := parseSearchQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.Search(r.Context(), &service.SearchRequest{
		Text:   q.Get("text"),
		TopK:   k,
		Metric: q.Get("metric"),
		Probes: probes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Results)
}

// handleRAG は質問を検索し、上位ヒットを根拠に回答を返す
// 質問は text か q で受け付ける
func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k, probes, err := parseSearchQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text := q.Get("text")
	if text == "" {
		text = q.Get("q")
	}
	resp, err := s.records.Answer(r.Context(), &service.AnswerRequest{
		Text:   text,
		TopK:   k,
		Metric: q.Get("metric"),
		Probes: probes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var body similarBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.Similar(r.Context(), &service.SimilarRequest{
		Vector: body.Vector,
		TopK:   body.K,
		Metric: body.Metric,
		Probes: body.Probes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Results)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	k, probes, err := parseSearchQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.records.Neighbors(r.Context(), &service.NeighborsRequest{
		ID:     id,
		TopK:   k,
		Metric: r.URL.Query().Get("metric"),
		Probes: probes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Results)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.RebuildIndex(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHealth はdegradedの場合に503を返す
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.records.Health(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Status != vectorstore.StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp, err := s.configs.GetConfig(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseSearchQuery は k と probes をクエリ文字列から読む（kは省略時nil）
func parseSearchQuery(r *http.Request) (*int, int, error) {
	q := r.URL.Query()
	var k *int
	if raw := q.Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: k must be an integer", errBadRequest)
		}
		k = &v
	}
	probes := 0
	if raw := q.Get("probes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: probes must be an integer", errBadRequest)
		}
		probes = v
	}
	return k, probes, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id must be an integer", errBadRequest)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusOf はエラーをHTTPステータスとreasonに変換する
func statusOf(err error) (int, string) {
	var embErr *embedder.EmbeddingError
	var compErr *llm.CompletionError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ReasonInvalidArgument
	case errors.Is(err, embedder.ErrAPIKeyRequired):
		return http.StatusServiceUnavailable, ReasonAPIKeyMissing
	case errors.As(err, &embErr):
		return http.StatusBadGateway, ReasonEmbeddingFailed
	case errors.As(err, &compErr):
		return http.StatusBadGateway, ReasonCompletionFailed
	case errors.Is(err, codec.ErrDimensionMismatch):
		return http.StatusBadRequest, ReasonDimensionMismatch
	case errors.Is(err, service.ErrDescriptionRequired),
		errors.Is(err, service.ErrTextRequired),
		errors.Is(err, service.ErrVectorRequired),
		errors.Is(err, service.ErrIDRequired),
		vectorstore.IsValidation(err):
		return http.StatusBadRequest, ReasonInvalidArgument
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ReasonNotFound
	case errors.Is(err, pool.ErrLeaseTimeout),
		errors.Is(err, pool.ErrPoolClosed),
		errors.Is(err, store.ErrConnectionFailed),
		errors.Is(err, store.ErrNotInitialized):
		return http.StatusServiceUnavailable, ReasonUnavailable
	default:
		return http.StatusInternalServerError, ReasonInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "reason", reason, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
