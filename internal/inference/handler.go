// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

// Package inference serves an exported index over the hosting platform's
// endpoint contract:
//
//	GET  /ping         200 once an index is loaded, 503 before
//	POST /invocations  {"user_id": "42", "k": 5} or {"instances": ["42", "7"]}
//	GET  /manifest     the export manifest
//	GET  /metrics      Prometheus metrics
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reelrank/internal/cache"
	"github.com/tomtom215/reelrank/internal/config"
	"github.com/tomtom215/reelrank/internal/export"
	"github.com/tomtom215/reelrank/internal/index"
	"github.com/tomtom215/reelrank/internal/logging"
	"github.com/tomtom215/reelrank/internal/metrics"
	"github.com/tomtom215/reelrank/internal/storage"
	"github.com/tomtom215/reelrank/internal/validation"
)

// maxBodyBytes bounds invocation payloads.
const maxBodyBytes = 1 << 20

// InvocationRequest is the body of POST /invocations. Either UserID or
// Instances must be set.
type InvocationRequest struct {
	UserID    string   `json:"user_id" validate:"required_without=Instances"`
	Instances []string `json:"instances" validate:"omitempty,max=1000,dive,required"`
	K         int      `json:"k" validate:"gte=0"`
}

// Prediction is the ranked result for one user.
type Prediction struct {
	UserID    string    `json:"user_id"`
	KnownUser bool      `json:"known_user"`
	Titles    []string  `json:"titles"`
	Scores    []float32 `json:"scores"`
}

// InvocationResponse is the body returned by POST /invocations.
type InvocationResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// Model is a loaded index and its manifest.
type Model struct {
	Index    *index.BruteForce
	Manifest *export.Manifest
}

// LoadModel reads the exported index and manifest from modelDir.
func LoadModel(ctx context.Context, modelDir string) (*Model, error) {
	dir := config.SavedModelDir(modelDir)
	store, err := storage.OpenStore(dir)
	if err != nil {
		return nil, err
	}
	idx, _, err := index.Load(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	manifest, err := export.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	metrics.IndexCandidates.Set(float64(idx.Summary().Candidates))
	return &Model{Index: idx, Manifest: manifest}, nil
}

// Handler answers inference requests. The model may be swapped while
// requests are in flight.
type Handler struct {
	model    atomic.Pointer[Model]
	cache    *cache.LRU[[]index.Result]
	defaultK int
	maxK     int
}

// NewHandler returns a handler with no model loaded. k limits come from the
// serve configuration.
func NewHandler(defaultK, maxK int) *Handler {
	if defaultK <= 0 {
		defaultK = index.DefaultK
	}
	if maxK < defaultK {
		maxK = defaultK
	}
	return &Handler{defaultK: defaultK, maxK: maxK}
}

// UseCache memoizes per-user results in an LRU of the given size. Call it
// before serving. A non-positive size leaves caching off.
func (h *Handler) UseCache(size int, ttl time.Duration) {
	if size <= 0 {
		h.cache = nil
		return
	}
	h.cache = cache.NewLRU[[]index.Result](size, ttl)
}

// SetModel installs m for subsequent requests and drops cached results.
func (h *Handler) SetModel(m *Model) {
	h.model.Store(m)
	if h.cache != nil {
		h.cache.Clear()
	}
}

// Ready reports whether a model is loaded.
func (h *Handler) Ready() bool {
	return h.model.Load() != nil
}

// Ping reports readiness.
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	if !h.Ready() {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "model not loaded", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Manifest returns the export manifest of the loaded model.
func (h *Handler) Manifest(w http.ResponseWriter, _ *http.Request) {
	m := h.model.Load()
	if m == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "model not loaded", nil)
		return
	}
	respondJSON(w, http.StatusOK, m.Manifest)
}

// Invocations ranks titles for the requested users.
func (h *Handler) Invocations(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	m := h.model.Load()
	if m == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "model not loaded", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
		return
	}
	var req InvocationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", nil)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verrs.Error(), verrs.Fields())
			return
		}
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	// required_without counts an empty, non-nil instances list as present.
	if len(req.Instances) == 0 && req.UserID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"user_id or a non-empty instances list is required", []string{"user_id", "instances"})
		return
	}

	k := req.K
	if k == 0 {
		k = h.defaultK
	}
	if k > h.maxK {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("k must be less than or equal to %d", h.maxK), []string{"k"})
		return
	}

	users := req.Instances
	if len(users) == 0 {
		users = []string{req.UserID}
	}

	results, err := h.query(m, users, k)
	if err != nil {
		log.Error().Err(err).Msg("Index query failed")
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "index query failed", nil)
		return
	}

	resp := InvocationResponse{Predictions: make([]Prediction, len(users))}
	for i, user := range users {
		p := Prediction{
			UserID:    user,
			KnownUser: m.Index.Known(user),
			Titles:    make([]string, len(results[i])),
			Scores:    make([]float32, len(results[i])),
		}
		for j, res := range results[i] {
			p.Titles[j] = res.Title
			p.Scores[j] = res.Score
		}
		resp.Predictions[i] = p
	}

	log.Debug().Int("users", len(users)).Int("k", k).Msg("Served invocation")
	respondJSON(w, http.StatusOK, resp)
}

// query answers from the cache where possible and batches the rest. Keys
// include the run ID so a request racing a reload never mixes models.
func (h *Handler) query(m *Model, users []string, k int) ([][]index.Result, error) {
	if h.cache == nil {
		return m.Index.QueryBatch(users, k)
	}

	prefix := m.Manifest.RunID + "\x00" + strconv.Itoa(k) + "\x00"
	results := make([][]index.Result, len(users))
	var missIdx []int
	var missUsers []string
	for i, user := range users {
		if r, ok := h.cache.Get(prefix + user); ok {
			results[i] = r
			metrics.RecordCacheLookup(true)
			continue
		}
		metrics.RecordCacheLookup(false)
		missIdx = append(missIdx, i)
		missUsers = append(missUsers, user)
	}
	if len(missUsers) == 0 {
		return results, nil
	}

	fresh, err := m.Index.QueryBatch(missUsers, k)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		results[i] = fresh[j]
		h.cache.Add(prefix+missUsers[j], fresh[j])
	}
	return results, nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, fields []string) {
	respondJSON(w, status, errorResponse{Error: APIError{Code: code, Message: message, Fields: fields}})
}
