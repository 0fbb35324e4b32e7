package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/model"
	"github.com/ttc-bus-delays/busdelay/internal/summary"
)

// ModelSource provides the cached fitted model. db.ArtifactStore satisfies it.
type ModelSource interface {
	LatestModel(ctx context.Context) (*model.FittedModel, error)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Model     string    `json:"model"` // "cached" or "missing"
	ModelID   string    `json:"modelId,omitempty"`
	Records   int       `json:"records"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// TraceResponse is the JSON response for GET /api/trace/{param}
type TraceResponse struct {
	ModelID string      `json:"modelId"`
	Param   string      `json:"param"`
	Label   string      `json:"label"`
	Chains  [][]float64 `json:"chains"`
}

// Handler serves the pipeline outputs over HTTP
type Handler struct {
	models ModelSource
	data   *dataset.Dataset
	hist   analysis.HistogramConfig
	diag   diagnostics.Config

	mu        sync.Mutex
	diagCache map[string]*diagnostics.Report // by model ID
}

// NewHandler creates a handler over the dataset the model was fitted on
func NewHandler(models ModelSource, data *dataset.Dataset, hist analysis.HistogramConfig, diag diagnostics.Config) *Handler {
	return &Handler{
		models:    models,
		data:      data,
		hist:      hist,
		diag:      diag,
		diagCache: make(map[string]*diagnostics.Report),
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Model: "cached", Records: h.data.Len(), Timestamp: time.Now().UTC()}
	fm, err := h.models.LatestModel(ctx)
	switch {
	case errors.Is(err, db.ErrModelArtifactMissing):
		resp.Model = "missing"
	case err != nil:
		resp.Status = "error"
		resp.Model = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	default:
		resp.ModelID = fm.ID()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSummary handles GET /api/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	fm, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summary.Summarize(fm))
}

// GetDiagnostics handles GET /api/diagnostics. Reports are computed once
// per model.
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	fm, ok := h.latest(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	rep, cached := h.diagCache[fm.ID()]
	if !cached {
		rep = diagnostics.Run(fm, h.data, h.diag)
		h.diagCache[fm.ID()] = rep
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, rep)
}

// GetDescriptives handles GET /api/descriptives
// Query params: none; the histogram uses the configured bins.
func (h *Handler) GetDescriptives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, analysis.Describe(h.data, h.hist))
}

// GetTrace handles GET /api/trace/{param}
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "param")
	fm, ok := h.latest(w, r)
	if !ok {
		return
	}

	chains, err := diagnostics.Trace(fm, param)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Unknown parameter",
			Details: map[string]interface{}{"param": param, "available": fm.Params()},
		})
		return
	}
	writeJSON(w, http.StatusOK, TraceResponse{
		ModelID: fm.ID(),
		Param:   param,
		Label:   summary.Label(param),
		Chains:  chains,
	})
}

// latest loads the cached model or writes the error response
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*model.FittedModel, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	fm, err := h.models.LatestModel(ctx)
	if errors.Is(err, db.ErrModelArtifactMissing) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "No fitted model cached"})
		return nil, false
	}
	if err != nil {
		logging.L().Errorf("API: failed to load model: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to load model"})
		return nil, false
	}
	return fm, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warnf("API: failed to encode response: %v", err)
	}
}
