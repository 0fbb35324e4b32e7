package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttc-bus-delays/busdelay/internal/analysis"
	"github.com/ttc-bus-delays/busdelay/internal/dataset"
	"github.com/ttc-bus-delays/busdelay/internal/dataset/datasettest"
	"github.com/ttc-bus-delays/busdelay/internal/db"
	"github.com/ttc-bus-delays/busdelay/internal/diagnostics"
	"github.com/ttc-bus-delays/busdelay/internal/model"
)

type stubModels struct {
	fm    *model.FittedModel
	err   error
	calls atomic.Int32
}

func (s *stubModels) LatestModel(ctx context.Context) (*model.FittedModel, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if s.fm == nil {
		return nil, db.ErrModelArtifactMissing
	}
	return s.fm, nil
}

func fitted(t *testing.T, ds *dataset.Dataset) *model.FittedModel {
	t.Helper()
	fm, err := model.Fit(context.Background(), ds, model.DefaultPriors(),
		model.SamplerConfig{Chains: 2, Iterations: 100, Warmup: 50, Seed: 987})
	require.NoError(t, err)
	return fm
}

func newServer(t *testing.T, models ModelSource, ds *dataset.Dataset) *httptest.Server {
	t.Helper()
	cfg := diagnostics.DefaultConfig()
	cfg.PPCDraws = 10
	srv := httptest.NewServer(NewRouter(NewHandler(models, ds, analysis.DefaultHistogramConfig(), cfg), nil))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestNoModelCached(t *testing.T) {
	ds := datasettest.Synthetic(50, 1)
	srv := newServer(t, &stubModels{}, ds)

	for _, path := range []string{"/api/summary", "/api/diagnostics", "/api/trace/sigma"} {
		t.Run(path, func(t *testing.T) {
			var body ErrorResponse
			assert.Equal(t, http.StatusNotFound, get(t, srv, path, &body))
			assert.Equal(t, "No fitted model cached", body.Error)
		})
	}

	var health HealthResponse
	assert.Equal(t, http.StatusOK, get(t, srv, "/health", &health))
	assert.Equal(t, "missing", health.Model)
	assert.Equal(t, 50, health.Records)

	// descriptives need no model
	var desc analysis.Descriptives
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/descriptives", &desc))
	assert.Equal(t, 50, desc.Records)
	assert.Len(t, desc.DayMeans, 7)
}

func TestStoreFailure(t *testing.T) {
	srv := newServer(t, &stubModels{err: errors.New("disk on fire")}, datasettest.Synthetic(10, 1))

	var health HealthResponse
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/health", &health))
	assert.Equal(t, "error", health.Status)
	assert.Equal(t, "disk on fire", health.Error)

	var body ErrorResponse
	assert.Equal(t, http.StatusInternalServerError, get(t, srv, "/api/summary", &body))
	assert.Equal(t, "Failed to load model", body.Error)
}

func TestWithModel(t *testing.T) {
	ds := datasettest.Synthetic(300, 2)
	fm := fitted(t, ds)
	models := &stubModels{fm: fm}
	srv := newServer(t, models, ds)

	t.Run("health", func(t *testing.T) {
		var health HealthResponse
		assert.Equal(t, http.StatusOK, get(t, srv, "/health", &health))
		assert.Equal(t, "cached", health.Model)
		assert.Equal(t, fm.ID(), health.ModelID)
	})

	t.Run("summary", func(t *testing.T) {
		var body struct {
			ModelID string `json:"modelId"`
			Rows    []struct {
				Param string `json:"param"`
				Label string `json:"label"`
			} `json:"rows"`
		}
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/summary", &body))
		assert.Equal(t, fm.ID(), body.ModelID)
		require.Len(t, body.Rows, len(fm.Params()))
		assert.Equal(t, "Intercept", body.Rows[0].Label)
	})

	t.Run("diagnostics cached per model", func(t *testing.T) {
		var first, second diagnostics.Report
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/diagnostics", &first))
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/diagnostics", &second))
		assert.Equal(t, fm.ID(), first.ModelID)
		assert.Equal(t, 10, first.Predictive.Draws)
		assert.Equal(t, first.Predictive.MeanOfMeans, second.Predictive.MeanOfMeans)
	})

	t.Run("trace", func(t *testing.T) {
		var tr TraceResponse
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/trace/"+url.PathEscape(model.ParamIntercept), &tr))
		assert.Equal(t, "Intercept", tr.Label)
		require.Len(t, tr.Chains, 2)
		assert.Len(t, tr.Chains[0], 50)

		inc := model.IncidentParam(dataset.IncidentMechanical)
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/trace/"+url.PathEscape(inc), &tr))
		assert.Equal(t, "Incident: Mechanical", tr.Label)
	})

	t.Run("unknown trace parameter", func(t *testing.T) {
		var body ErrorResponse
		assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/trace/bogus", &body))
		assert.Equal(t, "Unknown parameter", body.Error)
		assert.Equal(t, "bogus", body.Details["param"])
	})
}

func TestCORS(t *testing.T) {
	srv := newServer(t, &stubModels{}, datasettest.Synthetic(10, 1))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/descriptives", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
