package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/backtest"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/solver"
	"github.com/aristath/folio/internal/storage"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	dispatcher := solver.NewDispatcher(nil, zerolog.Nop())
	engine := backtest.New(dispatcher, zerolog.Nop())
	handler := NewHandler(dispatcher, engine, nil, Defaults{Permutations: 500, Seed: 42}, zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func postJSON(t *testing.T, router http.Handler, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// optimizeBody builds a valid two-asset request with daily returns.
func optimizeBody(periods int) map[string]any {
	dates := make([]string, periods)
	returns := make([][]float64, periods)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < periods; i++ {
		dates[i] = start.AddDate(0, 0, i).Format("2006-01-02")
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		returns[i] = []float64{0.01 + sign*0.04, 0.008 + sign*0.005}
	}
	return map[string]any{
		"assets":  []string{"A", "B"},
		"dates":   dates,
		"returns": returns,
		"constraints": []map[string]any{
			{"type": "full_investment"},
			{"type": "long_only"},
		},
		"objectives": []map[string]any{
			{"type": "risk", "metric": "stddev"},
		},
		"method": "stochastic",
		"seed":   7,
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/api/optimize", optimizeBody(20))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp solver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"A", "B"}, resp.Assets)
	assert.Equal(t, 500, resp.Evaluated, "defaults fill unset permutations")

	sum := resp.Weights[0] + resp.Weights[1]
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, resp.Weights[1], resp.Weights[0], "minimum risk favors the calmer asset")
}

func TestOptimizeBadConfigReturns400(t *testing.T) {
	router := newTestRouter(t)

	body := optimizeBody(20)
	body["objectives"] = []map[string]any{{"type": "sortino"}}
	rec := postJSON(t, router, "/api/optimize", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/api/optimize", map[string]any{"assets": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeInfeasibleReturns422(t *testing.T) {
	router := newTestRouter(t)

	body := optimizeBody(20)
	body["constraints"] = []map[string]any{
		{"type": "full_investment"},
		{"type": "box", "min": 0, "max": 0.3},
	}
	rec := postJSON(t, router, "/api/optimize", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "infeasible")
}

func TestBacktestEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := optimizeBody(40)
	body["rolling_window"] = 10
	body["rebalance_on"] = "days"
	rec := postJSON(t, router, "/api/backtest", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 30)
	assert.Equal(t, 0, resp.Gaps())
	for i := 1; i < len(resp.Entries); i++ {
		assert.True(t, resp.Entries[i].Date.After(resp.Entries[i-1].Date))
	}
}

func TestBacktestBadScheduleReturns400(t *testing.T) {
	router := newTestRouter(t)

	body := optimizeBody(10)
	body["rolling_window"] = 50
	rec := postJSON(t, router, "/api/backtest", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newTestRouterWithRuns(t *testing.T) (*chi.Mux, *storage.RunRepository) {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "runs.db"),
		Name: "runs",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runs, err := storage.NewRunRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)

	dispatcher := solver.NewDispatcher(nil, zerolog.Nop())
	engine := backtest.New(dispatcher, zerolog.Nop())
	handler := NewHandler(dispatcher, engine, runs, Defaults{Permutations: 500, Seed: 42}, zerolog.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, runs
}

func TestListRunsHonorsLimitParameter(t *testing.T) {
	router, runs := newTestRouterWithRuns(t)

	for i := 0; i < 3; i++ {
		_, err := runs.SaveOptimization(&solver.Result{
			Assets:  []string{"A", "B"},
			Weights: []float64{0.5, 0.5},
			Method:  solver.MethodStochastic,
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []storage.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBodyReturns400(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/optimize", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
