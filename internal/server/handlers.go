package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/backtest"
	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/random"
	"github.com/aristath/folio/internal/solver"
	"github.com/aristath/folio/internal/storage"
)

// defaultListLimit caps run listings without an explicit limit parameter.
const defaultListLimit = 50

// Defaults applied to requests that leave solve parameters unset.
type Defaults struct {
	Permutations int
	Seed         int64
}

// Handler serves the optimization API.
type Handler struct {
	dispatcher *solver.Dispatcher
	engine     *backtest.Engine
	runs       *storage.RunRepository
	defaults   Defaults
	log        zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(dispatcher *solver.Dispatcher, engine *backtest.Engine, runs *storage.RunRepository, defaults Defaults, log zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		engine:     engine,
		runs:       runs,
		defaults:   defaults,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/optimize", h.handleOptimize)
		r.Post("/backtest", h.handleBacktest)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{id}", h.handleGetRun)
	})
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, portfolio.NewConfigError("bad request body: %v", err))
		return
	}

	spec, returns, opts, err := h.prepare(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.dispatcher.Solve(r.Context(), spec, returns, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := struct {
		*solver.Result
		RunID string `json:"run_id,omitempty"`
	}{Result: result}

	if req.Save && h.runs != nil {
		id, err := h.runs.SaveOptimization(result)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to store optimization run")
		} else {
			resp.RunID = id
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, portfolio.NewConfigError("bad request body: %v", err))
		return
	}

	spec, returns, opts, err := h.prepare(&req.optimizeRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Run(r.Context(), spec, returns, backtest.Config{
		Schedule: backtest.ScheduleConfig{
			TrainingPeriod: req.TrainingPeriod,
			RollingWindow:  req.RollingWindow,
			RebalanceOn:    backtest.Frequency(req.RebalanceOn),
		},
		Solve:   opts,
		Workers: req.Workers,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := struct {
		*backtest.Result
		RunID string `json:"run_id,omitempty"`
	}{Result: result}

	if req.Save && h.runs != nil {
		id, err := h.runs.SaveBacktest(spec.Assets, string(opts.Method), result)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to store backtest run")
		} else {
			resp.RunID = id
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, portfolio.NewConfigError("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	runs, err := h.runs.List(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// prepare decodes the request into domain objects and fills solve defaults.
func (h *Handler) prepare(req *optimizeRequest) (*portfolio.Spec, *portfolio.ReturnsMatrix, solver.Options, error) {
	spec, err := buildSpec(req)
	if err != nil {
		return nil, nil, solver.Options{}, err
	}
	returns, err := buildReturns(req)
	if err != nil {
		return nil, nil, solver.Options{}, err
	}

	opts := solver.Options{
		Method:         solver.Method(req.Method),
		Permutations:   req.Permutations,
		Seed:           h.defaults.Seed,
		Strategy:       random.Strategy(req.Strategy),
		GridResolution: req.GridResolution,
	}
	if opts.Permutations <= 0 {
		opts.Permutations = h.defaults.Permutations
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	return spec, returns, opts, nil
}

// writeError maps the error taxonomy onto HTTP status codes: configuration
// problems are the client's (400), infeasibility is a valid outcome with no
// solution (422), numeric failure is ours (500).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case portfolio.IsConfigError(err):
		status = http.StatusBadRequest
	case portfolio.IsInfeasible(err):
		status = http.StatusUnprocessableEntity
	case portfolio.IsSolverError(err):
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
