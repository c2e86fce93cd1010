// Package storage persists optimization and backtest results so runs can be
// listed and inspected after the fact.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/backtest"
	"github.com/aristath/folio/internal/solver"
)

// Run kinds stored in the repository.
const (
	KindOptimization = "optimization"
	KindBacktest     = "backtest"
)

// Run is one stored result with its metadata. Payload holds the JSON-encoded
// solver.Result or backtest.Result depending on Kind.
type Run struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind"`
	Method    string          `json:"method"`
	Assets    []string        `json:"assets"`
	Payload   json.RawMessage `json:"payload"`
}

// RunRepository stores runs in SQLite.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a repository and ensures its schema exists.
func NewRunRepository(db *sql.DB, log zerolog.Logger) (*RunRepository, error) {
	repo := &RunRepository{
		db:  db,
		log: log.With().Str("component", "run_repository").Logger(),
	}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *RunRepository) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			kind       TEXT NOT NULL,
			method     TEXT NOT NULL,
			assets     TEXT NOT NULL,
			payload    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize runs schema: %w", err)
	}
	return nil
}

// SaveOptimization stores a single-period result and returns its run ID.
func (r *RunRepository) SaveOptimization(result *solver.Result) (string, error) {
	return r.save(KindOptimization, string(result.Method), result.Assets, result)
}

// SaveBacktest stores a backtest result and returns its run ID.
func (r *RunRepository) SaveBacktest(assets []string, method string, result *backtest.Result) (string, error) {
	return r.save(KindBacktest, method, assets, result)
}

func (r *RunRepository) save(kind, method string, assets []string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return "", fmt.Errorf("failed to encode asset list: %w", err)
	}

	id := uuid.New().String()
	_, err = r.db.Exec(
		`INSERT INTO runs (id, created_at, kind, method, assets, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), kind, method, string(assetsJSON), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store %s run: %w", kind, err)
	}

	r.log.Debug().
		Str("run_id", id).
		Str("kind", kind).
		Str("method", method).
		Msg("Stored run")
	return id, nil
}

// Get fetches one run by ID. Returns sql.ErrNoRows when absent.
func (r *RunRepository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`SELECT id, created_at, kind, method, assets, payload FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, created_at, kind, method, assets, payload FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs created before the cutoff and returns how many were
// removed.
func (r *RunRepository) Prune(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	if deleted > 0 {
		r.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned old runs")
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var assetsJSON string
	var payload string
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.Kind, &run.Method, &assetsJSON, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assetsJSON), &run.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode asset list for run %s: %w", run.ID, err)
	}
	run.Payload = json.RawMessage(strings.TrimSpace(payload))
	return &run, nil
}
