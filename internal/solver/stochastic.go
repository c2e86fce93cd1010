package solver

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/random"
)

// candidateScore holds one evaluated candidate. Kept by index so the
// selection is deterministic regardless of which worker finished first.
type candidateScore struct {
	feasible bool
	score    float64
}

// solveStochastic draws candidates from the random portfolio generator,
// filters by the full constraint set, evaluates the aggregate objective and
// keeps the best feasible candidate. Candidate generation is sequential and
// seed-deterministic; evaluation fans out over read-only data.
//
// Context cancellation stops the search early and returns the best candidate
// found so far, so long searches can be interrupted without losing the run.
func (d *Dispatcher) solveStochastic(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, opts Options) (*Result, error) {
	gen, err := random.New(spec, random.Config{
		Strategy:       opts.Strategy,
		Permutations:   opts.Permutations,
		Seed:           opts.Seed,
		GridResolution: opts.GridResolution,
	})
	if err != nil {
		return nil, err
	}
	candidates := gen.All()

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	scores := make([]candidateScore, len(candidates))
	evaluated := 0

	if workers > 1 {
		evaluated = d.evaluateParallel(ctx, spec, returns, candidates, scores, workers)
	} else {
		for i, w := range candidates {
			if ctx.Err() != nil {
				break
			}
			scores[i] = evaluate(spec, returns, w)
			evaluated++
		}
	}

	best := -1
	bestScore := math.Inf(-1)
	for i := 0; i < evaluated; i++ {
		if scores[i].feasible && scores[i].score > bestScore {
			best = i
			bestScore = scores[i].score
		}
	}

	if best < 0 {
		return nil, portfolio.NewInfeasibleError(
			"no feasible candidate among %d generated (strategy=%s); increase permutations or relax constraints",
			evaluated, opts.Strategy)
	}

	weights := candidates[best]
	d.log.Debug().
		Int("candidates", len(candidates)).
		Int("evaluated", evaluated).
		Int("best_index", best).
		Float64("score", bestScore).
		Msg("Stochastic search finished")

	return &Result{
		Assets:    spec.Assets,
		Weights:   weights,
		Score:     bestScore,
		Measures:  spec.Measures(weights, returns),
		Method:    MethodStochastic,
		Evaluated: evaluated,
	}, nil
}

// evaluateParallel fans candidate evaluation out over contiguous chunks.
// Workers only write disjoint slice ranges; the spec and returns window are
// shared read-only. Returns how many leading candidates are guaranteed
// evaluated (a cancelled search may leave a tail unscored).
func (d *Dispatcher) evaluateParallel(ctx context.Context, spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, candidates [][]float64, scores []candidateScore, workers int) int {
	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(candidates) + workers - 1) / workers

	done := make([]int, workers)
	for worker := 0; worker < workers; worker++ {
		worker := worker
		start := worker * chunk
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		if start >= end {
			done[worker] = end
			continue
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					return nil
				}
				scores[i] = evaluate(spec, returns, candidates[i])
				done[worker] = i + 1
			}
			return nil
		})
	}
	_ = g.Wait()

	// The evaluated prefix ends at the first unfinished chunk.
	evaluated := len(candidates)
	for worker := 0; worker < workers; worker++ {
		start := worker * chunk
		if start >= len(candidates) {
			break
		}
		if done[worker] < start {
			evaluated = start
			break
		}
		if end := start + chunk; done[worker] < end && done[worker] < len(candidates) {
			evaluated = done[worker]
			break
		}
	}
	return evaluated
}

func evaluate(spec *portfolio.Spec, returns *portfolio.ReturnsMatrix, weights []float64) candidateScore {
	if !spec.Feasible(weights) {
		return candidateScore{}
	}
	return candidateScore{feasible: true, score: spec.Score(weights, returns)}
}
