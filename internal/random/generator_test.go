package random

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/portfolio"
)

func testSpec(t *testing.T, n int) *portfolio.Spec {
	t.Helper()
	assets := make([]string, n)
	for i := range assets {
		assets[i] = string(rune('A' + i))
	}
	spec, err := portfolio.NewSpec(assets)
	require.NoError(t, err)
	return spec.AddConstraint(portfolio.NewFullInvestment()).AddConstraint(portfolio.NewLongOnly(n))
}

func TestSimplexBudgetHoldsByConstruction(t *testing.T) {
	spec := testSpec(t, 4)
	gen, err := New(spec, Config{Strategy: StrategySimplex, Permutations: 200, Seed: 7})
	require.NoError(t, err)

	count := 0
	for {
		w, ok := gen.Next()
		if !ok {
			break
		}
		count++
		sum := 0.0
		for _, v := range w {
			require.False(t, math.IsNaN(v))
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "budget must hold for every simplex draw")
	}
	assert.Equal(t, 200, count)
}

func TestSampleRespectsBudgetAfterRescale(t *testing.T) {
	spec := testSpec(t, 3)
	gen, err := New(spec, Config{Strategy: StrategySample, Permutations: 100, Seed: 3})
	require.NoError(t, err)

	for _, w := range gen.All() {
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestSeedDeterminismAndReset(t *testing.T) {
	spec := testSpec(t, 3)

	a, err := New(spec, Config{Strategy: StrategySimplex, Permutations: 50, Seed: 42})
	require.NoError(t, err)
	b, err := New(spec, Config{Strategy: StrategySimplex, Permutations: 50, Seed: 42})
	require.NoError(t, err)

	first := a.All()
	assert.Equal(t, first, b.All(), "same seed must replay the identical sequence")

	a.Reset()
	assert.Equal(t, first, a.All(), "reset rewinds to the first candidate")

	c, err := New(spec, Config{Strategy: StrategySimplex, Permutations: 50, Seed: 43})
	require.NoError(t, err)
	assert.NotEqual(t, first, c.All(), "a different seed draws a different sequence")
}

func TestGridEnumeration(t *testing.T) {
	spec := testSpec(t, 2)
	gen, err := New(spec, Config{Strategy: StrategyGrid, Permutations: 100, Seed: 1, GridResolution: 0.5})
	require.NoError(t, err)

	got := gen.All()
	// Lattice points on the budget: (0,1), (0.5,0.5), (1,0).
	require.Len(t, got, 3)
	for _, w := range got {
		assert.InDelta(t, 1.0, w[0]+w[1], 1e-9)
	}

	gen.Reset()
	assert.Equal(t, 3, gen.Remaining())
	assert.Equal(t, got, gen.All(), "grid enumeration is deterministic")
}

func TestGridCapAndValidation(t *testing.T) {
	spec := testSpec(t, 4)

	capped, err := New(spec, Config{Strategy: StrategyGrid, Permutations: 5, Seed: 1, GridResolution: 0.1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(capped.All()), 5, "enumeration stops at the permutation cap")

	_, err = New(spec, Config{Strategy: StrategyGrid, GridResolution: 1.5})
	assert.True(t, portfolio.IsConfigError(err))

	_, err = New(spec, Config{Strategy: "metropolis"})
	assert.True(t, portfolio.IsConfigError(err))
}

func TestDefaultsApplied(t *testing.T) {
	spec := testSpec(t, 2)
	gen, err := New(spec, Config{Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultPermutations, gen.Remaining(), "unset strategy defaults to simplex with default permutations")
}

func TestSampleDrawsShortsWhenBoxAllowsThem(t *testing.T) {
	spec, err := portfolio.NewSpec([]string{"A", "B"})
	require.NoError(t, err)
	spec = spec.
		AddConstraint(portfolio.NewFullInvestment()).
		AddConstraint(portfolio.NewBox([]float64{-0.5, -0.5}, []float64{1.5, 1.5}))

	gen, err := New(spec, Config{Strategy: StrategySample, Permutations: 200, Seed: 17})
	require.NoError(t, err)

	shorts := 0
	for _, w := range gen.All() {
		for _, v := range w {
			if v < 0 {
				shorts++
				break
			}
		}
	}
	assert.Greater(t, shorts, 0, "a short-permitting box must produce short candidates")
}

func TestBoxBoundsShapeDraws(t *testing.T) {
	spec, err := portfolio.NewSpec([]string{"A", "B", "C"})
	require.NoError(t, err)
	spec = spec.
		AddConstraint(portfolio.NewFullInvestment()).
		AddConstraint(portfolio.NewBox([]float64{0.1, 0.1, 0.1}, []float64{0.5, 0.5, 0.5}))

	gen, err := New(spec, Config{Strategy: StrategySimplex, Permutations: 300, Seed: 11})
	require.NoError(t, err)

	inBox := 0
	for _, w := range gen.All() {
		ok := true
		for _, v := range w {
			if v < 0.1-portfolio.FeasibilityTol || v > 0.5+portfolio.FeasibilityTol {
				ok = false
			}
		}
		if ok {
			inBox++
		}
	}
	// Resampling pushes most draws inside the box; the bounded retry budget
	// means a stray violator is allowed through.
	assert.Greater(t, inBox, 250)
}
