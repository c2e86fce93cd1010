package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDates returns n consecutive daily dates.
func testDates(n int) []time.Time {
	dates := make([]time.Time, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func TestNewReturnsMatrixValidation(t *testing.T) {
	dates := testDates(3)
	assets := []string{"A", "B"}

	_, err := NewReturnsMatrix(nil, assets, nil)
	assert.Error(t, err, "no periods")

	_, err = NewReturnsMatrix(dates, nil, [][]float64{{0.1}, {0.1}, {0.1}})
	assert.Error(t, err, "no assets")

	_, err = NewReturnsMatrix(dates, assets, [][]float64{{0.1, 0.2}})
	assert.Error(t, err, "row/date count mismatch")

	_, err = NewReturnsMatrix(dates, assets, [][]float64{{0.1, 0.2}, {0.1}, {0.1, 0.2}})
	assert.Error(t, err, "ragged row")

	_, err = NewReturnsMatrix(dates, assets, [][]float64{{0.1, 0.2}, {math.NaN(), 0.1}, {0.1, 0.2}})
	assert.Error(t, err, "NaN cell")

	// Dates must be strictly ascending.
	bad := []time.Time{dates[0], dates[2], dates[1]}
	_, err = NewReturnsMatrix(bad, assets, [][]float64{{0, 0}, {0, 0}, {0, 0}})
	assert.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestReturnsMatrixWindow(t *testing.T) {
	dates := testDates(5)
	rm, err := NewReturnsMatrix(dates, []string{"A"}, [][]float64{{0.01}, {0.02}, {0.03}, {0.04}, {0.05}})
	require.NoError(t, err)

	w := rm.Window(1, 4)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, dates[1], w.Date(0))
	assert.InDelta(t, 0.02, w.At(0, 0), 1e-12)
	assert.InDelta(t, 0.04, w.At(2, 0), 1e-12)
}

func TestPortfolioReturnsAndMoments(t *testing.T) {
	rm, err := NewReturnsMatrix(testDates(4), []string{"A", "B"}, [][]float64{
		{0.02, 0.00},
		{0.00, 0.02},
		{0.02, 0.00},
		{0.00, 0.02},
	})
	require.NoError(t, err)

	series := rm.PortfolioReturns([]float64{0.5, 0.5})
	for _, v := range series {
		assert.InDelta(t, 0.01, v, 1e-12, "equal weight cancels the alternation")
	}

	mu := rm.MeanVector()
	assert.InDelta(t, 0.01, mu[0], 1e-12)
	assert.InDelta(t, 0.01, mu[1], 1e-12)

	cov := rm.Covariance()
	assert.Less(t, cov.At(0, 1), 0.0, "perfectly alternating assets are negatively correlated")
	assert.InDelta(t, 0.0, rm.PortfolioVariance([]float64{0.5, 0.5}), 1e-12)
}

func TestMatchesAssets(t *testing.T) {
	rm, err := NewReturnsMatrix(testDates(2), []string{"A", "B"}, [][]float64{{0, 0}, {0, 0}})
	require.NoError(t, err)

	assert.NoError(t, rm.MatchesAssets([]string{"A", "B"}))

	err = rm.MatchesAssets([]string{"B", "A"})
	assert.True(t, IsConfigError(err), "order matters")

	err = rm.MatchesAssets([]string{"A"})
	assert.True(t, IsConfigError(err))
}
