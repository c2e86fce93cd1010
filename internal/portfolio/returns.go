package portfolio

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ReturnsMatrix holds periodic asset returns: one row per date, one column
// per asset. Dates are strictly ascending and every cell is populated -
// upstream data loading is responsible for filling gaps before handing the
// matrix to the optimizer.
type ReturnsMatrix struct {
	dates  []time.Time
	assets []string
	data   *mat.Dense
}

// NewReturnsMatrix builds a returns matrix from row-major data (rows are
// dates, columns follow the assets order). It validates shape, chronological
// order and that every entry is a finite number.
func NewReturnsMatrix(dates []time.Time, assets []string, rows [][]float64) (*ReturnsMatrix, error) {
	if len(dates) == 0 {
		return nil, NewConfigError("returns matrix has no periods")
	}
	if len(assets) == 0 {
		return nil, NewConfigError("returns matrix has no assets")
	}
	if len(rows) != len(dates) {
		return nil, NewConfigError("returns matrix has %d rows but %d dates", len(rows), len(dates))
	}

	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, NewConfigError("dates must be strictly ascending: %s !> %s",
				dates[i].Format("2006-01-02"), dates[i-1].Format("2006-01-02"))
		}
	}

	data := mat.NewDense(len(dates), len(assets), nil)
	for i, row := range rows {
		if len(row) != len(assets) {
			return nil, NewConfigError("row %d has %d values, expected %d", i, len(row), len(assets))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, NewConfigError("non-finite return at row %d, asset %s", i, assets[j])
			}
			data.Set(i, j, v)
		}
	}

	return &ReturnsMatrix{
		dates:  append([]time.Time(nil), dates...),
		assets: append([]string(nil), assets...),
		data:   data,
	}, nil
}

// Len returns the number of periods.
func (r *ReturnsMatrix) Len() int { return len(r.dates) }

// NumAssets returns the number of asset columns.
func (r *ReturnsMatrix) NumAssets() int { return len(r.assets) }

// Assets returns the ordered asset identifiers.
func (r *ReturnsMatrix) Assets() []string { return r.assets }

// Dates returns the ordered period dates.
func (r *ReturnsMatrix) Dates() []time.Time { return r.dates }

// Date returns the date of period i.
func (r *ReturnsMatrix) Date(i int) time.Time { return r.dates[i] }

// At returns the return of asset j in period i.
func (r *ReturnsMatrix) At(i, j int) float64 { return r.data.At(i, j) }

// MatchesAssets verifies that the matrix columns exactly match the given
// ordered asset list.
func (r *ReturnsMatrix) MatchesAssets(assets []string) error {
	if len(assets) != len(r.assets) {
		return NewConfigError("returns matrix has %d assets, spec has %d", len(r.assets), len(assets))
	}
	for i, a := range assets {
		if r.assets[i] != a {
			return NewConfigError("asset mismatch at column %d: matrix has %q, spec has %q", i, r.assets[i], a)
		}
	}
	return nil
}

// Window returns the half-open period slice [start, end). The slice shares
// the backing data with the parent matrix; callers treat windows as
// read-only.
func (r *ReturnsMatrix) Window(start, end int) *ReturnsMatrix {
	sub := r.data.Slice(start, end, 0, len(r.assets)).(*mat.Dense)
	return &ReturnsMatrix{
		dates:  r.dates[start:end],
		assets: r.assets,
		data:   sub,
	}
}

// PortfolioReturns computes the weighted return series w . row_t for every
// period in the matrix.
func (r *ReturnsMatrix) PortfolioReturns(weights []float64) []float64 {
	n := r.Len()
	series := make([]float64, n)
	w := mat.NewVecDense(len(weights), weights)
	var out mat.VecDense
	out.MulVec(r.data, w)
	for i := 0; i < n; i++ {
		series[i] = out.AtVec(i)
	}
	return series
}

// MeanVector computes the per-asset mean periodic return.
func (r *ReturnsMatrix) MeanVector() []float64 {
	mu := make([]float64, len(r.assets))
	col := make([]float64, r.Len())
	for j := range r.assets {
		mat.Col(col, j, r.data)
		mu[j] = stat.Mean(col, nil)
	}
	return mu
}

// Covariance computes the sample covariance matrix of asset returns.
func (r *ReturnsMatrix) Covariance() *mat.SymDense {
	cov := mat.NewSymDense(len(r.assets), nil)
	stat.CovarianceMatrix(cov, r.data, nil)
	return cov
}

// PortfolioVariance computes w' S w for the given weights against the sample
// covariance of this window.
func (r *ReturnsMatrix) PortfolioVariance(weights []float64) float64 {
	cov := r.Covariance()
	return QuadraticForm(weights, cov)
}

// QuadraticForm computes w' S w.
func QuadraticForm(weights []float64, cov *mat.SymDense) float64 {
	w := mat.NewVecDense(len(weights), weights)
	var sw mat.VecDense
	sw.MulVec(cov, w)
	return mat.Dot(w, &sw)
}
