package regression

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConstName is the name of the intercept term.
const ConstName = "const"

// Fit errors.
var (
	ErrInsufficientData = eris.New("regression: insufficient data")
	ErrSingularMatrix   = eris.New("regression: singular design matrix")
)

// maxCondition bounds the condition number of X'X; anything above is
// treated as perfect collinearity.
const maxCondition = 1e13

// aliasTol is the relative residual norm under which a column counts as a
// linear combination of the columns before it.
const aliasTol = 1e-8

// Model is a fitted OLS regression. It is not modified after Fit.
type Model struct {
	Dependent string
	// Params lists the parameter names, "const" first, in design order.
	Params  []string
	Coef    []float64
	StdErr  []float64
	TValues []float64
	PValues []float64
	N       int
	R2      float64
	AdjR2   float64
	// Dropped are explanatory columns left out because they were constant
	// over the estimation sample or a linear combination of earlier
	// columns.
	Dropped []string
}

// Param returns the coefficient and p-value of a named parameter.
func (m *Model) Param(name string) (coef, p float64, ok bool) {
	for i, n := range m.Params {
		if n == name {
			return m.Coef[i], m.PValues[i], true
		}
	}
	return 0, 0, false
}

// DF returns the residual degrees of freedom.
func (m *Model) DF() int { return m.N - len(m.Params) }

// Fit regresses dependent on explanatory plus an intercept. Rows with a NaN
// in any listed column are dropped first. Explanatory columns that cannot be
// identified over the remaining rows are aliased: dropped and listed in
// Model.Dropped. That covers a dummy whose category was filtered away and a
// population band nested in commune fixed effects. Columns are considered
// in the given order, so the later of two collinear columns is dropped.
func Fit(f *Frame, dependent string, explanatory []string) (*Model, error) {
	y, ok := f.Column(dependent)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownColumn, "%s", dependent)
	}
	xs := make([][]float64, len(explanatory))
	for j, name := range explanatory {
		c, ok := f.Column(name)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownColumn, "%s", name)
		}
		xs[j] = c
	}

	rows := completeRows(y, xs)
	n := len(rows)
	if n == 0 {
		return nil, eris.Wrapf(ErrInsufficientData, "no complete rows for %s", dependent)
	}

	m := &Model{Dependent: dependent, N: n, Params: []string{ConstName}}
	var kept [][]float64
	basis := []*mat.VecDense{unitOnes(n)}
	for j, name := range explanatory {
		v, ok := independent(xs[j], rows, basis)
		if !ok {
			m.Dropped = append(m.Dropped, name)
			continue
		}
		basis = append(basis, v)
		m.Params = append(m.Params, name)
		kept = append(kept, xs[j])
	}
	if len(m.Dropped) > 0 {
		zap.L().Debug("regression: aliased columns dropped", zap.Strings("columns", m.Dropped))
	}

	k := len(m.Params)
	if n <= k {
		return nil, eris.Wrapf(ErrInsufficientData, "%d rows for %d parameters", n, k)
	}

	X := mat.NewDense(n, k, nil)
	yv := mat.NewVecDense(n, nil)
	for r, i := range rows {
		X.Set(r, 0, 1)
		for j, c := range kept {
			X.Set(r, j+1, c[i])
		}
		yv.SetVec(r, y[i])
	}

	xtx := mat.NewSymDense(k, nil)
	xtx.SymOuterK(1, X.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok || chol.Cond() > maxCondition {
		return nil, eris.Wrapf(ErrSingularMatrix, "%s on %d parameters", dependent, k)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), yv)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, eris.Wrap(ErrSingularMatrix, err.Error())
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, eris.Wrap(ErrSingularMatrix, err.Error())
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	var mean float64
	for i := 0; i < n; i++ {
		mean += yv.AtVec(i)
	}
	mean /= float64(n)

	var ssr, tss float64
	for i := 0; i < n; i++ {
		e := yv.AtVec(i) - fitted.AtVec(i)
		ssr += e * e
		d := yv.AtVec(i) - mean
		tss += d * d
	}

	df := float64(n - k)
	s2 := ssr / df
	if tss > 0 {
		m.R2 = 1 - ssr/tss
		m.AdjR2 = 1 - (1-m.R2)*float64(n-1)/df
	} else {
		m.R2, m.AdjR2 = math.NaN(), math.NaN()
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	m.Coef = make([]float64, k)
	m.StdErr = make([]float64, k)
	m.TValues = make([]float64, k)
	m.PValues = make([]float64, k)
	for j := 0; j < k; j++ {
		m.Coef[j] = beta.AtVec(j)
		m.StdErr[j] = math.Sqrt(s2 * inv.At(j, j))
		if m.StdErr[j] == 0 {
			m.TValues[j] = math.Inf(sign(m.Coef[j]))
			m.PValues[j] = 0
			continue
		}
		m.TValues[j] = m.Coef[j] / m.StdErr[j]
		m.PValues[j] = 2 * tdist.Survival(math.Abs(m.TValues[j]))
	}
	return m, nil
}

func completeRows(y []float64, xs [][]float64) []int {
	var rows []int
next:
	for i := range y {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		for _, c := range xs {
			if math.IsNaN(c[i]) || math.IsInf(c[i], 0) {
				continue next
			}
		}
		rows = append(rows, i)
	}
	return rows
}

func unitOnes(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	w := 1 / math.Sqrt(float64(n))
	for i := 0; i < n; i++ {
		v.SetVec(i, w)
	}
	return v
}

// independent orthogonalizes column c (restricted to rows) against the
// orthonormal basis. It returns the normalized residual, or false when the
// residual vanishes.
func independent(c []float64, rows []int, basis []*mat.VecDense) (*mat.VecDense, bool) {
	v := mat.NewVecDense(len(rows), nil)
	for r, i := range rows {
		v.SetVec(r, c[i])
	}
	norm0 := mat.Norm(v, 2)
	if norm0 == 0 {
		return nil, false
	}
	// Two passes of modified Gram-Schmidt keep the residual orthogonal.
	for pass := 0; pass < 2; pass++ {
		for _, b := range basis {
			v.AddScaledVec(v, -mat.Dot(v, b), b)
		}
	}
	norm := mat.Norm(v, 2)
	if norm <= aliasTol*norm0 {
		return nil, false
	}
	v.ScaleVec(1/norm, v)
	return v, true
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
