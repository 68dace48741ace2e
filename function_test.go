// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/curioloop/jacobian/coloring"
	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/numdiff"
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// twoByThree has non-zeros at (0,0) (0,1) (1,2):
//
//	r0 = x0*x1 + sin(x0)
//	r1 = x2²
type twoByThree struct {
	calls int
}

var twoByThreePattern = sparsity.MustPattern([]int{0, 0, 1}, []int{0, 1, 2})

func (m *twoByThree) residual(x, res []float64) error {
	res[0] = x[0]*x[1] + math.Sin(x[0])
	res[1] = x[2] * x[2]
	return nil
}

func (m *twoByThree) directional(x, seed, res, dres []float64) error {
	m.calls++
	_ = m.residual(x, res)
	dres[0] = (x[1]+math.Cos(x[0]))*seed[0] + x[0]*seed[1]
	dres[1] = 2 * x[2] * seed[2]
	return nil
}

func (m *twoByThree) symbolic(x []float64, l Layout, p *sparsity.Filtered, jac []float64) error {
	values := []float64{x[1] + math.Cos(x[0]), x[0], 2 * x[2]}
	return Scatter(l, p, 2, values, jac)
}

func newTwoByThree(t *testing.T, sym, dir bool) (*Function, *twoByThree, *vars.Selection) {
	l, err := vars.NewLayout(vars.Sizes{X: 3})
	require.NoError(t, err)
	m := &twoByThree{}
	spec := Spec{Layout: l, Rows: 2, Residual: m.residual}
	if sym {
		spec.Symbolic = &Symbolic{Eval: m.symbolic, Pattern: twoByThreePattern}
	}
	if dir {
		spec.Directional = &Directional{Eval: m.directional, Pattern: twoByThreePattern}
	}
	f, err := spec.New()
	require.NoError(t, err)
	sel, err := vars.NewSelection(l, vars.X, nil)
	require.NoError(t, err)
	return f, m, sel
}

func TestTwoByThree(t *testing.T) {
	f, m, sel := newTwoByThree(t, false, true)
	x := []float64{0.5, -1.5, 2}

	colors, err := f.Colors(sel)
	require.NoError(t, err)
	require.Equal(t, 2, colors)

	jac := make([]float64, 6)
	require.NoError(t, f.Jacobian(x, sel, DenseColMajor, jac))
	require.Equal(t, 2, m.calls)
	require.Equal(t, 2, f.Stats().Directional)

	m.calls = 0
	ref := make([]float64, 6)
	require.NoError(t, f.JacobianWith(FiniteDifference, x, sel, DenseColMajor, ref))
	require.Equal(t, 3, m.calls)
	require.Equal(t, ref, jac)

	want := []float64{
		x[1] + math.Cos(x[0]), 0,
		x[0], 0,
		0, 2 * x[2],
	}
	require.True(t, floats.EqualApprox(want, jac, 1e-15))

	// independent oracle on the residual alone
	oracle := mat.NewDense(2, 3, nil)
	fd.Jacobian(oracle, func(y, x []float64) { _ = m.residual(x, y) }, x, &fd.JacobianSettings{
		Formula: fd.Central,
	})
	p, err := f.Pattern(Auto, sel)
	require.NoError(t, err)
	dense, err := ToDense(DenseColMajor, p, 2, jac)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(oracle, dense, 1e-6))
}

func TestRowMajorIsTransposed(t *testing.T) {
	f, _, sel := newTwoByThree(t, false, true)
	x := []float64{1, 2, 3}
	rows, cols := 2, 3

	colMajor := make([]float64, rows*cols)
	rowMajor := make([]float64, rows*cols)
	require.NoError(t, f.Jacobian(x, sel, DenseColMajor, colMajor))
	require.NoError(t, f.Jacobian(x, sel, DenseRowMajor, rowMajor))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			require.Equal(t, colMajor[i+rows*j], rowMajor[j+cols*i])
		}
	}

	a := mat.NewDense(rows, cols, rowMajor)
	b := mat.NewDense(cols, rows, colMajor)
	require.True(t, mat.Equal(a, b.T()))

	n, err := f.NonzeroCount(sel, Sparse)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	sparse := make([]float64, n)
	require.NoError(t, f.Jacobian(x, sel, Sparse, sparse))
	require.Equal(t, []float64{x[1] + math.Cos(x[0]), x[0], 2 * x[2]}, sparse)

	p, err := f.Pattern(Auto, sel)
	require.NoError(t, err)
	for _, l := range []Layout{Sparse, DenseColMajor} {
		buf := sparse
		if l == DenseColMajor {
			buf = colMajor
		}
		d, err := ToDense(l, p, rows, buf)
		require.NoError(t, err)
		require.True(t, mat.Equal(a, d), l)
	}
}

func TestDispatch(t *testing.T) {
	x := []float64{0.3, 0.7, -1.1}

	f, m, sel := newTwoByThree(t, true, true)
	jac := make([]float64, 6)
	require.NoError(t, f.Jacobian(x, sel, DenseRowMajor, jac))
	require.Equal(t, Stats{Symbolic: 1}, f.Stats())
	require.Zero(t, m.calls)

	compressed := make([]float64, 6)
	require.NoError(t, f.JacobianWith(Compressed, x, sel, DenseRowMajor, compressed))
	require.True(t, floats.EqualApprox(jac, compressed, 1e-15))
	require.Equal(t, 2, f.Stats().Directional)

	f.ResetStats()
	require.Equal(t, Stats{}, f.Stats())

	// symbolic only
	f, _, sel = newTwoByThree(t, true, false)
	require.NoError(t, f.Jacobian(x, sel, DenseRowMajor, jac))
	err := f.JacobianWith(Compressed, x, sel, DenseRowMajor, jac)
	require.ErrorIs(t, err, ErrNoDerivative)
	_, err = f.Colors(sel)
	require.ErrorIs(t, err, ErrNoDerivative)

	// residual only: finite differences of the residual still work
	f, _, sel = newTwoByThree(t, false, false)
	err = f.Jacobian(x, sel, DenseRowMajor, jac)
	require.ErrorIs(t, err, ErrNoDerivative)
	_, err = f.NonzeroCount(sel, Sparse)
	require.ErrorIs(t, err, ErrNoDerivative)

	require.NoError(t, f.JacobianWith(FiniteDifference, x, sel, DenseRowMajor, jac))
	require.True(t, floats.EqualApprox(jac, compressed, 1e-6))
	n, err := f.NonzeroCountWith(FiniteDifference, sel, Sparse)
	require.NoError(t, err)
	require.Equal(t, 6, n)
}

func TestSymbolicCoverage(t *testing.T) {
	// states and inputs: the symbolic source only differentiates with respect to states
	l, err := vars.NewLayout(vars.Sizes{X: 2, U: 1})
	require.NoError(t, err)
	p := sparsity.MustPattern([]int{0, 1, 1}, []int{0, 1, 2})
	residual := func(x, res []float64) error {
		res[0] = x[0] * x[0]
		res[1] = x[1] * x[2]
		return nil
	}
	symbolic := func(x []float64, l Layout, f *sparsity.Filtered, jac []float64) error {
		return Scatter(l, f, 2, []float64{2 * x[0], x[2], x[1]}, jac)
	}
	directional := func(x, seed, res, dres []float64) error {
		_ = residual(x, res)
		dres[0] = 2 * x[0] * seed[0]
		dres[1] = x[2]*seed[1] + x[1]*seed[2]
		return nil
	}

	spec := Spec{
		Layout: l, Rows: 2, Residual: residual,
		Symbolic: &Symbolic{Eval: symbolic, Pattern: p, Covers: vars.X},
	}
	f, err := spec.New()
	require.NoError(t, err)

	states, _ := vars.NewSelection(l, vars.X, nil)
	both, _ := vars.NewSelection(l, vars.X|vars.U, nil)
	x := []float64{1, 2, 3}

	jac := make([]float64, 2)
	require.NoError(t, f.Jacobian(x, states, Sparse, jac))
	require.Equal(t, []float64{2, 3}, jac)

	require.ErrorIs(t, f.Jacobian(x, both, Sparse, make([]float64, 3)), ErrNoDerivative)
	require.ErrorIs(t, f.JacobianWith(SymbolicMethod, x, both, Sparse, make([]float64, 3)), ErrNotCovered)

	spec.Directional = &Directional{Eval: directional, Pattern: p}
	f, err = spec.New()
	require.NoError(t, err)
	jac = make([]float64, 3)
	require.NoError(t, f.Jacobian(x, both, Sparse, jac))
	require.Equal(t, []float64{2, 3, 2}, jac)
	require.Equal(t, Stats{Directional: 2}, f.Stats())
}

func TestQueries(t *testing.T) {
	m := newChain(6)
	f := m.function(t, true, nil)

	all, _ := vars.NewSelection(m.layout, vars.X|vars.U, nil)
	states, _ := vars.NewSelection(m.layout, vars.X, nil)
	none, _ := vars.NewSelection(m.layout, vars.W, nil)

	var last = math.MaxInt
	for _, sel := range []*vars.Selection{all, states, none} {
		n, err := f.ColumnCount(sel)
		require.NoError(t, err)
		require.LessOrEqual(t, n, last)
		last = n
	}
	require.Zero(t, last)

	n, err := f.NonzeroCount(states, Sparse)
	require.NoError(t, err)
	require.Equal(t, 16, n) // tridiagonal 6×6
	n, err = f.NonzeroCount(all, DenseColMajor)
	require.NoError(t, err)
	require.Equal(t, 6*8, n)

	rows, cols, err := f.NonzeroIndices(states)
	require.NoError(t, err)
	require.Len(t, rows, 16)
	require.Equal(t, []int{0, 1}, rows[:2])
	require.Equal(t, []int{0, 0, 1, 1, 1}, cols[:5])

	colors, err := f.Colors(states)
	require.NoError(t, err)
	require.Equal(t, 3, colors)
	require.Equal(t, 0, m.calls, "queries must not evaluate")

	// zero selected columns
	require.NoError(t, f.Jacobian(m.x, none, DenseRowMajor, nil))
	require.Equal(t, 0, m.calls)
}

func TestCompressedMatchesFiniteDifference(t *testing.T) {
	m := newChain(8)
	f := m.function(t, true, nil)
	plain := m.function(t, false, nil)

	mask := make([]int, m.layout.Len())
	for i := range mask {
		mask[i] = i % 3
	}
	selections := []vars.Category{vars.X, vars.U, vars.X | vars.U, vars.All}
	for _, cats := range selections {
		for _, enable := range [][]int{nil, mask} {
			sel, err := vars.NewSelection(m.layout, cats, enable)
			require.NoError(t, err)

			for _, l := range []Layout{Sparse, DenseColMajor, DenseRowMajor} {
				n, err := f.NonzeroCount(sel, l)
				require.NoError(t, err)

				before := f.Stats().Directional
				compressed := make([]float64, n)
				require.NoError(t, f.Jacobian(m.x, sel, l, compressed))
				colors, _ := f.Colors(sel)
				require.Equal(t, colors, f.Stats().Directional-before, "one call per color")

				exact := make([]float64, n)
				require.NoError(t, f.JacobianWith(FiniteDifference, m.x, sel, l, exact))
				require.True(t, floats.EqualApprox(exact, compressed, 1e-14), "%v %v", cats, l)

				// residual differences against the full matrix
				p, _ := f.Pattern(Auto, sel)
				want, err := ToDense(l, p, m.rows, compressed)
				require.NoError(t, err)
				size, _ := plain.NonzeroCountWith(FiniteDifference, sel, DenseRowMajor)
				approx := make([]float64, size)
				require.NoError(t, plain.JacobianWith(FiniteDifference, m.x, sel, DenseRowMajor, approx))
				if size > 0 {
					require.True(t, mat.EqualApprox(want, mat.NewDense(m.rows, sel.Count(), approx), 1e-6))
				}
			}
		}
	}
	require.Equal(t, 8, f.Cache().Len())
	require.Positive(t, f.Cache().Hits())
}

func TestColoringAlgorithms(t *testing.T) {
	m := newChain(10)
	sel, _ := vars.NewSelection(m.layout, vars.X|vars.U, nil)
	var want []float64
	for _, algo := range []coloring.Algorithm{coloring.CPR, coloring.Dsatur, coloring.WelshPowell, coloring.LargestFirst} {
		f := m.function(t, true, func(s *Spec) { s.Coloring = algo })
		jac := make([]float64, m.rows*sel.Count())
		require.NoError(t, f.Jacobian(m.x, sel, DenseColMajor, jac))
		if want == nil {
			want = jac
		}
		require.True(t, floats.EqualApprox(want, jac, 1e-14), algo)
		require.Equal(t, algo, f.Cache().Algorithm())
	}
}

func TestErrors(t *testing.T) {
	f, _, sel := newTwoByThree(t, false, true)
	x := []float64{1, 2, 3}

	require.ErrorIs(t, f.Jacobian(x, sel, Layout(7), nil), ErrUnknownLayout)
	require.ErrorIs(t, f.JacobianWith(Method(9), x, sel, Sparse, nil), ErrUnknownMethod)
	require.ErrorIs(t, f.Jacobian(x[:2], sel, Sparse, make([]float64, 3)), ErrDimension)
	require.ErrorIs(t, f.Jacobian(x, sel, Sparse, make([]float64, 4)), ErrDimension)
	require.ErrorIs(t, f.Residual(x, make([]float64, 3)), ErrDimension)
	_, err := Size(Layout(-1), nil, 2)
	require.ErrorIs(t, err, ErrUnknownLayout)

	other, _ := vars.NewLayout(vars.Sizes{X: 2, U: 1})
	foreign, _ := vars.NewSelection(other, vars.X, nil)
	require.ErrorIs(t, f.Jacobian(x, foreign, Sparse, make([]float64, 2)), ErrLayoutMismatch)
	require.ErrorIs(t, f.Jacobian(x, nil, Sparse, nil), ErrLayoutMismatch)
	_, err = f.ColumnCount(foreign)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	// an equal layout built separately is accepted
	same, _ := vars.NewLayout(vars.Sizes{X: 3})
	equal, _ := vars.NewSelection(same, vars.X, nil)
	require.NoError(t, f.Jacobian(x, equal, Sparse, make([]float64, 3)))

	failure := errors.New("step too large")
	var buf bytes.Buffer
	l, _ := vars.NewLayout(vars.Sizes{X: 3})
	spec := Spec{
		Layout: l, Rows: 2,
		Residual: func(x, res []float64) error { return failure },
		Directional: &Directional{
			Eval:    func(x, seed, res, dres []float64) error { return failure },
			Pattern: twoByThreePattern,
		},
		Log: logging.New(logging.Error, &buf),
	}
	f, err = spec.New()
	require.NoError(t, err)
	err = f.Jacobian(x, sel, Sparse, make([]float64, 3))
	require.ErrorIs(t, err, ErrEvaluation)
	require.ErrorIs(t, err, failure)
	require.Contains(t, buf.String(), "DirectionalFailed")

	spec.Directional = nil
	f, err = spec.New()
	require.NoError(t, err)
	err = f.JacobianWith(FiniteDifference, x, sel, DenseColMajor, make([]float64, 6))
	require.ErrorIs(t, err, ErrEvaluation)
	require.ErrorIs(t, err, numdiff.ErrResidual)
	require.ErrorIs(t, err, failure)
}

func TestSpecValidation(t *testing.T) {
	l, _ := vars.NewLayout(vars.Sizes{X: 3})
	residual := func(x, res []float64) error { return nil }
	tall := sparsity.MustPattern([]int{0, 5}, []int{0, 1})
	wide := sparsity.MustPattern([]int{0, 1}, []int{0, 3})
	dir := func(x, seed, res, dres []float64) error { return nil }

	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{"layout", Spec{Rows: 2, Residual: residual}, nil},
		{"rows", Spec{Layout: l, Residual: residual}, nil},
		{"residual", Spec{Layout: l, Rows: 2}, nil},
		{"symbolic", Spec{Layout: l, Rows: 2, Residual: residual, Symbolic: &Symbolic{Pattern: wide}}, nil},
		{"directional", Spec{Layout: l, Rows: 2, Residual: residual, Directional: &Directional{Eval: dir}}, nil},
		{"method", Spec{Layout: l, Rows: 2, Residual: residual, Diff: FiniteDiff{Method: 5}}, nil},
		{"bounds", Spec{Layout: l, Rows: 2, Residual: residual, Diff: FiniteDiff{Bounds: make([]numdiff.Bound, 2)}}, nil},
		{"tall", Spec{Layout: l, Rows: 2, Residual: residual, Directional: &Directional{Eval: dir, Pattern: tall}}, ErrDimension},
		{"wide", Spec{Layout: l, Rows: 2, Residual: residual, Directional: &Directional{Eval: dir, Pattern: wide}}, ErrDimension},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := c.spec.New()
			require.Error(t, err)
			if c.want != nil {
				require.ErrorIs(t, err, c.want)
			}
		})
	}
}

func TestFiniteDifferenceBounds(t *testing.T) {
	// x0 sits on its upper bound, the step must go backward
	l, _ := vars.NewLayout(vars.Sizes{X: 2})
	spec := Spec{
		Layout: l, Rows: 1,
		Residual: func(x, res []float64) error {
			if x[0] > 1 {
				return errors.New("out of domain")
			}
			res[0] = math.Sqrt(1-x[0]) + 3*x[1]
			return nil
		},
		Diff: FiniteDiff{
			Method: numdiff.Central,
			Bounds: []numdiff.Bound{{0, 0.99}, {math.NaN(), math.NaN()}},
		},
	}
	f, err := spec.New()
	require.NoError(t, err)
	sel, _ := vars.NewSelection(l, vars.X, nil)
	jac := make([]float64, 2)
	x := []float64{0.99, 5}
	require.NoError(t, f.JacobianWith(FiniteDifference, x, sel, DenseRowMajor, jac))
	require.InDelta(t, -0.5/math.Sqrt(0.01), jac[0], 1e-3)
	require.InDelta(t, 3, jac[1], 1e-8)
}
