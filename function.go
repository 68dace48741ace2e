// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jacobian evaluates residual functions of differential-algebraic models
// together with their Jacobians with respect to selectable variable categories.
//
// A Function owns a residual evaluator and up to two derivative sources:
//   - a symbolic evaluator with a fixed sparsity pattern, preferred whenever it covers the request
//   - a directional derivative evaluator, compressed by column coloring so that one
//     evaluation recovers every column of a structurally orthogonal group
//
// Results are stored in one of three layouts: sparse triplet order, dense column-major
// or dense row-major.
package jacobian

import (
	"errors"
	"fmt"

	"github.com/curioloop/jacobian/coloring"
	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/numdiff"
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
)

var (
	ErrNoDerivative   = errors.New("jacobian: no derivative source available")
	ErrUnknownLayout  = errors.New("jacobian: unknown output layout")
	ErrUnknownMethod  = errors.New("jacobian: unknown evaluation method")
	ErrDimension      = errors.New("jacobian: dimension mismatch")
	ErrLayoutMismatch = errors.New("jacobian: selection built on a different variable layout")
	ErrNotCovered     = errors.New("jacobian: symbolic pattern does not cover the selection")
	ErrEvaluation     = errors.New("jacobian: evaluator failed")
)

// ResidualFunc evaluates the residuals res at the flat variable vector x.
// Time is part of x when the layout carries a time column.
type ResidualFunc func(x, res []float64) error

// SymbolicFunc fills jac with the Jacobian restricted to the columns of p, in layout l.
// Scatter converts values given per entry of the declared pattern.
type SymbolicFunc func(x []float64, l Layout, p *sparsity.Filtered, jac []float64) error

// DirectionalFunc evaluates the residuals res and their derivative dres along seed.
type DirectionalFunc func(x, seed, res, dres []float64) error

// Symbolic is an analytic Jacobian evaluator with its declared pattern.
type Symbolic struct {
	Eval    SymbolicFunc
	Pattern *sparsity.Pattern
	// Categories the evaluator can differentiate with respect to, every category when zero.
	Covers vars.Category
}

// Directional is a directional derivative evaluator with its declared pattern.
type Directional struct {
	Eval    DirectionalFunc
	Pattern *sparsity.Pattern
}

// FiniteDiff configures the finite difference directional derivatives of the residual,
// used when no directional evaluator is registered and by Check.
type FiniteDiff struct {
	Method  numdiff.Method
	RelStep float64
	AbsStep float64
	Bounds  []numdiff.Bound
}

// Method forces a derivative source for one evaluation.
type Method int

const (
	// Auto prefers the symbolic evaluator, then compressed directional derivatives.
	Auto Method = iota
	// Symbolic calls the symbolic evaluator.
	SymbolicMethod
	// Compressed seeds one directional derivative per color class.
	Compressed
	// FiniteDifference seeds one directional derivative per selected column.
	FiniteDifference
)

func (m Method) String() string {
	switch m {
	case Auto:
		return "auto"
	case SymbolicMethod:
		return "symbolic"
	case Compressed:
		return "compressed"
	case FiniteDifference:
		return "finite-difference"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Spec specifies a residual function and its derivative sources.
type Spec struct {
	Layout      *vars.Layout // Partition of the flat variable vector
	Rows        int          // Number of residual equations
	Residual    ResidualFunc // Residual evaluator
	Symbolic    *Symbolic    // Optional symbolic Jacobian
	Directional *Directional // Optional directional derivatives
	Coloring    coloring.Algorithm
	Diff        FiniteDiff
	Log         *logging.Logger
}

// Stats counts evaluator calls.
type Stats struct {
	Residual    int // residual calls made by the engine, finite differences included
	Symbolic    int // symbolic Jacobian calls
	Directional int // directional derivative calls
}

// Function is a residual with its derivative sources, the coloring cache of the
// directional pattern, and the scratch buffers reused across evaluations.
//
// Function is not safe for concurrent use: callers serialize access or keep
// one Function per worker.
type Function struct {
	layout   *vars.Layout
	rows     int
	residual ResidualFunc
	sym      *Symbolic
	dir      *Directional
	log      *logging.Logger

	cache    *coloring.Cache
	symCache map[vars.Signature]*sparsity.Filtered
	fdCache  map[vars.Signature]*sparsity.Filtered
	dense    *sparsity.Pattern
	diff     numdiff.Spec

	seed, res, dres []float64
	stats           Stats
}

// New creates a Function for the given spec.
func (s *Spec) New() (f *Function, err error) {

	l, sym, dir := s.Layout, s.Symbolic, s.Directional

	switch {
	case l == nil:
		err = errors.New("jacobian: variable layout is required")
	case s.Rows <= 0:
		err = errors.New("jacobian: number of equations must be greater than 0")
	case s.Residual == nil:
		err = errors.New("jacobian: residual function is required")
	case sym != nil && (sym.Eval == nil || sym.Pattern == nil):
		err = errors.New("jacobian: symbolic evaluator and pattern are both required")
	case dir != nil && (dir.Eval == nil || dir.Pattern == nil):
		err = errors.New("jacobian: directional evaluator and pattern are both required")
	case s.Diff.Method != numdiff.Forward && s.Diff.Method != numdiff.Central:
		err = errors.New("jacobian: unknown finite difference method")
	case s.Diff.Bounds != nil && len(s.Diff.Bounds) != l.Len():
		err = errors.New("jacobian: finite difference bounds must match the layout")
	}
	if err != nil {
		return nil, err
	}

	n := l.Len()
	var declared []*sparsity.Pattern
	if sym != nil {
		declared = append(declared, sym.Pattern)
	}
	if dir != nil {
		declared = append(declared, dir.Pattern)
	}
	for _, p := range declared {
		if p.MaxRow() >= s.Rows || p.MaxCol() >= n {
			return nil, fmt.Errorf("%w: pattern spans %d×%d, function is %d×%d",
				ErrDimension, p.MaxRow()+1, p.MaxCol()+1, s.Rows, n)
		}
	}

	f = &Function{
		layout:   l,
		rows:     s.Rows,
		residual: s.Residual,
		log:      s.Log,
		symCache: make(map[vars.Signature]*sparsity.Filtered),
		fdCache:  make(map[vars.Signature]*sparsity.Filtered),
		seed:     make([]float64, n),
		res:      make([]float64, s.Rows),
		dres:     make([]float64, s.Rows),
	}
	if sym != nil {
		c := *sym
		if c.Covers == 0 {
			c.Covers = vars.All
		}
		f.sym = &c
	}
	if dir != nil {
		c := *dir
		f.dir = &c
		f.cache = coloring.NewCache(c.Pattern, s.Coloring, s.Log)
	}
	f.diff = numdiff.Spec{
		N: n, M: s.Rows,
		Residual: f.Residual,
		Method:   s.Diff.Method,
		RelStep:  s.Diff.RelStep,
		AbsStep:  s.Diff.AbsStep,
		Bounds:   append([]numdiff.Bound(nil), s.Diff.Bounds...),
	}
	return f, nil
}

// Rows returns the number of residual equations.
func (f *Function) Rows() int { return f.rows }

// Layout returns the partition of the variable vector.
func (f *Function) Layout() *vars.Layout { return f.layout }

// Stats returns the evaluator call counters.
func (f *Function) Stats() Stats { return f.stats }

// ResetStats clears the evaluator call counters.
func (f *Function) ResetStats() { f.stats = Stats{} }

// Cache returns the coloring cache of the directional pattern, nil without a directional source.
func (f *Function) Cache() *coloring.Cache { return f.cache }

// Residual evaluates the residuals at x.
func (f *Function) Residual(x, res []float64) error {
	if len(x) != f.layout.Len() || len(res) != f.rows {
		return fmt.Errorf("%w: x has %d entries, res has %d", ErrDimension, len(x), len(res))
	}
	f.stats.Residual++
	if err := f.residual(x, res); err != nil {
		f.log.Node(logging.Error, "ResidualFailed", "err", err)
		return fmt.Errorf("%w: residual: %w", ErrEvaluation, err)
	}
	return nil
}

func (f *Function) checkSelection(sel *vars.Selection) error {
	if sel == nil {
		return fmt.Errorf("%w: nil selection", ErrLayoutMismatch)
	}
	if !sel.Layout().Equal(f.layout) {
		return ErrLayoutMismatch
	}
	return nil
}

// covers reports whether the symbolic evaluator can serve sel.
func (f *Function) covers(sel *vars.Selection) bool {
	return f.sym != nil && sel.Categories()&vars.All&^f.sym.Covers == 0
}

// resolve picks the derivative source serving m for sel.
func (f *Function) resolve(m Method, sel *vars.Selection) (Method, error) {
	switch m {
	case Auto:
		switch {
		case f.covers(sel):
			return SymbolicMethod, nil
		case f.dir != nil:
			return Compressed, nil
		}
		return 0, ErrNoDerivative
	case SymbolicMethod:
		if f.sym == nil {
			return 0, ErrNoDerivative
		}
		if !f.covers(sel) {
			return 0, fmt.Errorf("%w: %s", ErrNotCovered, sel.Categories())
		}
		return m, nil
	case Compressed:
		if f.dir == nil {
			return 0, ErrNoDerivative
		}
		return m, nil
	case FiniteDifference:
		return m, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownMethod, m)
}

// pattern returns the filtered pattern produced by method m, which must be resolved.
func (f *Function) pattern(m Method, sel *vars.Selection) (*sparsity.Filtered, error) {
	switch m {
	case SymbolicMethod:
		return filtered(f.symCache, f.sym.Pattern, sel), nil
	case Compressed:
		r, err := f.cache.ColorsFor(sel)
		if err != nil {
			return nil, err
		}
		return r.Pattern(), nil
	default:
		return filtered(f.fdCache, f.structure(), sel), nil
	}
}

// structure is the pattern finite differences are stored against:
// the directional pattern, else the symbolic one, else the full matrix.
func (f *Function) structure() *sparsity.Pattern {
	switch {
	case f.dir != nil:
		return f.dir.Pattern
	case f.sym != nil:
		return f.sym.Pattern
	}
	if f.dense == nil {
		f.dense = sparsity.Dense(f.rows, f.layout.Len())
	}
	return f.dense
}

func filtered(cache map[vars.Signature]*sparsity.Filtered, p *sparsity.Pattern, sel *vars.Selection) *sparsity.Filtered {
	sig := sel.Signature()
	if fp, ok := cache[sig]; ok {
		return fp
	}
	fp := p.Filter(sel)
	cache[sig] = fp
	return fp
}

// Pattern returns the filtered pattern a Jacobian evaluated by m for sel is stored against.
func (f *Function) Pattern(m Method, sel *vars.Selection) (*sparsity.Filtered, error) {
	if err := f.checkSelection(sel); err != nil {
		return nil, err
	}
	m, err := f.resolve(m, sel)
	if err != nil {
		return nil, err
	}
	return f.pattern(m, sel)
}

// ColumnCount returns the number of Jacobian columns for sel.
func (f *Function) ColumnCount(sel *vars.Selection) (int, error) {
	if err := f.checkSelection(sel); err != nil {
		return 0, err
	}
	return sel.Count(), nil
}

// NonzeroCount returns the output length of the Jacobian for sel in layout l,
// as produced by the Auto method. No derivative is evaluated.
func (f *Function) NonzeroCount(sel *vars.Selection, l Layout) (int, error) {
	return f.NonzeroCountWith(Auto, sel, l)
}

// NonzeroCountWith is NonzeroCount for an explicit method.
func (f *Function) NonzeroCountWith(m Method, sel *vars.Selection, l Layout) (int, error) {
	p, err := f.Pattern(m, sel)
	if err != nil {
		return 0, err
	}
	return Size(l, p, f.rows)
}

// NonzeroIndices returns the row and compact column of every sparse Jacobian entry for sel.
func (f *Function) NonzeroIndices(sel *vars.Selection) (rows, cols []int, err error) {
	p, err := f.Pattern(Auto, sel)
	if err != nil {
		return nil, nil, err
	}
	rows, cols = p.Indices()
	return
}

// Colors returns the number of directional derivative evaluations a compressed
// Jacobian for sel takes. The coloring is computed and cached, nothing is evaluated.
func (f *Function) Colors(sel *vars.Selection) (int, error) {
	if err := f.checkSelection(sel); err != nil {
		return 0, err
	}
	if f.dir == nil {
		return 0, ErrNoDerivative
	}
	r, err := f.cache.ColorsFor(sel)
	if err != nil {
		return 0, err
	}
	return r.Colors(), nil
}

// Jacobian evaluates the Jacobian at x for sel into jac, stored in layout l.
// The symbolic evaluator is used when it covers sel, compressed directional
// derivatives otherwise.
func (f *Function) Jacobian(x []float64, sel *vars.Selection, l Layout, jac []float64) error {
	return f.JacobianWith(Auto, x, sel, l, jac)
}

// JacobianWith is Jacobian with an explicit derivative source.
func (f *Function) JacobianWith(m Method, x []float64, sel *vars.Selection, l Layout, jac []float64) error {
	if !l.valid() {
		return fmt.Errorf("%w: %v", ErrUnknownLayout, l)
	}
	if len(x) != f.layout.Len() {
		return fmt.Errorf("%w: x has %d entries, want %d", ErrDimension, len(x), f.layout.Len())
	}
	if err := f.checkSelection(sel); err != nil {
		return err
	}
	m, err := f.resolve(m, sel)
	if err != nil {
		return err
	}
	p, err := f.pattern(m, sel)
	if err != nil {
		return err
	}
	size, _ := Size(l, p, f.rows)
	if len(jac) != size {
		return fmt.Errorf("%w: jac has %d entries, want %d", ErrDimension, len(jac), size)
	}

	if f.log.Enable(logging.Verbose) {
		f.log.Node(logging.Verbose, "Jacobian", "method", m, "layout", l, "sel", sel.Signature(),
			"cols", p.Columns(), "nnz", p.Nonzeros())
	}

	o := &output{layout: l, rows: f.rows, cols: p.Columns(), pattern: p, jac: jac}
	switch m {
	case SymbolicMethod:
		return f.symbolic(x, o)
	case Compressed:
		return f.compressed(x, sel, o)
	default:
		return f.finiteDifference(x, sel, o)
	}
}

func (f *Function) symbolic(x []float64, o *output) error {
	clear(o.jac)
	f.stats.Symbolic++
	if err := f.sym.Eval(x, o.layout, o.pattern, o.jac); err != nil {
		f.log.Node(logging.Error, "SymbolicFailed", "err", err)
		return fmt.Errorf("%w: symbolic: %w", ErrEvaluation, err)
	}
	return nil
}

func (f *Function) directional(x []float64) error {
	f.stats.Directional++
	if err := f.dir.Eval(x, f.seed, f.res, f.dres); err != nil {
		f.log.Node(logging.Error, "DirectionalFailed", "err", err)
		return fmt.Errorf("%w: directional: %w", ErrEvaluation, err)
	}
	return nil
}
