// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"fmt"
	"math"

	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/numdiff"
	"github.com/curioloop/jacobian/vars"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// CheckOptions configures Function.Check.
type CheckOptions struct {
	Method  Method  // Derivative source under test
	RelTol  float64 // Relative tolerance, 1e-5 when zero
	AbsTol  float64 // Absolute tolerance, 1e-8 when zero
	RelStep float64 // Relative step of the central difference reference
	// Report reference values exceeding AbsTol outside the pattern of the source under test.
	CheckStructure bool
}

// Mismatch is a Jacobian entry that disagrees with the finite difference reference.
// Col is the compact column of the selection.
type Mismatch struct {
	Row, Col  int
	Value     float64
	Reference float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("(%d,%d) %g != %g", m.Row, m.Col, m.Value, m.Reference)
}

// CheckReport lists the differences found by Function.Check.
type CheckReport struct {
	Method     Method
	Rows, Cols int
	Numeric    []Mismatch // entries of the pattern outside tolerance
	Structure  []Mismatch // non-zero reference entries outside the pattern
}

// OK reports whether no mismatch was found.
func (r *CheckReport) OK() bool {
	return len(r.Numeric) == 0 && len(r.Structure) == 0
}

// Check compares the Jacobian produced by opts.Method at x for sel with a central
// finite difference of the residual, entry by entry.
func (f *Function) Check(x []float64, sel *vars.Selection, opts CheckOptions) (*CheckReport, error) {

	if opts.RelTol == 0 {
		opts.RelTol = 1e-5
	}
	if opts.AbsTol == 0 {
		opts.AbsTol = 1e-8
	}

	p, err := f.Pattern(opts.Method, sel)
	if err != nil {
		return nil, err
	}
	m, _ := f.resolve(opts.Method, sel)

	rows, cols := f.rows, p.Columns()
	report := &CheckReport{Method: m, Rows: rows, Cols: cols}
	if cols == 0 {
		return report, nil
	}

	jac := make([]float64, rows*cols)
	if err = f.JacobianWith(m, x, sel, DenseColMajor, jac); err != nil {
		return nil, err
	}
	got := mat.NewDense(cols, rows, jac).T()

	ref, err := f.reference(x, sel, opts.RelStep)
	if err != nil {
		return nil, err
	}

	inPattern := make([]bool, rows)
	for k := 0; k < cols; k++ {
		clear(inPattern)
		for _, row := range p.Run(k) {
			inPattern[row] = true
		}
		for row := 0; row < rows; row++ {
			v, r := got.At(row, k), ref.At(row, k)
			switch {
			case inPattern[row]:
				if !scalar.EqualWithinAbsOrRel(v, r, opts.AbsTol, opts.RelTol) {
					report.Numeric = append(report.Numeric, Mismatch{row, k, v, r})
				}
			case opts.CheckStructure && math.Abs(r) > opts.AbsTol:
				report.Structure = append(report.Structure, Mismatch{row, k, v, r})
			}
		}
	}

	if f.log.Enable(logging.Info) {
		f.log.Node(logging.Info, "JacobianCheck", "method", m, "sel", sel.Signature(),
			"numeric", len(report.Numeric), "structure", len(report.Structure))
	}
	for _, e := range report.Numeric {
		f.log.Node(logging.Verbose, "NumericMismatch", "entry", e)
	}
	for _, e := range report.Structure {
		f.log.Node(logging.Verbose, "StructureMismatch", "entry", e)
	}
	return report, nil
}

// reference computes every selected column of the Jacobian by central differences
// of the residual, whatever derivative sources are registered.
func (f *Function) reference(x []float64, sel *vars.Selection, relStep float64) (*mat.Dense, error) {
	s := numdiff.Spec{
		N: f.layout.Len(), M: f.rows,
		Residual:  f.Residual,
		Method:    numdiff.Central,
		RelStep:   relStep,
		Bounds:    append([]numdiff.Bound(nil), f.diff.Bounds...),
		NotChkBnd: true,
	}

	cols := sel.Count()
	ref := mat.NewDense(f.rows, cols, nil)
	seed := make([]float64, s.N)
	res := make([]float64, s.M)
	col := make([]float64, s.M)
	for k := 0; k < cols; k++ {
		g := sel.Global(k)
		seed[g] = 1
		err := s.Directional(x, seed, res, col)
		seed[g] = 0
		if err != nil {
			return nil, fmt.Errorf("%w: reference: %w", ErrEvaluation, err)
		}
		ref.SetCol(k, col)
	}
	return ref, nil
}
