// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"fmt"

	"github.com/curioloop/jacobian/sparsity"
	"gonum.org/v1/gonum/mat"
)

// Layout selects how Jacobian values are stored in the output slice.
type Layout int

const (
	// Sparse stores one value per structural non-zero, in the order of the filtered pattern.
	Sparse Layout = iota
	// DenseColMajor stores the rows×cols matrix with element (i,j) at i + rows*j.
	DenseColMajor
	// DenseRowMajor stores the rows×cols matrix with element (i,j) at j + cols*i.
	DenseRowMajor
)

func (l Layout) String() string {
	switch l {
	case Sparse:
		return "sparse"
	case DenseColMajor:
		return "dense-col-major"
	case DenseRowMajor:
		return "dense-row-major"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

func (l Layout) valid() bool {
	return l == Sparse || l == DenseColMajor || l == DenseRowMajor
}

// Size returns the output length of a rows×p.Columns() Jacobian stored in layout l.
func Size(l Layout, p *sparsity.Filtered, rows int) (int, error) {
	switch l {
	case Sparse:
		return p.Nonzeros(), nil
	case DenseColMajor, DenseRowMajor:
		return rows * p.Columns(), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownLayout, l)
}

// output addresses a Jacobian buffer in one layout.
type output struct {
	layout     Layout
	rows, cols int
	pattern    *sparsity.Filtered
	jac        []float64
}

// set stores v at (row, k) of a dense layout.
func (o *output) set(row, k int, v float64) {
	switch o.layout {
	case DenseColMajor:
		o.jac[row+o.rows*k] = v
	case DenseRowMajor:
		o.jac[k+o.cols*row] = v
	}
}

// setEntry stores v at the i-th entry of the filtered pattern.
func (o *output) setEntry(i int, v float64) {
	if o.layout == Sparse {
		o.jac[i] = v
		return
	}
	row, k := o.pattern.At(i)
	o.set(row, k, v)
}

// Scatter writes values, given in the order of the unfiltered pattern, into jac
// using the column numbering of p. Symbolic evaluators use it to fill their output.
func Scatter(l Layout, p *sparsity.Filtered, rows int, values, jac []float64) error {
	size, err := Size(l, p, rows)
	if err != nil {
		return err
	}
	if len(jac) != size {
		return fmt.Errorf("%w: jac has %d entries, want %d", ErrDimension, len(jac), size)
	}
	o := output{layout: l, rows: rows, cols: p.Columns(), pattern: p, jac: jac}
	clear(jac)
	for i := 0; i < p.Nonzeros(); i++ {
		o.setEntry(i, values[p.Source(i)])
	}
	return nil
}

// ToDense expands a Jacobian stored in layout l into a rows×p.Columns() matrix.
func ToDense(l Layout, p *sparsity.Filtered, rows int, jac []float64) (*mat.Dense, error) {
	size, err := Size(l, p, rows)
	if err != nil {
		return nil, err
	}
	if len(jac) != size {
		return nil, fmt.Errorf("%w: jac has %d entries, want %d", ErrDimension, len(jac), size)
	}
	cols := p.Columns()
	if rows == 0 || cols == 0 {
		return new(mat.Dense), nil
	}
	switch l {
	case DenseRowMajor:
		return mat.NewDense(rows, cols, append([]float64(nil), jac...)), nil
	case DenseColMajor:
		d := mat.NewDense(rows, cols, nil)
		d.Copy(mat.NewDense(cols, rows, append([]float64(nil), jac...)).T())
		return d, nil
	}
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < p.Nonzeros(); i++ {
		row, k := p.At(i)
		d.Set(row, k, jac[i])
	}
	return d, nil
}
