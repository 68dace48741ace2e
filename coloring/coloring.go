// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coloring partitions the columns of a filtered sparsity pattern into
// structurally orthogonal groups, so that one directional derivative recovers
// every column of a group.
//
// # Reference:
//
//   - A. R. Curtis, M. J. D. Powell, J. K. Reid, On the estimation of sparse Jacobian matrices (1974)
//   - A. H. Gebremedhin, F. Manne, A. Pothen, What color is your Jacobian? (2005)
package coloring

import (
	"errors"
	"fmt"
	"slices"

	"github.com/curioloop/jacobian/sparsity"
	gcolor "gonum.org/v1/gonum/graph/coloring"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	ErrInvalidColoring = errors.New("coloring: columns in one class share a row")
	ErrUnknownAlgo     = errors.New("coloring: unknown algorithm")
)

// Algorithm selects the distance-1 coloring heuristic.
type Algorithm int

const (
	// CPR groups columns sequentially in natural order (Curtis–Powell–Reid).
	CPR Algorithm = iota
	// Dsatur colors the column intersection graph by saturation degree.
	Dsatur
	// WelshPowell colors the column intersection graph in descending degree order.
	WelshPowell
	// LargestFirst colors the column intersection graph by recursive largest first.
	LargestFirst
)

func (a Algorithm) String() string {
	switch a {
	case CPR:
		return "cpr"
	case Dsatur:
		return "dsatur"
	case WelshPowell:
		return "welsh-powell"
	case LargestFirst:
		return "largest-first"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Result is a column coloring of a filtered pattern.
//
// Class i lists the compact columns seeded together by the i-th directional derivative;
// Rows(k) lists the rows of compact column k, which is where the entries of that
// derivative are scattered to.
type Result struct {
	pattern *sparsity.Filtered
	classes [][]int
	color   []int
}

// Colors returns the number of color classes.
func (r *Result) Colors() int { return len(r.classes) }

// Class returns the sorted compact columns of class i. The slice must not be modified.
func (r *Result) Class(i int) []int { return r.classes[i] }

// Color returns the class of compact column k.
func (r *Result) Color(k int) int { return r.color[k] }

// Rows returns the rows of compact column k. The slice must not be modified.
func (r *Result) Rows(k int) []int { return r.pattern.Run(k) }

// Pattern returns the filtered pattern the coloring was computed for.
func (r *Result) Pattern() *sparsity.Filtered { return r.pattern }

// Color computes a distance-1 coloring of the column intersection graph of f
// and verifies it before returning.
func Color(f *sparsity.Filtered, algo Algorithm) (*Result, error) {
	var color []int
	switch {
	case f.Columns() == 0:
		return newResult(f, nil), nil
	case algo == CPR:
		color = sequential(f)
	case algo == Dsatur || algo == WelshPowell || algo == LargestFirst:
		var err error
		if color, err = graphColor(f, algo); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownAlgo, algo)
	}
	r := newResult(f, color)
	if err := Verify(r); err != nil {
		return nil, err
	}
	return r, nil
}

// rowColumns returns, for every row, the compact columns having a non-zero in it.
func rowColumns(f *sparsity.Filtered) [][]int {
	var rows [][]int
	for i := 0; i < f.Nonzeros(); i++ {
		r, k := f.At(i)
		if r >= len(rows) {
			rows = append(rows, make([][]int, r+1-len(rows))...)
		}
		rows[r] = append(rows[r], k)
	}
	return rows
}

// sequential assigns each column, in natural order, the smallest color not used
// by an earlier column sharing a row with it.
func sequential(f *sparsity.Filtered) []int {
	n := f.Columns()
	color := make([]int, n)
	forbid := make([]int, n+1) // forbid[c] == k+1 marks color c as taken for column k
	byRow := rowColumns(f)
	for k := 0; k < n; k++ {
		for _, r := range f.Run(k) {
			for _, j := range byRow[r] {
				if j < k {
					forbid[color[j]] = k + 1
				}
			}
		}
		c := 0
		for forbid[c] == k+1 {
			c++
		}
		color[k] = c
	}
	return color
}

// intersection builds the column intersection graph: compact columns are nodes,
// joined when they share a row.
func intersection(f *sparsity.Filtered) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for k := 0; k < f.Columns(); k++ {
		g.AddNode(simple.Node(k))
	}
	for _, cols := range rowColumns(f) {
		for a := 0; a < len(cols); a++ {
			for b := a + 1; b < len(cols); b++ {
				u, v := int64(cols[a]), int64(cols[b])
				if !g.HasEdgeBetween(u, v) {
					g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
				}
			}
		}
	}
	return g
}

func graphColor(f *sparsity.Filtered, algo Algorithm) ([]int, error) {
	g := intersection(f)
	var (
		colors map[int64]int
		err    error
	)
	switch algo {
	case Dsatur:
		_, colors, err = gcolor.Dsatur(g, nil)
	case WelshPowell:
		_, colors, err = gcolor.WelshPowell(g, nil)
	case LargestFirst:
		_, colors = gcolor.RecursiveLargestFirst(g)
	}
	if err != nil {
		return nil, fmt.Errorf("coloring: %v: %w", algo, err)
	}
	color := make([]int, f.Columns())
	for k := range color {
		c, ok := colors[int64(k)]
		if !ok {
			return nil, fmt.Errorf("%w: column %d left uncolored by %v", ErrInvalidColoring, k, algo)
		}
		color[k] = c
	}
	return color, nil
}

// newResult groups columns by color, ordering classes by their smallest column.
func newResult(f *sparsity.Filtered, color []int) *Result {
	byColor := make(map[int][]int)
	for k, c := range color {
		byColor[c] = append(byColor[c], k)
	}
	r := &Result{pattern: f, color: make([]int, len(color))}
	for _, cols := range byColor {
		slices.Sort(cols)
		r.classes = append(r.classes, cols)
	}
	slices.SortFunc(r.classes, func(a, b []int) int { return a[0] - b[0] })
	for i, cols := range r.classes {
		for _, k := range cols {
			r.color[k] = i
		}
	}
	return r
}
