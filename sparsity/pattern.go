// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparsity holds the structural non-zero patterns of residual Jacobians.
package sparsity

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotColumnSorted = errors.New("sparsity: pattern is not sorted by column")
	ErrNegativeIndex   = errors.New("sparsity: negative row or column index")
	ErrDuplicateEntry  = errors.New("sparsity: duplicate non-zero entry")
	ErrLengthMismatch  = errors.New("sparsity: row and column lists differ in length")
)

// Pattern is an immutable list of (row, column) non-zero coordinates sorted ascending by column.
// Rows within a column may appear in any order.
type Pattern struct {
	row, col []int
	maxRow   int
}

// NewPattern copies and validates the coordinate lists.
// Every structural violation is reported: a pattern that is not column sorted
// would corrupt every filtered Jacobian built on it.
func NewPattern(rows, cols []int) (*Pattern, error) {
	if len(rows) != len(cols) {
		return nil, fmt.Errorf("%w: %d rows, %d cols", ErrLengthMismatch, len(rows), len(cols))
	}
	p := &Pattern{
		row:    append([]int(nil), rows...),
		col:    append([]int(nil), cols...),
		maxRow: -1,
	}
	seen := make(map[int]struct{})
	for i, c := range p.col {
		r := p.row[i]
		if r < 0 || c < 0 {
			return nil, fmt.Errorf("%w: entry %d (%d,%d)", ErrNegativeIndex, i, r, c)
		}
		if i > 0 && c < p.col[i-1] {
			return nil, fmt.Errorf("%w: entry %d column %d after column %d", ErrNotColumnSorted, i, c, p.col[i-1])
		}
		if i == 0 || c != p.col[i-1] {
			clear(seen)
		}
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("%w: (%d,%d)", ErrDuplicateEntry, r, c)
		}
		seen[r] = struct{}{}
		p.maxRow = max(p.maxRow, r)
	}
	return p, nil
}

// MustPattern is like NewPattern but panics on invalid input.
func MustPattern(rows, cols []int) *Pattern {
	p, err := NewPattern(rows, cols)
	if err != nil {
		panic(err)
	}
	return p
}

// Dense returns the full column-sorted pattern of an m×n matrix.
func Dense(m, n int) *Pattern {
	p := &Pattern{row: make([]int, 0, m*n), col: make([]int, 0, m*n), maxRow: m - 1}
	for c := 0; c < n; c++ {
		for r := 0; r < m; r++ {
			p.row = append(p.row, r)
			p.col = append(p.col, c)
		}
	}
	return p
}

// Len returns the number of non-zeros.
func (p *Pattern) Len() int {
	if p == nil {
		return 0
	}
	return len(p.row)
}

// At returns the i-th non-zero coordinate.
func (p *Pattern) At(i int) (row, col int) {
	return p.row[i], p.col[i]
}

// Rows returns a copy of the row indices.
func (p *Pattern) Rows() []int { return append([]int(nil), p.row...) }

// Cols returns a copy of the column indices.
func (p *Pattern) Cols() []int { return append([]int(nil), p.col...) }

// MaxRow returns the largest row index, -1 for an empty pattern.
func (p *Pattern) MaxRow() int {
	if p == nil {
		return -1
	}
	return p.maxRow
}

// MaxCol returns the largest column index, -1 for an empty pattern.
func (p *Pattern) MaxCol() int {
	if p.Len() == 0 {
		return -1
	}
	return p.col[len(p.col)-1]
}

// run returns the entry range [lo,hi) of column c.
func (p *Pattern) run(c int) (lo, hi int) {
	lo = sort.SearchInts(p.col, c)
	hi = lo
	for hi < len(p.col) && p.col[hi] == c {
		hi++
	}
	return
}

// Contains reports whether (row, col) is a structural non-zero.
func (p *Pattern) Contains(row, col int) bool {
	if p.Len() == 0 {
		return false
	}
	lo, hi := p.run(col)
	for i := lo; i < hi; i++ {
		if p.row[i] == row {
			return true
		}
	}
	return false
}

// ColumnRows returns a copy of the rows of column c.
func (p *Pattern) ColumnRows(c int) []int {
	if p.Len() == 0 {
		return nil
	}
	lo, hi := p.run(c)
	return append([]int(nil), p.row[lo:hi]...)
}
