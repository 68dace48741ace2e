// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparsity

import "github.com/curioloop/jacobian/vars"

// Filtered is a pattern restricted to a selection, with columns renumbered
// to their compact index. Entries stay sorted by compact column.
type Filtered struct {
	sel   *vars.Selection
	row   []int
	col   []int
	src   []int // index of each entry in the source pattern
	start []int // start[k] is the first entry of compact column k, len = Columns()+1
}

// Filter restricts p to the columns selected by sel in a single pass.
// Selected columns without non-zeros keep their compact number and get an empty run.
func (p *Pattern) Filter(sel *vars.Selection) *Filtered {
	n := sel.Count()
	f := &Filtered{sel: sel, start: make([]int, n+1)}
	for i := 0; i < p.Len(); i++ {
		k, ok := sel.Compact(p.col[i])
		if !ok {
			continue
		}
		f.row = append(f.row, p.row[i])
		f.col = append(f.col, k)
		f.src = append(f.src, i)
		f.start[k+1]++
	}
	for k := 0; k < n; k++ {
		f.start[k+1] += f.start[k]
	}
	return f
}

// Selection returns the selection the pattern was filtered with.
func (f *Filtered) Selection() *vars.Selection { return f.sel }

// Columns returns the number of selected columns.
func (f *Filtered) Columns() int { return len(f.start) - 1 }

// Nonzeros returns the number of structural non-zeros in the selected columns.
func (f *Filtered) Nonzeros() int { return len(f.row) }

// At returns the i-th filtered entry as (row, compact column).
func (f *Filtered) At(i int) (row, col int) { return f.row[i], f.col[i] }

// Source returns the index in the unfiltered pattern of the i-th filtered entry.
func (f *Filtered) Source(i int) int { return f.src[i] }

// Start returns the first entry index of compact column k.
func (f *Filtered) Start(k int) int { return f.start[k] }

// Run returns the rows of compact column k. The slice must not be modified.
func (f *Filtered) Run(k int) []int {
	return f.row[f.start[k]:f.start[k+1]:f.start[k+1]]
}

// Slot locates (row, k) by linear scan within the column run, -1 if absent.
func (f *Filtered) Slot(row, k int) int {
	for i := f.start[k]; i < f.start[k+1]; i++ {
		if f.row[i] == row {
			return i
		}
	}
	return -1
}

// Indices returns copies of the filtered row and compact column lists.
func (f *Filtered) Indices() (rows, cols []int) {
	return append([]int(nil), f.row...), append([]int(nil), f.col...)
}
