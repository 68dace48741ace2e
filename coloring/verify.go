// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coloring

import "fmt"

// Verify checks that r partitions every column of its pattern exactly once
// and that no two columns of a class share a row.
func Verify(r *Result) error {
	f := r.pattern
	n := f.Columns()
	if len(r.color) != n {
		return fmt.Errorf("%w: %d colored columns, want %d", ErrInvalidColoring, len(r.color), n)
	}

	seen := make([]bool, n)
	owner := make(map[int]int) // row -> column holding it in the current class
	for i, class := range r.classes {
		clear(owner)
		for _, k := range class {
			if k < 0 || k >= n || seen[k] {
				return fmt.Errorf("%w: column %d listed twice or out of range", ErrInvalidColoring, k)
			}
			if r.color[k] != i {
				return fmt.Errorf("%w: column %d maps to class %d, found in %d", ErrInvalidColoring, k, r.color[k], i)
			}
			seen[k] = true
			for _, row := range f.Run(k) {
				if j, taken := owner[row]; taken {
					return fmt.Errorf("%w: columns %d and %d share row %d in class %d", ErrInvalidColoring, j, k, row, i)
				}
				owner[row] = k
			}
		}
	}
	for k, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: column %d is uncolored", ErrInvalidColoring, k)
		}
	}
	return nil
}
