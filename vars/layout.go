// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vars

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeSize = errors.New("vars: negative category size")
	ErrMaskLength   = errors.New("vars: enable mask length differs from layout")
	ErrNilLayout    = errors.New("vars: layout is required")
)

// Sizes is the number of columns in each category.
type Sizes struct {
	CI, CD, PI, PD int
	DX, X, U, W    int
	Time           bool // the layout carries a single time column
}

// Layout describes the category offset ranges within the flat variable vector.
// Ranges are half-open, contiguous and follow the order CI, CD, PI, PD, DX, X, U, W, T.
type Layout struct {
	offs [len(order) + 1]int
}

// NewLayout computes category offsets as prefix sums of the given sizes.
func NewLayout(s Sizes) (*Layout, error) {
	t := 0
	if s.Time {
		t = 1
	}
	sizes := [...]int{s.CI, s.CD, s.PI, s.PD, s.DX, s.X, s.U, s.W, t}
	l := new(Layout)
	for i, n := range sizes {
		if n < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrNegativeSize, order[i], n)
		}
		l.offs[i+1] = l.offs[i] + n
	}
	return l, nil
}

func index(c Category) int {
	for i, k := range order {
		if k == c {
			return i
		}
	}
	return -1
}

// Offset returns the first column of category c, which must be a single category.
func (l *Layout) Offset(c Category) int {
	i := index(c)
	if i < 0 {
		panic("vars: offset of a compound category")
	}
	return l.offs[i]
}

// Size returns the number of columns in the categories set in c.
func (l *Layout) Size(c Category) (n int) {
	for i, k := range order {
		if c&k != 0 {
			n += l.offs[i+1] - l.offs[i]
		}
	}
	return
}

// Len returns the length of the flat variable vector.
func (l *Layout) Len() int {
	return l.offs[len(order)]
}

// CategoryOf returns the category owning col, false if col is out of every range.
func (l *Layout) CategoryOf(col int) (Category, bool) {
	if col < 0 || col >= l.Len() {
		return 0, false
	}
	for i, k := range order {
		if col < l.offs[i+1] {
			return k, true
		}
	}
	return 0, false
}

// Equal reports whether l and o partition the variable vector identically.
func (l *Layout) Equal(o *Layout) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.offs == o.offs
}
