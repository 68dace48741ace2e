// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vars

import (
	"encoding/binary"
	"fmt"
)

// Signature identifies a selection for caching purposes.
// Selections with equal signatures select exactly the same columns of a layout.
type Signature struct {
	Categories Category
	// Disabled columns in ascending order as uvarints, empty when every column is enabled.
	Mask string
}

// Disabled decodes the disabled columns of the signature.
func (s Signature) Disabled() (cols []int) {
	b := []byte(s.Mask)
	for len(b) > 0 {
		c, n := binary.Uvarint(b)
		if n <= 0 {
			break
		}
		cols = append(cols, int(c))
		b = b[n:]
	}
	return
}

// String prints the categories followed by the disabled columns, e.g. "dx|x-[3 7]".
func (s Signature) String() string {
	if s.Mask == "" {
		return s.Categories.String()
	}
	return fmt.Sprintf("%s-%v", s.Categories, s.Disabled())
}

// Selection is a category bitmask combined with a per-column enable mask.
// A column is selected iff its mask entry is non-zero and its category is in the bitmask.
//
// The compact index of every column is computed once at construction,
// so a Selection should be reused across evaluations.
type Selection struct {
	layout *Layout
	cats   Category
	sig    Signature
	// rank[c] is the number of selected columns strictly before c, len = n+1.
	rank []int
	// compact[c] is the compact index of c, -1 when c is not selected.
	compact []int
	// global[k] is the layout column of compact column k.
	global []int
}

// NewSelection builds the selection of cats restricted to the enabled columns of mask.
// A nil mask enables every column.
func NewSelection(l *Layout, cats Category, mask []int) (*Selection, error) {
	if l == nil {
		return nil, ErrNilLayout
	}
	n := l.Len()
	if mask != nil && len(mask) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMaskLength, len(mask), n)
	}

	s := &Selection{
		layout:  l,
		cats:    cats,
		rank:    make([]int, n+1),
		compact: make([]int, n),
	}

	var disabled []byte
	for c := 0; c < n; c++ {
		s.rank[c+1] = s.rank[c]
		s.compact[c] = -1
		if mask != nil && mask[c] == 0 {
			disabled = binary.AppendUvarint(disabled, uint64(c))
			continue
		}
		if k, ok := l.CategoryOf(c); ok && cats&k != 0 {
			s.compact[c] = len(s.global)
			s.global = append(s.global, c)
			s.rank[c+1]++
		}
	}

	s.sig = Signature{Categories: cats & All, Mask: string(disabled)}
	return s, nil
}

// Layout returns the layout the selection was built on.
func (s *Selection) Layout() *Layout { return s.layout }

// Categories returns the category bitmask.
func (s *Selection) Categories() Category { return s.cats }

// Signature returns the cache key of the selection.
func (s *Selection) Signature() Signature { return s.sig }

// Count returns the number of selected columns.
func (s *Selection) Count() int { return len(s.global) }

// IsSelected reports whether col is selected. Out of range columns never are.
func (s *Selection) IsSelected(col int) bool {
	return col >= 0 && col < len(s.compact) && s.compact[col] >= 0
}

// CompactIndex returns the number of selected columns strictly before col,
// which is the column number of col in a filtered Jacobian.
func (s *Selection) CompactIndex(col int) int {
	switch {
	case col <= 0:
		return 0
	case col >= len(s.rank):
		return s.rank[len(s.rank)-1]
	default:
		return s.rank[col]
	}
}

// Compact returns the compact index of col, false if col is not selected.
func (s *Selection) Compact(col int) (int, bool) {
	if !s.IsSelected(col) {
		return -1, false
	}
	return s.compact[col], true
}

// Global returns the layout column of compact column k.
func (s *Selection) Global(k int) int {
	return s.global[k]
}

// CategoryOfCompact returns the category of compact column k.
func (s *Selection) CategoryOfCompact(k int) (Category, bool) {
	if k < 0 || k >= len(s.global) {
		return 0, false
	}
	return s.layout.CategoryOf(s.global[k])
}
