// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coloring

import (
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
)

// DenseThreshold is the fill ratio above which grouping a square block is not worthwhile.
const DenseThreshold = 0.8

// Grouping computes CPR groups for the n×n block pattern p, such as the state
// matrix of a linearized ODE. It returns nil when p is empty or at least
// DenseThreshold full, in which case plain column-by-column evaluation is cheaper.
func Grouping(p *sparsity.Pattern, n int) (*Result, error) {
	if p.Len() == 0 || float64(p.Len()) >= DenseThreshold*float64(n)*float64(n) {
		return nil, nil
	}
	l, err := vars.NewLayout(vars.Sizes{X: n})
	if err != nil {
		return nil, err
	}
	sel, err := vars.NewSelection(l, vars.X, nil)
	if err != nil {
		return nil, err
	}
	return Color(p.Filter(sel), CPR)
}
