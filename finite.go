// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"fmt"

	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/vars"
)

// finiteDifference seeds one selected column at a time. The derivative comes from
// the directional evaluator when registered, from residual differences otherwise.
// Only the entries of the structure pattern are stored, as in compressed evaluation.
func (f *Function) finiteDifference(x []float64, sel *vars.Selection, o *output) error {

	p := o.pattern
	clear(o.jac)
	clear(f.seed)
	for k := 0; k < p.Columns(); k++ {
		col := sel.Global(k)
		f.seed[col] = 1
		err := f.column(x)
		f.seed[col] = 0
		if err != nil {
			return err
		}

		start := p.Start(k)
		for j, row := range p.Run(k) {
			o.setEntry(start+j, f.dres[row])
		}
		if f.log.Enable(logging.Debug) {
			f.log.Node(logging.Debug, "ColumnSeeded", "col", col, "compact", k)
		}
	}
	return nil
}

// column evaluates the derivative along the current seed into f.dres.
func (f *Function) column(x []float64) error {
	if f.dir != nil {
		return f.directional(x)
	}
	if err := f.diff.Directional(x, f.seed, f.res, f.dres); err != nil {
		f.log.Node(logging.Error, "FiniteDifferenceFailed", "err", err)
		return fmt.Errorf("%w: finite difference: %w", ErrEvaluation, err)
	}
	return nil
}
