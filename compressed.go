// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jacobian

import (
	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/vars"
)

// compressed recovers the Jacobian with one directional derivative per color class.
// Columns of a class share no row, so every row of dres belongs to at most one of them.
func (f *Function) compressed(x []float64, sel *vars.Selection, o *output) error {

	r, err := f.cache.ColorsFor(sel)
	if err != nil {
		return err
	}
	p := r.Pattern()

	clear(o.jac)
	clear(f.seed)
	for i := 0; i < r.Colors(); i++ {
		class := r.Class(i)
		for _, k := range class {
			f.seed[sel.Global(k)] = 1
		}

		err := f.directional(x)

		for _, k := range class {
			f.seed[sel.Global(k)] = 0
		}
		if err != nil {
			return err
		}

		for _, k := range class {
			start := p.Start(k)
			for j, row := range p.Run(k) {
				o.setEntry(start+j, f.dres[row])
			}
		}
		if f.log.Enable(logging.Debug) {
			f.log.Node(logging.Debug, "ColorSeeded", "color", i, "cols", class)
		}
	}
	return nil
}
