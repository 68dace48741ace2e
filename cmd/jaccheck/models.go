// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"

	"github.com/curioloop/jacobian"
	"github.com/curioloop/jacobian/arith"
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
)

// model is a residual with its analytic directional derivative and an operating point.
type model struct {
	name        string
	sizes       vars.Sizes
	rows        int
	pattern     *sparsity.Pattern
	x           []float64
	residual    jacobian.ResidualFunc
	directional jacobian.DirectionalFunc
}

func (m *model) spec() (*jacobian.Spec, error) {
	l, err := vars.NewLayout(m.sizes)
	if err != nil {
		return nil, err
	}
	return &jacobian.Spec{
		Layout:      l,
		Rows:        m.rows,
		Residual:    m.residual,
		Directional: &jacobian.Directional{Eval: m.directional, Pattern: m.pattern},
	}, nil
}

func newModel(name string, n int, guard *arith.Guard) (*model, error) {
	switch name {
	case "vdp":
		return vanDerPol(), nil
	case "cstr":
		return reactor(guard), nil
	case "chain":
		if n < 2 {
			return nil, fmt.Errorf("chain needs at least 2 states, got %d", n)
		}
		return chain(n), nil
	}
	return nil, fmt.Errorf("unknown model %q", name)
}

// vanDerPol is the oscillator in semi-explicit DAE form,
// columns dx0 dx1 x0 x1 mu w:
//
//	0 = dx0 - x1
//	0 = dx1 - w
//	0 = w - (mu*(1-x0²)*x1 - x0)
func vanDerPol() *model {
	m := &model{
		name:  "vdp",
		sizes: vars.Sizes{DX: 2, X: 2, U: 1, W: 1},
		rows:  3,
		pattern: sparsity.MustPattern(
			[]int{0, 1, 2, 0, 2, 2, 1, 2},
			[]int{0, 1, 2, 3, 3, 4, 5, 5},
		),
		x: []float64{0.4, -0.9, 2, -0.4, 1, 0.2},
	}
	m.residual = func(x, res []float64) error {
		res[0] = x[0] - x[3]
		res[1] = x[1] - x[5]
		res[2] = x[5] - (x[4]*(1-x[2]*x[2])*x[3] - x[2])
		return nil
	}
	m.directional = func(x, s, res, dres []float64) error {
		_ = m.residual(x, res)
		x0, x1, mu := x[2], x[3], x[4]
		dres[0] = s[0] - s[3]
		dres[1] = s[1] - s[5]
		dres[2] = s[5] - (s[4]*(1-x0*x0)*x1 - 2*mu*x0*x1*s[2] + mu*(1-x0*x0)*s[3] - s[2])
		return nil
	}
	return m
}

// reactor is a continuous stirred tank with an exothermic first order reaction,
// columns q V dc dT c T Tin:
//
//	0 = dc - (q/V*(1-c) - k(T)*c)
//	0 = dT - (q/V*(Tin-T) + 2*k(T)*c)
//
// with k(T) = k0*exp(-E/T). The dilution rate q/V is a guarded division.
func reactor(guard *arith.Guard) *model {
	const k0, e = 10.0, 800.0
	m := &model{
		name:  "cstr",
		sizes: vars.Sizes{PI: 2, DX: 2, X: 2, U: 1},
		rows:  2,
		pattern: sparsity.MustPattern(
			[]int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 1},
			[]int{0, 0, 1, 1, 2, 3, 4, 4, 5, 5, 6},
		),
		x: []float64{1, 10, 0, 0, 0.3, 350, 300},
	}
	rate := func(t float64) float64 { return k0 * math.Exp(-e/t) }
	m.residual = func(x, res []float64) error {
		q, v, c, t, tin := x[0], x[1], x[4], x[5], x[6]
		a := guard.Divide(q, v, "q/V")
		k := rate(t)
		res[0] = x[2] - (a*(1-c) - k*c)
		res[1] = x[3] - (a*(tin-t) + 2*k*c)
		return nil
	}
	m.directional = func(x, s, res, dres []float64) error {
		_ = m.residual(x, res)
		q, v, c, t, tin := x[0], x[1], x[4], x[5], x[6]
		a := guard.Divide(q, v, "q/V")
		da := guard.Divide(s[0], v, "dq/V") - guard.Divide(q*s[1], v*v, "q*dV/V^2")
		k := rate(t)
		dk := guard.Divide(k*e*s[5], t*t, "k*E*dT/T^2")
		dres[0] = s[2] - (da*(1-c) - a*s[4] - dk*c - k*s[4])
		dres[1] = s[3] - (da*(tin-t) + a*(s[6]-s[5]) + 2*(dk*c+k*s[4]))
		return nil
	}
	return m
}

// chain is a discretized reaction diffusion line of n cells, columns dx_i x_i u:
//
//	0 = dx_i - (x_{i-1} - 2x_i + x_{i+1}) + u*x_i²
func chain(n int) *model {
	var rows, cols []int
	for i := 0; i < n; i++ {
		rows = append(rows, i)
		cols = append(cols, i)
	}
	for j := 0; j < n; j++ {
		for i := j - 1; i <= j+1; i++ {
			if i >= 0 && i < n {
				rows = append(rows, i)
				cols = append(cols, n+j)
			}
		}
	}
	for i := 0; i < n; i++ {
		rows = append(rows, i)
		cols = append(cols, 2*n)
	}

	m := &model{
		name:    "chain",
		sizes:   vars.Sizes{DX: n, X: n, U: 1},
		rows:    n,
		pattern: sparsity.MustPattern(rows, cols),
		x:       make([]float64, 2*n+1),
	}
	for i := 0; i < n; i++ {
		m.x[n+i] = math.Sin(float64(i+1) / float64(n))
	}
	m.x[2*n] = 0.5

	at := func(x []float64, i int) float64 {
		if i < 0 || i >= n {
			return 0
		}
		return x[n+i]
	}
	m.residual = func(x, res []float64) error {
		u := x[2*n]
		for i := 0; i < n; i++ {
			xi := x[n+i]
			res[i] = x[i] - (at(x, i-1) - 2*xi + at(x, i+1)) + u*xi*xi
		}
		return nil
	}
	m.directional = func(x, s, res, dres []float64) error {
		_ = m.residual(x, res)
		u := x[2*n]
		for i := 0; i < n; i++ {
			xi := x[n+i]
			dres[i] = s[i] - (at(s, i-1) - 2*s[n+i] + at(s, i+1)) + s[2*n]*xi*xi + 2*u*xi*s[n+i]
		}
		return nil
	}
	return m
}
