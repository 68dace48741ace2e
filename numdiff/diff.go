// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates directional derivatives of a residual function by finite differences.
package numdiff

import (
	"errors"
	"fmt"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

type Bound [2]float64

// Residual evaluates the m-vector res of residuals at the n-vector x.
type Residual func(x, res []float64) error

// Spec represents a finite difference estimate of J(x)·s, the derivative of a
// residual along a seed direction s.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type Spec struct {
	N, M int
	// Function of which to estimate the derivatives.
	Residual Residual
	// Finite difference method to use.
	Method Method
	// Lower and upper bounds on independent variables.
	// Use it to limit the range of function evaluation.
	Bounds []Bound
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = RelStep * sign(v) * max(1, abs(v)),
	// where v is the largest seeded component of x0, with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(v) * abs(v) when RelStep is provided.
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Don't check if x0 is out of bounds.
	NotChkBnd bool
	// Whether Diff stores the Jacobian column-major instead of row-major.
	TransJac bool
	approxCtx
}

type approxCtx struct {
	f1, f2  []float64
	xt      []float64
	support []int
	evals   int
}

var ErrResidual = errors.New("numdiff: residual evaluation failed")

// Check the parameters and initialize approxCtx.
func (s *Spec) Check(x0 []float64) (err error) {

	switch {
	case s.N <= 0 || s.M <= 0:
		return errors.New("numdiff: negative dimensions")
	case s.Method != Forward && s.Method != Central:
		return errors.New("numdiff: unknown method")
	case s.Residual == nil:
		return errors.New("numdiff: residual function is required")
	case s.N != len(x0):
		return errors.New("numdiff: invalid x0 dimensions")
	}

	if s.Bounds != nil {
		if len(s.Bounds) != s.N {
			return errors.New("numdiff: invalid bound dimension")
		}
		for i := range s.Bounds {
			bound := &s.Bounds[i]
			if math.IsNaN(bound[0]) {
				bound[0] = math.Inf(-1)
			}
			if math.IsNaN(bound[1]) {
				bound[1] = math.Inf(1)
			}
			if bound[0] > bound[1] {
				return errors.New("numdiff: invalid bound range")
			}
			if !s.NotChkBnd && (x0[i] < bound[0] || x0[i] > bound[1]) {
				return errors.New("numdiff: x0 violates bound constraints")
			}
		}
	}

	if len(s.f1) != s.M {
		s.f1 = make([]float64, s.M)
		s.f2 = make([]float64, s.M)
	}
	if len(s.xt) != s.N {
		s.xt = make([]float64, s.N)
		s.support = make([]int, 0, s.N)
	}
	return
}

// Evaluations returns the number of residual evaluations performed so far.
func (s *Spec) Evaluations() int { return s.evals }

func (s *Spec) eval(x, res []float64) error {
	s.evals++
	if err := s.Residual(x, res); err != nil {
		return fmt.Errorf("%w: %w", ErrResidual, err)
	}
	return nil
}

// Directional stores the residual at x0 into res and the derivative along seed into dres.
func (s *Spec) Directional(x0, seed, res, dres []float64) error {

	if err := s.Check(x0); err != nil {
		return err
	}
	if len(seed) != s.N || len(res) != s.M || len(dres) != s.M {
		return errors.New("numdiff: invalid seed or residual dimensions")
	}

	s.support = s.support[:0]
	scale := 0.0
	for i, v := range seed {
		if v != 0 {
			s.support = append(s.support, i)
			scale = math.Max(scale, math.Abs(v))
		}
	}

	if err := s.eval(x0, res); err != nil {
		return err
	}
	if len(s.support) == 0 {
		clear(dres)
		return nil
	}

	h := s.absoluteStep(x0) / scale
	h, oneSide := s.adjustToBounds(x0, seed, h)

	if s.Method == Central {
		return s.approxCentral(x0, seed, res, dres, h, oneSide)
	}
	return s.approxForward(x0, seed, res, dres, h)
}

// Diff calculate approximation of the full m×n Jacobian, one unit seed per column.
func (s *Spec) Diff(x0, jac []float64) error {

	if err := s.Check(x0); err != nil {
		return err
	}
	n, m := s.N, s.M
	if len(jac) != n*m {
		return errors.New("numdiff: invalid jac dimensions")
	}

	seed := make([]float64, n)
	res := make([]float64, m)
	col := make([]float64, m)
	for i := range seed {
		seed[i] = 1
		if err := s.Directional(x0, seed, res, col); err != nil {
			return err
		}
		seed[i] = 0
		if s.TransJac {
			copy(jac[i*m:(i+1)*m], col)
		} else {
			for j, v := range col {
				jac[i+j*n] = v
			}
		}
	}
	return nil
}

// absoluteStep selects the step from the largest seeded component of x0.
func (s *Spec) absoluteStep(x0 []float64) float64 {

	var eps float64
	switch s.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	v := x0[s.support[0]]
	for _, i := range s.support[1:] {
		if math.Abs(x0[i]) > math.Abs(v) {
			v = x0[i]
		}
	}

	auto := math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	abs, rel := s.AbsStep, s.RelStep
	if abs == 0 && rel == 0 {
		return auto
	}
	h := abs
	if h == 0 {
		h = math.Copysign(rel, v) * math.Abs(v)
	}
	if (v+h)-v == 0 {
		h = auto
	}
	return h
}

// reach returns how far x0 may move backward (ld) and forward (ud) along seed within the bounds.
func (s *Spec) reach(x0, seed []float64) (ld, ud float64) {
	ld, ud = math.Inf(1), math.Inf(1)
	for _, i := range s.support {
		lb, ub, d := s.Bounds[i][0], s.Bounds[i][1], seed[i]
		if d > 0 {
			ud = math.Min(ud, (ub-x0[i])/d)
			ld = math.Min(ld, (x0[i]-lb)/d)
		} else {
			ud = math.Min(ud, (lb-x0[i])/d)
			ld = math.Min(ld, (x0[i]-ub)/d)
		}
	}
	return
}

func (s *Spec) adjustToBounds(x0, seed []float64, h float64) (float64, bool) {
	if s.Method == Central {
		h = math.Abs(h)
	}

	if s.Bounds == nil {
		return h, false
	}
	ld, ud := s.reach(x0, seed)
	if math.IsInf(ld, 1) && math.IsInf(ud, 1) {
		return h, false
	}

	if s.Method == Forward {
		violated := h < -ld || h > ud
		fitting := math.Abs(h) < math.Max(ld, ud)
		if violated && fitting {
			h = -h
		} else if !fitting {
			if ud >= ld {
				h = ud
			} else {
				h = -ld
			}
		}
		return h, false
	}

	oneSide := false
	central := ld >= h && ud >= h
	if !central {
		if ud >= ld {
			h = math.Min(h, 0.5*ud)
		} else {
			h = -math.Min(h, 0.5*ld)
		}
		oneSide = true
	}
	minDist := math.Min(ud, ld)
	if !central && math.Abs(h) <= minDist {
		h = minDist
		oneSide = false
	}
	return h, oneSide
}

func (s *Spec) shift(x0, seed []float64, t float64) []float64 {
	xt := s.xt
	copy(xt, x0)
	for _, i := range s.support {
		xt[i] = x0[i] + t*seed[i]
	}
	return xt
}

func (s *Spec) approxForward(x0, seed, f0, df []float64, h float64) error {
	fx := s.f1
	if err := s.eval(s.shift(x0, seed, h), fx); err != nil {
		return err
	}
	d := 1.0 / h
	for j := range f0 {
		df[j] = (fx[j] - f0[j]) * d
	}
	return nil
}

func (s *Spec) approxCentral(x0, seed, f0, df []float64, h float64, oneSide bool) error {
	f1, f2 := s.f1, s.f2
	d := 1.0 / (2 * h)
	if oneSide {
		if err := s.eval(s.shift(x0, seed, h), f1); err != nil {
			return err
		}
		if err := s.eval(s.shift(x0, seed, 2*h), f2); err != nil {
			return err
		}
		for j := range f0 {
			df[j] = (4*f1[j] - 3*f0[j] - f2[j]) * d
		}
		return nil
	}
	if err := s.eval(s.shift(x0, seed, -h), f1); err != nil {
		return err
	}
	if err := s.eval(s.shift(x0, seed, h), f2); err != nil {
		return err
	}
	for j := range f0 {
		df[j] = (f2[j] - f1[j]) * d
	}
	return nil
}
