// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arith provides guarded arithmetic for generated residual expressions.
package arith

import (
	"math"
	"sync/atomic"

	"github.com/curioloop/jacobian/logging"
)

// Big is the finite value returned for a non-zero numerator divided by zero.
const Big = 1e20

// Divide returns num/den, or the guarded value when den is exactly zero:
//   - 0 when num is also zero
//   - NaN when num is NaN
//   - ±Big with the sign of num otherwise
func Divide(num, den float64) float64 {
	if den != 0 {
		return num / den
	}
	return guarded(num)
}

func guarded(num float64) float64 {
	switch {
	case math.IsNaN(num):
		return num
	case num == 0:
		return 0
	case num > 0:
		return Big
	default:
		return -Big
	}
}

// Guard performs guarded divisions and reports every zero denominator to its logger.
type Guard struct {
	Log   *logging.Logger
	count atomic.Int64
}

// Divide is the equation-level guarded division, expr names the offending expression.
func (g *Guard) Divide(num, den float64, expr string) float64 {
	if den != 0 {
		return num / den
	}
	g.count.Add(1)
	g.Log.Node(logging.Warning, "DivideByZero", "exp", expr)
	return guarded(num)
}

// DivideFunction is the guarded division used inside a named function body.
func (g *Guard) DivideFunction(name string, num, den float64, expr string) float64 {
	if den != 0 {
		return num / den
	}
	g.count.Add(1)
	g.Log.Node(logging.Warning, "DivideByZeroInFunc", "func", name, "exp", expr)
	return guarded(num)
}

// Count returns how many times the zero-denominator branch was taken.
func (g *Guard) Count() int64 {
	return g.count.Load()
}
