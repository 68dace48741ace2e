// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command jaccheck evaluates the Jacobian of a built-in model for a category
// selection and compares it with central finite differences of the residual.
//
// Usage:
//
//	jaccheck -model cstr -sel states|u -coloring dsatur -v 3
//
// The exit status is 1 when the check reports a mismatch.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/curioloop/jacobian"
	"github.com/curioloop/jacobian/arith"
	"github.com/curioloop/jacobian/coloring"
	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
)

type options struct {
	model     string
	n         int
	sel       string
	algo      string
	method    string
	relTol    float64
	absTol    float64
	structure bool
	verbose   int
}

func main() {
	var o options
	flag.StringVar(&o.model, "model", "vdp", "model to check: vdp, cstr or chain")
	flag.IntVar(&o.n, "n", 16, "number of cells of the chain model")
	flag.StringVar(&o.sel, "sel", "free", "categories to differentiate with respect to, joined by |")
	flag.StringVar(&o.algo, "coloring", "cpr", "coloring heuristic: cpr, dsatur, welsh-powell or largest-first")
	flag.StringVar(&o.method, "method", "auto", "derivative source: auto, compressed or finite-difference")
	flag.Float64Var(&o.relTol, "rtol", 1e-5, "relative tolerance")
	flag.Float64Var(&o.absTol, "atol", 1e-8, "absolute tolerance")
	flag.BoolVar(&o.structure, "structure", true, "report non-zeros outside the declared pattern")
	flag.IntVar(&o.verbose, "v", int(logging.Warning), "log level from 0 (silent) to 5 (debug)")
	flag.Parse()

	ok, err := run(o, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jaccheck:", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

func parseAlgorithm(s string) (coloring.Algorithm, error) {
	for _, a := range []coloring.Algorithm{coloring.CPR, coloring.Dsatur, coloring.WelshPowell, coloring.LargestFirst} {
		if strings.EqualFold(a.String(), s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", coloring.ErrUnknownAlgo, s)
}

func parseMethod(s string) (jacobian.Method, error) {
	for _, m := range []jacobian.Method{jacobian.Auto, jacobian.Compressed, jacobian.FiniteDifference} {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", jacobian.ErrUnknownMethod, s)
}

// run checks the selected model and writes the report into out. It returns false on mismatch.
func run(o options, out, msg io.Writer) (bool, error) {

	log := logging.New(logging.Level(o.verbose), msg)
	guard := &arith.Guard{Log: log}

	m, err := newModel(o.model, o.n, guard)
	if err != nil {
		return false, err
	}
	cats, err := vars.ParseCategory(o.sel)
	if err != nil {
		return false, err
	}
	algo, err := parseAlgorithm(o.algo)
	if err != nil {
		return false, err
	}
	method, err := parseMethod(o.method)
	if err != nil {
		return false, err
	}

	spec, err := m.spec()
	if err != nil {
		return false, err
	}
	spec.Coloring = algo
	spec.Log = log
	f, err := spec.New()
	if err != nil {
		return false, err
	}
	sel, err := vars.NewSelection(spec.Layout, cats, nil)
	if err != nil {
		return false, err
	}

	cols, _ := f.ColumnCount(sel)
	nnz, err := f.NonzeroCountWith(method, sel, jacobian.Sparse)
	if err != nil {
		return false, err
	}
	colors, err := f.Colors(sel)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "model %s: %d equations, %d columns (%s), %d non-zeros, %d colors (%s)\n",
		m.name, f.Rows(), cols, cats, nnz, colors, algo)

	if err = stateGroups(out, m, spec.Layout); err != nil {
		return false, err
	}

	report, err := f.Check(m.x, sel, jacobian.CheckOptions{
		Method:         method,
		RelTol:         o.relTol,
		AbsTol:         o.absTol,
		CheckStructure: o.structure,
	})
	if err != nil {
		return false, err
	}
	stats := f.Stats()
	fmt.Fprintf(out, "check %s: %d numeric, %d structure mismatches; %d directional, %d residual calls\n",
		report.Method, len(report.Numeric), len(report.Structure), stats.Directional, stats.Residual)
	for _, e := range report.Numeric {
		fmt.Fprintf(out, "  numeric   %v\n", e)
	}
	for _, e := range report.Structure {
		fmt.Fprintf(out, "  structure %v\n", e)
	}
	if n := guard.Count(); n > 0 {
		fmt.Fprintf(out, "guarded divisions: %d\n", n)
	}
	return report.OK(), nil
}

// stateGroups prints the CPR groups of the square block of states against derivatives, if any.
func stateGroups(out io.Writer, m *model, l *vars.Layout) error {
	n := l.Size(vars.X)
	if n == 0 || n != m.rows {
		return nil
	}
	sel, err := vars.NewSelection(l, vars.X, nil)
	if err != nil {
		return err
	}
	block, err := sparsity.NewPattern(m.pattern.Filter(sel).Indices())
	if err != nil {
		return err
	}
	r, err := coloring.Grouping(block, n)
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Fprintf(out, "state block %d×%d: dense, no grouping\n", n, n)
		return nil
	}
	fmt.Fprintf(out, "state block %d×%d: %d CPR groups\n", n, n, r.Colors())
	return nil
}
