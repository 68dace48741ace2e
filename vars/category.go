// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vars

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a bit flag naming one partition of the flat variable vector.
// Categories combine by bitwise OR into a selection mask.
type Category uint32

const (
	CI Category = 1 << iota // independent constants
	CD                      // dependent constants
	PI                      // independent parameters
	PD                      // dependent parameters
	DX                      // derivatives
	X                       // states
	U                       // inputs
	W                       // algebraics
	T                       // time
)

const (
	// States selects derivatives and states.
	States = DX | X
	// Free selects every free variable of the residual.
	Free = DX | X | U | W
	// All selects every category.
	All = CI | CD | PI | PD | DX | X | U | W | T
)

// order is the fixed category order of the layout ranges.
var order = [...]Category{CI, CD, PI, PD, DX, X, U, W, T}

var names = map[Category]string{
	CI: "ci", CD: "cd", PI: "pi", PD: "pd",
	DX: "dx", X: "x", U: "u", W: "w", T: "t",
}

func (c Category) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, k := range order {
		if c&k != 0 {
			parts = append(parts, names[k])
		}
	}
	if c&^All != 0 {
		parts = append(parts, "?")
	}
	return strings.Join(parts, "|")
}

// Has reports whether every bit of o is set in c.
func (c Category) Has(o Category) bool {
	return c&o == o
}

var ErrUnknownCategory = errors.New("vars: unknown category")

// ParseCategory parses names joined by "|", as printed by Category.String.
// The aliases "states", "free" and "all" name the convenience masks.
func ParseCategory(s string) (c Category, err error) {
	for _, part := range strings.Split(s, "|") {
		switch name := strings.ToLower(strings.TrimSpace(part)); name {
		case "none":
		case "states":
			c |= States
		case "free":
			c |= Free
		case "all":
			c |= All
		default:
			k, ok := byName[name]
			if !ok {
				return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, part)
			}
			c |= k
		}
	}
	return c, nil
}

var byName = func() map[string]Category {
	m := make(map[string]Category, len(names))
	for k, name := range names {
		m[name] = k
	}
	return m
}()
