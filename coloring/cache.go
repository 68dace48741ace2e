// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coloring

import (
	"github.com/curioloop/jacobian/logging"
	"github.com/curioloop/jacobian/sparsity"
	"github.com/curioloop/jacobian/vars"
)

// Cache memoizes colorings of one pattern per selection signature.
// Entries are never evicted nor mutated: the pattern is immutable, so a stored
// coloring stays valid for the lifetime of the cache.
//
// Cache is not safe for concurrent use.
type Cache struct {
	pattern *sparsity.Pattern
	algo    Algorithm
	log     *logging.Logger
	entries map[vars.Signature]*Result
	hits    int
	misses  int
}

// NewCache returns an empty cache coloring p with algo.
func NewCache(p *sparsity.Pattern, algo Algorithm, log *logging.Logger) *Cache {
	return &Cache{
		pattern: p,
		algo:    algo,
		log:     log,
		entries: make(map[vars.Signature]*Result),
	}
}

// ColorsFor returns the coloring of the pattern filtered by sel,
// computing it on the first request of sel's signature only.
func (c *Cache) ColorsFor(sel *vars.Selection) (*Result, error) {
	sig := sel.Signature()
	if r, ok := c.entries[sig]; ok {
		c.hits++
		return r, nil
	}
	c.misses++

	f := c.pattern.Filter(sel)
	r, err := Color(f, c.algo)
	if err != nil {
		c.log.Node(logging.Error, "ColoringFailed", "sig", sig, "algo", c.algo, "err", err)
		return nil, err
	}
	c.entries[sig] = r
	if c.log.Enable(logging.Info) {
		c.log.Node(logging.Info, "ColoringDone", "sig", sig, "algo", c.algo,
			"cols", f.Columns(), "nnz", f.Nonzeros(), "colors", r.Colors())
	}
	return r, nil
}

// Len returns the number of cached colorings.
func (c *Cache) Len() int { return len(c.entries) }

// Hits returns the number of lookups served from the cache.
func (c *Cache) Hits() int { return c.hits }

// Misses returns the number of colorings computed.
func (c *Cache) Misses() int { return c.misses }

// Algorithm returns the coloring heuristic of the cache.
func (c *Cache) Algorithm() Algorithm { return c.algo }
