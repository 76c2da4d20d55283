package plan

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/querysql"
)

// DefaultCacheSize is used when NewCache is given a non-positive size.
const DefaultCacheSize = 256

// Cache memoizes compiled plans by spec fingerprint. Only plans compiled
// without diagnostics are kept. Returned plans are shared and must not be
// modified. Safe for concurrent use.
type Cache struct {
	plans   *lru.Cache[string, *ir.ExecutionPlan]
	opts    []querysql.Option
	markers []rune
}

// NewCache creates a Cache holding up to size plans. opts are passed to
// every compilation.
func NewCache(size int, opts ...querysql.Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	plans, err := lru.New[string, *ir.ExecutionPlan](size)
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	markers := querysql.NewCompiler(opts...).Markers()
	return &Cache{plans: plans, opts: opts, markers: markers}, nil
}

// Get returns the plan for spec, compiling it on a miss. The bool reports a
// cache hit.
func (c *Cache) Get(spec *ir.FunctionSpec) (*ir.ExecutionPlan, ir.Diagnostics, bool) {
	fp, err := ir.Fingerprint(spec, c.markers)
	if err == nil {
		if p, ok := c.plans.Get(fp); ok {
			return p, nil, true
		}
	}

	p, diags := Compile(spec, c.opts...)
	if len(diags) == 0 {
		c.plans.Add(p.Fingerprint, p)
	}
	return p, diags, false
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	return c.plans.Len()
}

// Purge drops every cached plan.
func (c *Cache) Purge() {
	c.plans.Purge()
}
