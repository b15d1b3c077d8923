// Package fpcheck provides an optional, advisory FHIRPath syntax check for
// constraint expressions encountered during migration. It never fails a
// generation: a syntax error is logged and otherwise ignored.
package fpcheck

import (
	"sync"

	"github.com/gofhir/fhirpath"
)

// Checker compiles FHIRPath expressions to catch syntax errors early,
// caching compiled expressions the same way service.FHIRPathAdapter does.
// One Checker is shared across every generation the engine runs, and
// generations for distinct snapshots may be in flight concurrently (the
// snapshot cache's single-flight map only dedupes same-key callers), so the
// cache is mutex-guarded rather than a bare map.
type Checker struct {
	mu    sync.Mutex
	cache map[string]error
}

// NewChecker returns a ready-to-use Checker.
func NewChecker() *Checker {
	return &Checker{cache: make(map[string]error)}
}

// Check compiles expression and returns the compile error, if any. Results
// are cached per expression string so repeated constraints across sibling
// elements only compile once.
func (c *Checker) Check(expression string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.cache[expression]; ok {
		return err
	}
	_, err := fhirpath.Compile(expression)
	c.cache[expression] = err
	return err
}
