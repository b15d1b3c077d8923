package snapcache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsglog"
)

// PrecacheItem is one cache entry Create() should ensure is populated.
type PrecacheItem struct {
	Key      Key
	Generate GenerateFunc
}

// PrecacheFailure records one item's generation failure during Create(),
// per §4.11's "errors are accumulated per-file, logged in batch at end".
type PrecacheFailure struct {
	Key Key
	Err error
}

// PrecacheReport accumulates per-file errors during ensure/rebuild,
// grounded on the teacher's registry.LoadStats style of returning a stats
// struct from a batch load rather than failing on the first bad file.
type PrecacheReport struct {
	Generated int
	Skipped   int
	Failures  []PrecacheFailure
}

// LogSummary writes a single formatted line summarising the batch, the
// shape §4.11 calls for ("logged in batch at end").
func (r *PrecacheReport) LogSummary(logger fsglog.Logger) {
	if logger == nil {
		logger = fsglog.Nop
	}
	if len(r.Failures) == 0 {
		logger.Info("snapcache: precache complete, %d generated, %d skipped", r.Generated, r.Skipped)
		return
	}
	logger.Warn("snapcache: precache complete, %d generated, %d skipped, %d failed", r.Generated, r.Skipped, len(r.Failures))
	for _, f := range r.Failures {
		logger.Warn("snapcache: %s: %v", f.Key.singleflightKey(), f.Err)
	}
}

// Create implements §4.8's `create()` column across all four modes.
func (c *Coordinator) Create(ctx context.Context, packages []explorer.PackageRef, items []PrecacheItem) *PrecacheReport {
	report := &PrecacheReport{}

	switch c.Mode {
	case ModeLazy, ModeNone:
		return report
	case ModeRebuild:
		for _, pkg := range packages {
			if err := c.DeleteAll(pkg); err != nil {
				report.Failures = append(report.Failures, PrecacheFailure{
					Key: Key{Package: pkg}, Err: fmt.Errorf("delete cache dir: %w", err),
				})
			}
		}
		fallthrough
	case ModeEnsure:
		for _, item := range items {
			if _, ok, err := c.read(item.Key); err == nil && ok {
				report.Skipped++
				continue
			}
			resource, err := item.Generate(ctx)
			if err != nil {
				report.Failures = append(report.Failures, PrecacheFailure{Key: item.Key, Err: err})
				continue
			}
			if err := c.write(item.Key, resource); err != nil {
				report.Failures = append(report.Failures, PrecacheFailure{Key: item.Key, Err: err})
				continue
			}
			report.Generated++
		}
	}

	return report
}

// Metrics is the small counters surface §4 calls for: cache hit/miss/evict
// counts and write totals, grounded on the teacher's top-level metrics.go
// and on pkg/cache.Stats()'s atomic-counter shape.
type Metrics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
	writes atomic.Uint64
}

func (m *Metrics) recordHit()   { m.hits.Add(1) }
func (m *Metrics) recordMiss()  { m.misses.Add(1) }
func (m *Metrics) recordEvict() { m.evicts.Add(1) }
func (m *Metrics) recordWrite() { m.writes.Add(1) }

// Snapshot returns a point-in-time read of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Evicts: m.evicts.Load(),
		Writes: m.writes.Load(),
	}
}

// MetricsSnapshot is an immutable read of Metrics at one instant.
type MetricsSnapshot struct {
	Hits   uint64
	Misses uint64
	Evicts uint64
	Writes uint64
}
