// Package engine wires together config, explorer, snapcache, baseversion,
// and orchestrator into the single constructor applications use, following
// the teacher's engine.Validator: one struct built from an Explorer plus
// functional options, exposing the one operation callers need.
package engine

import (
	"context"

	snapgen "github.com/gofhir/snapgen"
	"github.com/gofhir/snapgen/baseversion"
	"github.com/gofhir/snapgen/config"
	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/orchestrator"
	"github.com/gofhir/snapgen/pkg/fpcheck"
	"github.com/gofhir/snapgen/snapcache"
)

// Engine is the snapshot-generation engine for one configured context.
type Engine struct {
	options      *config.Options
	explorer     explorer.Explorer
	cache        *snapcache.Coordinator
	baseResolver *baseversion.Resolver
	orchestrator *orchestrator.Orchestrator
}

// EngineVersion is the engine's own major.minor.patch, used to key the
// on-disk snapshot cache directory per §6 ("vM.m.x").
const EngineVersion = "1.0.0"

// New builds an Engine against exp, applying opts over config.DefaultOptions.
// An unresolvable fhirVersion is a fatal config error.
func New(ctx context.Context, exp explorer.Explorer, opts ...config.Option) (*Engine, error) {
	options := config.Apply(opts...)
	if !options.FHIRVersion.IsValid() {
		canonical, err := snapgen.ResolveVersion(string(options.FHIRVersion))
		if err != nil {
			return nil, err
		}
		options.FHIRVersion = canonical
	}

	defaultBase := options.FHIRVersion.BasePackage()
	if options.CoreVersionOverride.ID != "" {
		defaultBase = options.CoreVersionOverride
	}

	cachePath := options.CachePath
	if cachePath == "" {
		if p, err := exp.CachePath(ctx); err == nil {
			cachePath = p
		}
	}

	cache := snapcache.New(cachePath, EngineVersion, options.CacheMode, options.Logger)
	baseResolver := baseversion.New(exp, defaultBase, options.Logger)

	const baseNamespace = "http://hl7.org/fhir/StructureDefinition"
	orch := orchestrator.New(exp, cache, baseResolver, baseNamespace, options.Logger)
	orch.CheckConstraintExpressions = options.CheckConstraintExpressions
	if options.CheckConstraintExpressions {
		orch.Checker = fpcheck.NewChecker()
	}

	return &Engine{
		options:      options,
		explorer:     exp,
		cache:        cache,
		baseResolver: baseResolver,
		orchestrator: orch,
	}, nil
}

// GetSnapshot resolves identifier to its snapshot, per §4.9. The returned
// element.Resource is the full StructureDefinition object (resourceType
// included, snapshot.element holding the resolved elements).
func (e *Engine) GetSnapshot(ctx context.Context, identifier string, pkgFilter *explorer.PackageRef) (element.Resource, error) {
	return e.orchestrator.GetSnapshot(ctx, identifier, pkgFilter)
}

// Precache runs the configured cache mode's create() behaviour (§4.8) over
// every profile StructureDefinition in the configured context.
func (e *Engine) Precache(ctx context.Context) (*snapcache.PrecacheReport, error) {
	packages, err := e.explorer.ContextPackages(ctx)
	if err != nil {
		return nil, err
	}

	var items []snapcache.PrecacheItem
	for _, pkg := range packages {
		metas, err := e.explorer.LookupMeta(ctx, explorer.LookupFilter{Package: &pkg})
		if err != nil {
			continue
		}
		for _, meta := range metas {
			if meta.Derivation != "constraint" {
				continue
			}
			meta := meta
			items = append(items, snapcache.PrecacheItem{
				Key: snapcache.Key{Package: meta.Package, Filename: meta.Filename},
				Generate: func(ctx context.Context) (element.Resource, error) {
					return e.orchestrator.GetSnapshot(ctx, meta.URL, &meta.Package)
				},
			})
		}
	}

	report := e.cache.Create(ctx, packages, items)
	report.LogSummary(e.options.Logger)
	return report, nil
}

// Metrics exposes the cache and orchestrator counters for observability.
func (e *Engine) Metrics() (snapcache.MetricsSnapshot, orchestrator.MetricsSnapshot) {
	return e.cache.Metrics.Snapshot(), e.orchestrator.Metrics.Snapshot()
}
