// Package orchestrator implements §4.9's get_snapshot entrypoint: identifier
// fan-out across URL/id/name, derivation dispatch to a stored snapshot or
// cache-gated generation, the historical "#"-prefixed sub-tree selection,
// and the fallback-to-stored-snapshot-on-generation-failure rule.
package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/gofhir/snapgen/baseversion"
	"github.com/gofhir/snapgen/diffapply"
	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fetch"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/migrate"
	"github.com/gofhir/snapgen/pkg/fpcheck"
	"github.com/gofhir/snapgen/snapcache"
)

// Orchestrator is the engine's single public entrypoint for resolving one
// profile (or base type) to its snapshot.
type Orchestrator struct {
	Explorer      explorer.Explorer
	Cache         *snapcache.Coordinator
	BaseResolver  *baseversion.Resolver
	BaseNamespace string
	Logger        fsglog.Logger
	Metrics       *Metrics

	CheckConstraintExpressions bool
	Checker                    *fpcheck.Checker
}

// New builds an Orchestrator. logger may be nil (defaults to a no-op).
func New(exp explorer.Explorer, cache *snapcache.Coordinator, baseResolver *baseversion.Resolver, baseNamespace string, logger fsglog.Logger) *Orchestrator {
	if logger == nil {
		logger = fsglog.Nop
	}
	return &Orchestrator{
		Explorer:      exp,
		Cache:         cache,
		BaseResolver:  baseResolver,
		BaseNamespace: baseNamespace,
		Logger:        logger,
		Metrics:       &Metrics{},
	}
}

// finalize builds the returned/cached snapshot artifact: a copy of
// source's top-level fields (resourceType, url, name, ...; nested values
// are shared with source, not copied) with
// snapshot.element replaced by elements and __core_package stamped, per
// §6's result-annotation rule and §9's cache format note. source may be nil
// (e.g. in tests that don't populate explorer.StructureDefinition.Resource);
// element.NewResource tolerates that by starting from an empty object.
func finalize(source map[string]any, elements []element.Element, pkg explorer.PackageRef) element.Resource {
	resource := element.NewResource(source, elements)
	resource.SetCorePackage(pkg.ID, pkg.Version)
	return resource
}

// GetSnapshot resolves identifier (a canonical URL, id, or name, optionally
// "#"-prefixed for historical sub-tree selection) to its snapshot, scoped
// to pkgFilter if non-nil. The returned element.Resource is the full
// StructureDefinition object (resourceType included), not a bare element
// sequence.
func (o *Orchestrator) GetSnapshot(ctx context.Context, identifier string, pkgFilter *explorer.PackageRef) (element.Resource, error) {
	if sub, ok := strings.CutPrefix(identifier, "#"); ok {
		return o.getSubTree(ctx, sub, pkgFilter)
	}

	sd, err := o.resolveIdentifier(ctx, identifier, pkgFilter)
	if err != nil {
		return nil, err
	}

	return o.resolveDerivation(ctx, sd)
}

// resolveIdentifier implements the fan-out order from §4.9: canonical URL
// first when identifier contains ':', then id, then name; errors from
// every attempt are accumulated and only surfaced (as a single not-found)
// if all three fail.
func (o *Orchestrator) resolveIdentifier(ctx context.Context, identifier string, pkgFilter *explorer.PackageRef) (*explorer.StructureDefinition, error) {
	var attempts []explorer.MetaSelector
	if strings.Contains(identifier, ":") {
		attempts = []explorer.MetaSelector{{URL: identifier}, {ID: identifier}, {Name: identifier}}
	} else {
		attempts = []explorer.MetaSelector{{ID: identifier}, {Name: identifier}}
	}

	var errs []error
	for _, sel := range attempts {
		sd, err := o.Explorer.ResolveMeta(ctx, sel, pkgFilter)
		if err == nil && sd != nil {
			return sd, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, err := range errs {
		o.Logger.Warn("orchestrator: resolution attempt for %q failed: %v", identifier, err)
	}
	return nil, fsgerrors.New(fsgerrors.KindNotFound, identifier, "", nil)
}

func (o *Orchestrator) getSubTree(ctx context.Context, identifier string, pkgFilter *explorer.PackageRef) (element.Resource, error) {
	segs := element.SplitID(identifier)
	if len(segs) == 0 {
		return nil, fsgerrors.New(fsgerrors.KindNotFound, identifier, "", nil)
	}
	full, err := o.GetSnapshot(ctx, segs[0], pkgFilter)
	if err != nil {
		return nil, err
	}
	elements, err := full.Elements()
	if err != nil {
		return nil, err
	}
	node, err := element.ToTree(elements)
	if err != nil {
		return nil, err
	}
	sub := element.FindByID(node, identifier)
	if sub == nil {
		return nil, fsgerrors.New(fsgerrors.KindNotFound, identifier, "", nil)
	}
	subElements, err := element.FromTree(sub)
	if err != nil {
		return nil, err
	}
	return element.NewResource(full, subElements), nil
}

// resolveDerivation implements §4.9's dispatch table.
func (o *Orchestrator) resolveDerivation(ctx context.Context, sd *explorer.StructureDefinition) (element.Resource, error) {
	pkg := sd.Meta.Package

	switch sd.Meta.Derivation {
	case "", "specialization":
		if len(sd.Snapshot) == 0 {
			return nil, fsgerrors.New(fsgerrors.KindNoSnapshot, sd.Meta.URL, pkg.String(), nil)
		}
		o.Metrics.recordSpecialization()
		return finalize(sd.Resource, sd.Snapshot, pkg), nil

	case "constraint":
		o.Metrics.recordConstraint()
		resource, err := o.generateConstraint(ctx, sd)
		if err != nil {
			if len(sd.Snapshot) > 0 {
				o.Logger.Warn("orchestrator: generation failed for %s, falling back to stored snapshot: %v", sd.Meta.URL, err)
				o.Metrics.recordFallback()
				return finalize(sd.Resource, sd.Snapshot, pkg), nil
			}
			return nil, err
		}
		return resource, nil

	default:
		return nil, fsgerrors.New(fsgerrors.KindUnsupportedDerivation, sd.Meta.URL, pkg.String(), nil)
	}
}

// generateConstraint is cache-gated per §4.8: the cached artifact is the
// same finalized, annotated element.Resource the caller receives, so a
// cache hit never needs to be rebuilt or re-annotated.
func (o *Orchestrator) generateConstraint(ctx context.Context, sd *explorer.StructureDefinition) (element.Resource, error) {
	if len(sd.Differential) == 0 {
		return nil, fsgerrors.New(fsgerrors.KindNoDifferential, sd.Meta.URL, sd.Meta.Package.String(), nil)
	}
	if sd.Meta.BaseDefinition == "" {
		return nil, fsgerrors.New(fsgerrors.KindNoBaseDefinition, sd.Meta.URL, sd.Meta.Package.String(), nil)
	}

	basePkg := o.BaseResolver.Resolve(ctx, sd.Meta.Package)
	key := snapcache.Key{Package: sd.Meta.Package, Filename: sd.Meta.Filename}

	return o.Cache.GetSnapshot(ctx, key, func(ctx context.Context) (element.Resource, error) {
		elements, err := o.generate(ctx, sd, basePkg)
		if err != nil {
			return nil, err
		}
		return finalize(sd.Resource, elements, basePkg), nil
	})
}

func (o *Orchestrator) generate(ctx context.Context, sd *explorer.StructureDefinition, basePkg explorer.PackageRef) ([]element.Element, error) {
	baseSD, err := o.Explorer.ResolveMeta(ctx, explorer.MetaSelector{URL: sd.Meta.BaseDefinition}, nil)
	if err != nil {
		return nil, fsgerrors.New(fsgerrors.KindNoBaseDefinition, sd.Meta.BaseDefinition, sd.Meta.Package.String(), err)
	}
	baseResource, err := o.GetSnapshot(ctx, baseSD.Meta.URL, nil)
	if err != nil {
		return nil, err
	}
	base, err := baseResource.Elements()
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(sd.Meta.Package, basePkg, o.BaseNamespace, o.Explorer, o.snapshotFetcherFor(nil), o.Logger)
	fetcher.CheckConstraintExpressions = o.CheckConstraintExpressions
	fetcher.Checker = o.Checker

	migrated := migrate.Migrate(base, migrate.Options{
		SourceURL:                  sd.Meta.URL,
		BaseNamespace:              o.BaseNamespace,
		CheckConstraintExpressions: o.CheckConstraintExpressions,
		Checker:                    o.Checker,
		Logger:                     o.Logger,
	})

	return diffapply.Apply(ctx, migrated, sd.Differential, fetcher, o.Logger)
}

// snapshotFetcherFor builds the closure fetch.Fetcher uses to resolve a
// constraint profile's own snapshot transitively, re-entering the
// orchestrator per §4.4/§4.9. pkgFilter is nil: a profile referenced from
// within a type's `type.profile` can live in any package in context. The
// element-level pipeline only needs the snapshot's elements, so the
// resource wrapper is unwrapped at this boundary.
func (o *Orchestrator) snapshotFetcherFor(pkgFilter *explorer.PackageRef) fetch.SnapshotFetcher {
	return func(ctx context.Context, url string) ([]element.Element, error) {
		resource, err := o.GetSnapshot(ctx, url, pkgFilter)
		if err != nil {
			return nil, err
		}
		return resource.Elements()
	}
}

// Metrics is the small counters surface §4's Supplemented Features section
// calls for, grounded the same way as snapcache.Metrics.
type Metrics struct {
	specializations atomic.Uint64
	constraints     atomic.Uint64
	fallbacks       atomic.Uint64
}

func (m *Metrics) recordSpecialization() { m.specializations.Add(1) }
func (m *Metrics) recordConstraint()     { m.constraints.Add(1) }
func (m *Metrics) recordFallback()       { m.fallbacks.Add(1) }

// Snapshot returns a point-in-time read of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Specializations: m.specializations.Load(),
		Constraints:     m.constraints.Load(),
		Fallbacks:       m.fallbacks.Load(),
	}
}

// MetricsSnapshot is an immutable read of Metrics at one instant.
type MetricsSnapshot struct {
	Specializations uint64
	Constraints     uint64
	Fallbacks       uint64
}
