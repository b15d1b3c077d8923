// Package fetch implements the memoised definition fetcher: the component
// that resolves base types, content references, and cross-profile
// snapshots, composing three resolution sources behind one cache.
package fetch

import (
	"context"
	"strings"
	"sync"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/migrate"
	"github.com/gofhir/snapgen/pkg/fpcheck"
)

// SnapshotFetcher resolves a canonical URL to its fully-expanded elements,
// possibly by re-entering the orchestrator (for "constraint"-derivation
// profiles referenced from within another generation).
type SnapshotFetcher func(ctx context.Context, url string) ([]element.Element, error)

// Fetcher is constructed fresh per generation; its memoisation map is not
// shared across generations.
type Fetcher struct {
	SourcePackage   explorer.PackageRef
	CorePackage     explorer.PackageRef
	BaseNamespace   string // e.g. "http://hl7.org/fhir/StructureDefinition"
	Explorer        explorer.Explorer
	SnapshotFetcher SnapshotFetcher
	Logger          fsglog.Logger

	CheckConstraintExpressions bool
	Checker                    *fpcheck.Checker

	mu   sync.Mutex
	memo map[string][]element.Element
}

// New returns a ready-to-use Fetcher.
func New(sourcePkg, corePkg explorer.PackageRef, baseNamespace string, exp explorer.Explorer, snapshotFetcher SnapshotFetcher, logger fsglog.Logger) *Fetcher {
	if logger == nil {
		logger = fsglog.Nop
	}
	return &Fetcher{
		SourcePackage:   sourcePkg,
		CorePackage:     corePkg,
		BaseNamespace:   baseNamespace,
		Explorer:        exp,
		SnapshotFetcher: snapshotFetcher,
		Logger:          logger,
		memo:            make(map[string][]element.Element),
	}
}

func (f *Fetcher) lookup(key string) ([]element.Element, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.memo[key]
	return v, ok
}

func (f *Fetcher) store(key string, elements []element.Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memo[key] = elements
}

func (f *Fetcher) migrateOpts(sourceURL string) migrate.Options {
	return migrate.Options{
		SourceURL:                  sourceURL,
		BaseNamespace:              f.BaseNamespace,
		CheckConstraintExpressions: f.CheckConstraintExpressions,
		Checker:                    f.Checker,
		Logger:                     f.Logger,
	}
}

// GetBaseType resolves typeName in the core library package. "Element" and
// "Resource" accept any derivation; every other type requires
// derivation == specialization. Fails no-snapshot if the library has no
// snapshot for the type.
func (f *Fetcher) GetBaseType(ctx context.Context, typeName string) ([]element.Element, error) {
	key := "type:" + typeName
	if cached, ok := f.lookup(key); ok {
		return cached, nil
	}

	url := f.BaseNamespace + "/" + typeName
	sd, err := f.Explorer.ResolveMeta(ctx, explorer.MetaSelector{URL: url}, &f.CorePackage)
	if err != nil {
		return nil, fsgerrors.New(fsgerrors.KindNoSnapshot, typeName, f.CorePackage.String(), err)
	}
	if typeName != "Element" && typeName != "Resource" {
		if sd.Meta.Derivation != "specialization" {
			return nil, fsgerrors.New(fsgerrors.KindNoSnapshot, typeName, f.CorePackage.String(), nil)
		}
	}
	if len(sd.Snapshot) == 0 {
		return nil, fsgerrors.New(fsgerrors.KindNoSnapshot, typeName, f.CorePackage.String(), nil)
	}

	migrated := migrate.Migrate(sd.Snapshot, f.migrateOpts(sd.Meta.URL))
	f.store(key, migrated)
	return migrated, nil
}

// GetContentReference resolves a "#eid"-style internal reference: it
// fetches the base type named by the reference's first path segment and
// returns the sub-sequence rooted at eid.
func (f *Fetcher) GetContentReference(ctx context.Context, ref string) ([]element.Element, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, fsgerrors.New(fsgerrors.KindCannotExpand, ref, "", nil)
	}
	if cached, ok := f.lookup(ref); ok {
		return cached, nil
	}

	eid := ref[1:]
	first := eid
	if idx := strings.IndexByte(eid, '.'); idx >= 0 {
		first = eid[:idx]
	}

	base, err := f.GetBaseType(ctx, first)
	if err != nil {
		return nil, err
	}

	var out []element.Element
	for _, e := range base {
		id := e.ID()
		if id == eid || strings.HasPrefix(id, eid+".") {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fsgerrors.New(fsgerrors.KindCannotExpand, ref, "", nil)
	}
	f.store(ref, out)
	return out, nil
}

// GetByURL resolves a canonical URL via the package explorer, preferring
// SourcePackage. A specialization resource returns its stored (migrated)
// snapshot; a constraint resource is resolved through the injected
// SnapshotFetcher (possibly re-entering the orchestrator) and the result is
// migrated as if it were a base snapshot for a further derivation.
func (f *Fetcher) GetByURL(ctx context.Context, url string) ([]element.Element, error) {
	if cached, ok := f.lookup(url); ok {
		return cached, nil
	}

	sd, err := f.Explorer.ResolveMeta(ctx, explorer.MetaSelector{URL: url}, &f.SourcePackage)
	if err != nil {
		sd, err = f.Explorer.ResolveMeta(ctx, explorer.MetaSelector{URL: url}, nil)
		if err != nil {
			return nil, fsgerrors.New(fsgerrors.KindNotFound, url, "", err)
		}
	}

	var elements []element.Element
	switch sd.Meta.Derivation {
	case "", "specialization":
		elements = sd.Snapshot
	case "constraint":
		if f.SnapshotFetcher == nil {
			return nil, fsgerrors.New(fsgerrors.KindNoSnapshot, url, "", nil)
		}
		elements, err = f.SnapshotFetcher(ctx, url)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fsgerrors.New(fsgerrors.KindUnsupportedDerivation, url, "", nil)
	}

	migrated := migrate.Migrate(elements, f.migrateOpts(url))
	f.store(url, migrated)
	return migrated, nil
}
