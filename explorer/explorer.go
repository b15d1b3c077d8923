// Package explorer specifies the "package explorer" collaborator: the
// external component that supplies raw differentials, base snapshots,
// resource metadata, and cache-path discovery. The core never touches the
// network or a package's on-disk contents directly; every such access goes
// through an Explorer.
package explorer

import (
	"context"

	"github.com/gofhir/snapgen/element"
)

// PackageRef identifies one version of a FHIR package.
type PackageRef struct {
	ID      string
	Version string
}

// String renders "id@version", the canonical form used in error messages.
// On-disk package and cache directories use "id#version" instead.
func (p PackageRef) String() string {
	if p.Version == "" {
		return p.ID
	}
	return p.ID + "@" + p.Version
}

// ResourceMeta is the metadata envelope the orchestrator fans identifiers
// out against, independent of whether the full resource has been loaded.
type ResourceMeta struct {
	ID             string
	URL            string
	Name           string
	Type           string
	Kind           string
	Derivation     string // "specialization", "constraint", or empty
	BaseDefinition string
	FHIRVersion    string
	Abstract       bool
	Package        PackageRef
	Filename       string
}

// StructureDefinition is a resolved resource's metadata plus its element
// sequences, decoded into the engine's opaque element model.
type StructureDefinition struct {
	Meta         ResourceMeta
	Differential []element.Element
	Snapshot     []element.Element

	// Resource carries the source resource's own top-level JSON fields
	// (resourceType, url, name, publisher, ... including snapshot and
	// differential in their original, unconverted form). It is the base a
	// returned or cached snapshot artifact is built from: a top-level copy
	// of this map (nested values shared) with "snapshot.element" replaced. Never mutated in place by
	// the engine; callers needing to stamp new fields must clone it first
	// (element.Resource.Clone).
	Resource map[string]any
}

// MetaSelector selects a single resource by exactly one of its fields.
type MetaSelector struct {
	ID       string
	URL      string
	Name     string
	Filename string
}

// LookupFilter selects a set of resources for context_packages-scoped
// listing (e.g. "every profile StructureDefinition in this package").
type LookupFilter struct {
	Kind    string // e.g. "resource", "complex-type", "logical"
	Type    string
	Package *PackageRef
}

// Manifest is a package's npm-style package.json, trimmed to the fields
// the base-version resolver and dependency walk need.
type Manifest struct {
	Name               string
	Version            string
	FHIRVersion        string
	Dependencies       map[string]string
	CompatibleVersions []string
}

// Explorer is the interface the core consumes. Every method may perform
// network or disk IO and therefore takes a context.
type Explorer interface {
	// ResolveByFilename loads a resource by its on-disk filename within
	// the given package (pkg may be the zero value to search the whole
	// context).
	ResolveByFilename(ctx context.Context, pkg PackageRef, filename string) (*StructureDefinition, error)

	// ResolveMeta resolves a resource by id, canonical URL, or name,
	// optionally scoped to pkgFilter. Exactly one field of sel should be
	// set; if more than one is set, ID takes precedence, then URL, then
	// Name, then Filename.
	ResolveMeta(ctx context.Context, sel MetaSelector, pkgFilter *PackageRef) (*StructureDefinition, error)

	// LookupMeta lists resource metadata matching filter across the
	// explorer's context packages.
	LookupMeta(ctx context.Context, filter LookupFilter) ([]ResourceMeta, error)

	// ContextPackages returns every package reference in the explorer's
	// configured context, in load order.
	ContextPackages(ctx context.Context) ([]PackageRef, error)

	// DirectDependencies returns pkg's immediate dependency package
	// references, as declared in its manifest.
	DirectDependencies(ctx context.Context, pkg PackageRef) ([]PackageRef, error)

	// PackageManifest returns pkg's parsed manifest.
	PackageManifest(ctx context.Context, pkg PackageRef) (*Manifest, error)

	// CachePath returns the root directory the snapshot cache coordinator
	// should use.
	CachePath(ctx context.Context) (string, error)
}
