package registry

import (
	"context"
	"fmt"
)

// PackageRef represents a reference to a FHIR package.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the package reference as "name@version".
func (p PackageRef) String() string {
	if p.Version == "" || p.Version == "latest" {
		return p.Name
	}
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// CorePackages maps a canonical short FHIR version form (as resolved by
// baseversion) to its base-library core package. Kept here rather than in
// baseversion so the download client and the version resolver share one
// source of truth for the package name.
var CorePackages = map[string]PackageRef{
	"STU3": {Name: "hl7.fhir.r3.core", Version: "3.0.2"},
	"R4":   {Name: "hl7.fhir.r4.core", Version: "4.0.1"},
	"R4B":  {Name: "hl7.fhir.r4b.core", Version: "4.3.0"},
	"R5":   {Name: "hl7.fhir.r5.core", Version: "5.0.0"},
}

// Resolver downloads the base-library package for a configured FHIR
// version, used when the snapshot engine's cache doesn't yet have it on
// disk (pkg/loader reads straight from disk; Resolver is what puts it
// there in the first place).
type Resolver struct {
	client *Client
}

// NewResolver creates a new package resolver.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// ResolveCore downloads (or confirms present) the core package for the
// given canonical version, returning its on-disk path.
func (r *Resolver) ResolveCore(ctx context.Context, version string) (string, error) {
	ref, ok := CorePackages[version]
	if !ok {
		return "", fmt.Errorf("unsupported FHIR version: %s", version)
	}
	path, err := r.client.GetPackage(ctx, ref.Name, ref.Version)
	if err != nil {
		return "", fmt.Errorf("failed to get core package %s: %w", ref, err)
	}
	return path, nil
}

// ResolveAdditional downloads a list of extra packages (e.g. extension
// packs, IG dependencies not already on disk), returning their paths in
// the same order.
func (r *Resolver) ResolveAdditional(ctx context.Context, refs []PackageRef) ([]string, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		path, err := r.client.GetPackage(ctx, ref.Name, ref.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to get package %s: %w", ref, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
