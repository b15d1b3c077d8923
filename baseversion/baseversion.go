// Package baseversion implements §4.10's five-step base-library resolution:
// given a profile's package, pick the base-library package to use for type
// lookups against the rest of the engine.
package baseversion

import (
	"context"
	"regexp"

	snapgen "github.com/gofhir/snapgen"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsglog"
)

// baseLibraryPattern matches a base-library package id across the version
// families §6 enumerates: hl7.fhir.r3.core, hl7.fhir.r4.core,
// hl7.fhir.r4b.core, hl7.fhir.r5.core, and future rNN/rNNb variants.
var baseLibraryPattern = regexp.MustCompile(`^hl7\.fhir\.r\d+[a-z]?\.core$`)

// IsBaseLibrary reports whether id matches the fixed base-library naming
// pattern.
func IsBaseLibrary(id string) bool {
	return baseLibraryPattern.MatchString(id)
}

// Normalize applies the one historical-misnumbering rewrite §4.10 names:
// hl7.fhir.r4.core@4.0.0 is renormalised to @4.0.1 regardless of how the
// version string otherwise arrived.
func Normalize(ref explorer.PackageRef) explorer.PackageRef {
	if ref.ID == "hl7.fhir.r4.core" && ref.Version == "4.0.0" {
		ref.Version = "4.0.1"
	}
	return ref
}

// Resolver resolves the base-library package for a profile's package,
// given the explorer's dependency graph and a configured default.
type Resolver struct {
	Explorer explorer.Explorer
	Default  explorer.PackageRef
	Logger   fsglog.Logger
}

// New builds a Resolver. logger may be nil (defaults to a no-op).
func New(exp explorer.Explorer, defaultPkg explorer.PackageRef, logger fsglog.Logger) *Resolver {
	if logger == nil {
		logger = fsglog.Nop
	}
	return &Resolver{Explorer: exp, Default: defaultPkg, Logger: logger}
}

// Resolve implements §4.10's five steps in order, returning the normalised
// base-library package to use for type lookups against profilePkg.
func (r *Resolver) Resolve(ctx context.Context, profilePkg explorer.PackageRef) explorer.PackageRef {
	// Step 1: the profile's own package is itself a base library.
	if IsBaseLibrary(profilePkg.ID) {
		return Normalize(profilePkg)
	}

	// Step 2: direct dependency set, filtered to base-library ids.
	deps, err := r.Explorer.DirectDependencies(ctx, profilePkg)
	if err == nil {
		var candidates []explorer.PackageRef
		for _, dep := range deps {
			if IsBaseLibrary(dep.ID) {
				candidates = append(candidates, dep)
			}
		}
		if len(candidates) == 1 {
			return Normalize(candidates[0])
		}
		if len(candidates) > 1 {
			// Step 5: ambiguous direct-dependency candidates fall back to
			// the configured default.
			r.Logger.Warn("baseversion: %d base-library candidates in %s's direct dependencies, falling back to default %s", len(candidates), profilePkg, r.Default)
			return Normalize(r.Default)
		}
	}

	// Step 3: manifest's declared compatibleVersions, translated via the
	// fixed version table.
	manifest, err := r.Explorer.PackageManifest(ctx, profilePkg)
	if err == nil && manifest != nil {
		for _, v := range manifest.CompatibleVersions {
			if canonical, verr := snapgen.ResolveVersion(v); verr == nil {
				return Normalize(canonical.BasePackage())
			}
		}
	}

	// Step 4: fall back to the engine's configured default.
	return Normalize(r.Default)
}
