package snapgen

import (
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/pkg/registry"
)

// FHIRVersion is one of the four canonical short forms §6's version table
// accepts.
type FHIRVersion string

const (
	STU3 FHIRVersion = "STU3"
	R4   FHIRVersion = "R4"
	R4B  FHIRVersion = "R4B"
	R5   FHIRVersion = "R5"
)

// String returns the canonical short form.
func (v FHIRVersion) String() string { return string(v) }

// IsValid reports whether v is one of the four canonical short forms.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case STU3, R4, R4B, R5:
		return true
	default:
		return false
	}
}

// acceptedVersions maps every spelling §6's table lists to its canonical
// short form.
var acceptedVersions = map[string]FHIRVersion{
	"3.0.2": STU3, "3.0": STU3, "R3": STU3, "STU3": STU3,
	"4.0.1": R4, "4.0": R4, "R4": R4,
	"4.3.0": R4B, "4.3": R4B, "R4B": R4B,
	"5.0.0": R5, "5.0": R5, "R5": R5,
}

// ResolveVersion normalises an input version identifier to its canonical
// short form, per §6's accepted-set table. An unrecognised input is a
// fatal config error (version-unknown).
func ResolveVersion(input string) (FHIRVersion, error) {
	canonical, ok := acceptedVersions[input]
	if !ok {
		return "", fsgerrors.New(fsgerrors.KindVersionUnknown, input, "", nil)
	}
	return canonical, nil
}

// BasePackage returns the base-library package reference for a canonical
// FHIR version, reusing pkg/registry.CorePackages as the single source of
// truth for package naming shared with the download client.
func (v FHIRVersion) BasePackage() explorer.PackageRef {
	ref, ok := registry.CorePackages[string(v)]
	if !ok {
		return explorer.PackageRef{}
	}
	return explorer.PackageRef{ID: ref.Name, Version: ref.Version}
}
