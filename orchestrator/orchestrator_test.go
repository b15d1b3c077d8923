package orchestrator

import (
	"context"
	"testing"

	"github.com/gofhir/snapgen/baseversion"
	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/snapcache"
)

const testBaseNS = "http://hl7.org/fhir/StructureDefinition"

func elem(fields map[string]any) element.Element {
	out := make(element.Element, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

var corePkg = explorer.PackageRef{ID: "hl7.fhir.r4.core", Version: "4.0.1"}

func basePatient() []element.Element {
	return []element.Element{
		elem(map[string]any{"id": "Patient", "path": "Patient"}),
		elem(map[string]any{"id": "Patient.name", "path": "Patient.name", "base": map[string]any{"max": "*"}}),
		elem(map[string]any{"id": "Patient.name.family", "path": "Patient.name.family"}),
	}
}

func newTestOrchestrator(exp *explorer.MemoryExplorer, cacheRoot string) *Orchestrator {
	cache := snapcache.New(cacheRoot, "1.0.0", snapcache.ModeLazy, fsglog.Nop)
	baseResolver := baseversion.New(exp, corePkg, fsglog.Nop)
	return New(exp, cache, baseResolver, testBaseNS, fsglog.Nop)
}

func elementsOf(t *testing.T, out element.Resource) []element.Element {
	t.Helper()
	elems, err := out.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	return elems
}

func TestGetSnapshotSpecializationIsAnnotated(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "Patient", URL: "http://hl7.org/fhir/StructureDefinition/Patient", Name: "Patient",
			Derivation: "specialization", Package: corePkg, Filename: "StructureDefinition-Patient.json",
		},
		Snapshot: basePatient(),
	})

	o := newTestOrchestrator(exp, t.TempDir())
	out, err := o.GetSnapshot(context.Background(), "Patient", nil)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if rt, ok := out.ResourceType(); !ok || rt != "StructureDefinition" {
		t.Fatalf("expected resourceType StructureDefinition, got %v (ok=%v)", rt, ok)
	}
	ann, ok := out["__core_package"].(element.CorePackageAnnotation)
	if !ok || ann.ID != corePkg.ID {
		t.Fatalf("expected __core_package annotation with %s, got %v", corePkg.ID, out["__core_package"])
	}
	if o.Metrics.Snapshot().Specializations != 1 {
		t.Fatalf("expected specialization recorded")
	}
}

func TestGetSnapshotIdentifierFanOutByName(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "patient-id", URL: "http://hl7.org/fhir/StructureDefinition/Patient", Name: "Patient",
			Derivation: "specialization", Package: corePkg, Filename: "StructureDefinition-Patient.json",
		},
		Snapshot: basePatient(),
	})

	o := newTestOrchestrator(exp, t.TempDir())
	out, err := o.GetSnapshot(context.Background(), "Patient", nil)
	if err != nil {
		t.Fatalf("expected resolution to fall through to name lookup, got %v", err)
	}
	elems := elementsOf(t, out)
	if elems[0].ID() != "Patient" {
		t.Fatalf("unexpected root: %v", elems[0])
	}
}

func TestGetSnapshotNotFoundAccumulatesAttempts(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	o := newTestOrchestrator(exp, t.TempDir())
	_, err := o.GetSnapshot(context.Background(), "http://example.com/missing", nil)
	if !fsgerrors.Is(err, fsgerrors.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestGetSnapshotNoSnapshotOnEmptySpecialization(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{ID: "Empty", URL: "http://example.com/Empty", Derivation: "specialization", Package: corePkg},
	})
	o := newTestOrchestrator(exp, t.TempDir())
	_, err := o.GetSnapshot(context.Background(), "Empty", nil)
	if !fsgerrors.Is(err, fsgerrors.KindNoSnapshot) {
		t.Fatalf("expected no-snapshot, got %v", err)
	}
}

func TestGetSnapshotConstraintGeneratesAndCaches(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "Patient", URL: "http://hl7.org/fhir/StructureDefinition/Patient", Name: "Patient",
			Derivation: "specialization", Package: corePkg, Filename: "StructureDefinition-Patient.json",
		},
		Snapshot: basePatient(),
	})
	profilePkg := explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "my-patient", URL: "http://example.com/my-patient", Name: "MyPatient",
			Derivation: "constraint", BaseDefinition: "http://hl7.org/fhir/StructureDefinition/Patient",
			Package: profilePkg, Filename: "StructureDefinition-my-patient.json",
		},
		Differential: []element.Element{
			elem(map[string]any{"id": "Patient.name.family", "path": "Patient.name.family", "short": "Surname"}),
		},
	})

	root := t.TempDir()
	o := newTestOrchestrator(exp, root)

	out, err := o.GetSnapshot(context.Background(), "http://example.com/my-patient", nil)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if rt, ok := out.ResourceType(); !ok || rt != "StructureDefinition" {
		t.Fatalf("expected resourceType StructureDefinition, got %v (ok=%v)", rt, ok)
	}
	elems := elementsOf(t, out)
	found := false
	for _, e := range elems {
		if e.ID() == "Patient.name.family" {
			found = true
			if e["short"] != "Surname" {
				t.Fatalf("expected differential merged, got %v", e["short"])
			}
		}
	}
	if !found {
		t.Fatalf("expected Patient.name.family in generated snapshot: %v", elems)
	}
	ann, ok := out["__core_package"].(element.CorePackageAnnotation)
	if !ok || ann.ID != corePkg.ID {
		t.Fatalf("expected generated snapshot annotated with base package, got %v", out["__core_package"])
	}
	if o.Metrics.Snapshot().Constraints != 1 {
		t.Fatalf("expected constraint recorded")
	}

	key := snapcache.Key{Package: profilePkg, Filename: "StructureDefinition-my-patient.json"}
	cached, err := o.Cache.GetSnapshot(context.Background(), key, func(ctx context.Context) (element.Resource, error) {
		t.Fatalf("expected a cache hit, generate should not run again")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("expected cached snapshot readable, err=%v", err)
	}
	cachedElems, err := cached.Elements()
	if err != nil || len(cachedElems) == 0 {
		t.Fatalf("expected cached snapshot elements, err=%v", err)
	}
}

func TestGetSnapshotConstraintFallsBackToStoredSnapshotOnFailure(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	profilePkg := explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "my-patient", URL: "http://example.com/my-patient", Name: "MyPatient",
			Derivation: "constraint", BaseDefinition: "http://hl7.org/fhir/StructureDefinition/does-not-exist",
			Package: profilePkg, Filename: "StructureDefinition-my-patient.json",
		},
		Differential: []element.Element{
			elem(map[string]any{"id": "Patient.name.family", "path": "Patient.name.family"}),
		},
		Snapshot: basePatient(),
	})

	o := newTestOrchestrator(exp, t.TempDir())
	out, err := o.GetSnapshot(context.Background(), "http://example.com/my-patient", nil)
	if err != nil {
		t.Fatalf("expected fallback to stored snapshot, got error: %v", err)
	}
	elems := elementsOf(t, out)
	if elems[0].ID() != "Patient" {
		t.Fatalf("expected stored snapshot returned, got %v", elems[0])
	}
	if o.Metrics.Snapshot().Fallbacks != 1 {
		t.Fatalf("expected fallback recorded")
	}
}

func TestGetSnapshotConstraintNoDifferentialFails(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	profilePkg := explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "my-patient", URL: "http://example.com/my-patient",
			Derivation: "constraint", BaseDefinition: "http://hl7.org/fhir/StructureDefinition/Patient",
			Package: profilePkg, Filename: "StructureDefinition-my-patient.json",
		},
	})
	o := newTestOrchestrator(exp, t.TempDir())
	_, err := o.GetSnapshot(context.Background(), "http://example.com/my-patient", nil)
	if !fsgerrors.Is(err, fsgerrors.KindNoDifferential) {
		t.Fatalf("expected no-differential, got %v", err)
	}
}

func TestGetSnapshotSubTreeSelection(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "Patient", URL: "http://hl7.org/fhir/StructureDefinition/Patient", Name: "Patient",
			Derivation: "specialization", Package: corePkg, Filename: "StructureDefinition-Patient.json",
		},
		Snapshot: basePatient(),
	})
	o := newTestOrchestrator(exp, t.TempDir())
	out, err := o.GetSnapshot(context.Background(), "#Patient.name", nil)
	if err != nil {
		t.Fatalf("GetSnapshot sub-tree: %v", err)
	}
	elems := elementsOf(t, out)
	if len(elems) == 0 || elems[0].ID() != "Patient.name" {
		t.Fatalf("expected sub-tree rooted at Patient.name, got %v", elems)
	}
}

func TestGetSnapshotUnsupportedDerivation(t *testing.T) {
	exp := explorer.NewMemoryExplorer()
	exp.Load(&explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{ID: "Weird", URL: "http://example.com/Weird", Derivation: "logical", Package: corePkg},
	})
	o := newTestOrchestrator(exp, t.TempDir())
	_, err := o.GetSnapshot(context.Background(), "Weird", nil)
	if !fsgerrors.Is(err, fsgerrors.KindUnsupportedDerivation) {
		t.Fatalf("expected unsupported-derivation, got %v", err)
	}
}
