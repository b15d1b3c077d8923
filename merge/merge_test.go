package merge

import (
	"testing"

	"github.com/gofhir/snapgen/element"
)

func TestMergeIDMismatch(t *testing.T) {
	base := element.Element{"id": "A"}
	diff := element.Element{"id": "B"}
	if _, err := Merge(base, diff); err == nil {
		t.Fatal("expected id-mismatch error")
	}
}

func TestMergeOverwriteAndRetain(t *testing.T) {
	base := element.Element{"id": "Patient.name", "path": "Patient.name", "short": "old", "min": 0}
	diff := element.Element{"id": "Patient.name", "path": "IGNORED", "short": "new", "min": 1}
	out, err := Merge(base, diff)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.ID() != "Patient.name" || out.Path() != "Patient.name" {
		t.Errorf("id/path not retained from base: %v", out)
	}
	if out["short"] != "new" {
		t.Errorf("short not overwritten: %v", out["short"])
	}
	if out["min"] != 1 {
		t.Errorf("min not overwritten: %v", out["min"])
	}
}

func TestMergeConstraintConcat(t *testing.T) {
	base := element.Element{"id": "A", "constraint": []any{map[string]any{"key": "a1"}}}
	diff := element.Element{"id": "A", "constraint": []any{map[string]any{"key": "d1"}}}
	out, err := Merge(base, diff)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.Constraint()) != 2 {
		t.Fatalf("expected 2 constraints, got %d", len(out.Constraint()))
	}
}

func TestMergeIdempotenceOnIdentityDiff(t *testing.T) {
	e := element.Element{
		"id":         "A",
		"path":       "A",
		"constraint": []any{map[string]any{"key": "a1"}},
		"short":      "s",
	}
	out, err := Merge(e, e.Clone())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(out.Constraint()) != 2*len(e.Constraint()) {
		t.Errorf("constraint concat on identity diff: got %d want %d", len(out.Constraint()), 2*len(e.Constraint()))
	}
	if out["short"] != e["short"] {
		t.Errorf("short should be unchanged under identity diff")
	}
}

func TestMergeConditionUnion(t *testing.T) {
	base := element.Element{"id": "A", "condition": []any{"a", "b"}}
	diff := element.Element{"id": "A", "condition": []any{"b", "c"}}
	out, err := Merge(base, diff)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := out.Condition()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("condition = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("condition[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMergeSliceNameFixup(t *testing.T) {
	base := element.Element{"id": "Observation.value[x]", "sliceName": "stale"}
	diff := element.Element{"id": "Observation.value[x]"}
	out, err := Merge(base, diff)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, ok := out.SliceName(); ok {
		t.Errorf("expected sliceName cleared, got %v", out["sliceName"])
	}
}

func TestMergeSliceNameKeptWhenConsistent(t *testing.T) {
	base := element.Element{"id": "Observation.component:systolic", "sliceName": "systolic"}
	diff := element.Element{"id": "Observation.component:systolic"}
	out, err := Merge(base, diff)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if name, ok := out.SliceName(); !ok || name != "systolic" {
		t.Errorf("sliceName incorrectly cleared: %v", out["sliceName"])
	}
}
