package element

import "testing"

func TestRewritePrefixIDAndPath(t *testing.T) {
	elements := []Element{
		{"id": "Quantity", "path": "Quantity"},
		{"id": "Quantity.value", "path": "Quantity.value"},
		{"id": "Quantity.unit", "path": "Quantity.unit"},
	}
	out := RewritePrefix(elements, "Observation.valueQuantity", "Quantity")
	want := []string{"Observation.valueQuantity", "Observation.valueQuantity.value", "Observation.valueQuantity.unit"}
	for i, e := range out {
		if e.ID() != want[i] {
			t.Errorf("id[%d] = %q, want %q", i, e.ID(), want[i])
		}
		if e.Path() != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, e.Path(), want[i])
		}
	}
}

func TestRewritePrefixPathStripsSliceNames(t *testing.T) {
	elements := []Element{
		{"id": "Patient.name:official", "path": "Patient.name"},
		{"id": "Patient.name:official.given", "path": "Patient.name.given"},
	}
	out := RewritePrefix(elements, "Patient.contact.name:official", "Patient.name:official")
	if out[0].ID() != "Patient.contact.name:official" {
		t.Errorf("id = %q", out[0].ID())
	}
	if out[0].Path() != "Patient.contact.name" {
		t.Errorf("path = %q", out[0].Path())
	}
	if out[1].ID() != "Patient.contact.name:official.given" {
		t.Errorf("child id = %q", out[1].ID())
	}
	if out[1].Path() != "Patient.contact.name.given" {
		t.Errorf("child path = %q", out[1].Path())
	}
}

func TestRewritePrefixCommutativity(t *testing.T) {
	elements := []Element{
		{"id": "A", "path": "A"},
		{"id": "A.b", "path": "A.b"},
	}
	ab := RewritePrefix(elements, "B", "A")
	bc := RewritePrefix(ab, "C", "B")
	direct := RewritePrefix(elements, "C", "A")
	for i := range direct {
		if bc[i].ID() != direct[i].ID() || bc[i].Path() != direct[i].Path() {
			t.Errorf("commutativity broken at %d: got id=%q path=%q, want id=%q path=%q",
				i, bc[i].ID(), bc[i].Path(), direct[i].ID(), direct[i].Path())
		}
	}
}

func TestRewritePrefixLeavesUnrelatedUntouched(t *testing.T) {
	elements := []Element{{"id": "Other.thing", "path": "Other.thing"}}
	out := RewritePrefix(elements, "New", "Old")
	if out[0].ID() != "Other.thing" {
		t.Errorf("unrelated id changed: %q", out[0].ID())
	}
}
