package branch

import (
	"context"
	"testing"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fetch"
	"github.com/gofhir/snapgen/fsglog"
)

const testBaseNS = "http://hl7.org/fhir/StructureDefinition"

func elem(fields map[string]any) element.Element {
	out := make(element.Element, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func newTestFetcher() *fetch.Fetcher {
	exp := explorer.NewMemoryExplorer()

	humanName := &explorer.StructureDefinition{
		Meta: explorer.ResourceMeta{
			ID: "HumanName", URL: testBaseNS + "/HumanName", Type: "HumanName",
			Kind: "complex-type", Derivation: "specialization",
			Package: explorer.PackageRef{ID: "hl7.fhir.r4.core", Version: "4.0.1"},
		},
		Snapshot: []element.Element{
			elem(map[string]any{"id": "HumanName", "path": "HumanName"}),
			elem(map[string]any{"id": "HumanName.family", "path": "HumanName.family"}),
			elem(map[string]any{"id": "HumanName.given", "path": "HumanName.given", "base": map[string]any{"max": "*"}}),
		},
	}
	exp.Load(humanName)

	core := explorer.PackageRef{ID: "hl7.fhir.r4.core", Version: "4.0.1"}
	source := explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}
	return fetch.New(source, core, testBaseNS, exp, nil, nil)
}

func TestExpandNodeSingleType(t *testing.T) {
	name := elem(map[string]any{
		"id": "Patient.name", "path": "Patient.name",
		"type": []any{map[string]any{"code": "HumanName"}},
	})
	node, err := element.ToSubtree([]element.Element{name})
	if err != nil {
		t.Fatalf("ToSubtree: %v", err)
	}

	if err := ExpandNode(context.Background(), node, newTestFetcher()); err != nil {
		t.Fatalf("ExpandNode: %v", err)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected 2 children (family, given), got %d", len(node.Children))
	}
	if node.Children[0].ID != "Patient.name.family" {
		t.Fatalf("expected Patient.name.family first, got %q", node.Children[0].ID)
	}
	if node.Children[1].ID != "Patient.name.given" {
		t.Fatalf("expected Patient.name.given second, got %q", node.Children[1].ID)
	}
}

func TestExpandNodeRefusesSliceable(t *testing.T) {
	arrayElem := elem(map[string]any{
		"id": "Patient.name", "path": "Patient.name",
		"base": map[string]any{"max": "*"},
	})
	node, err := element.ToSubtree([]element.Element{arrayElem})
	if err != nil {
		t.Fatalf("ToSubtree: %v", err)
	}
	if err := ExpandNode(context.Background(), node, newTestFetcher()); err == nil {
		t.Fatalf("expected cannot-expand error for sliceable node")
	}
}

func patientNameArrayElements() []element.Element {
	return []element.Element{
		elem(map[string]any{"id": "Patient", "path": "Patient"}),
		elem(map[string]any{"id": "Patient.name", "path": "Patient.name", "base": map[string]any{"max": "*"}}),
		elem(map[string]any{"id": "Patient.name.family", "path": "Patient.name.family"}),
		elem(map[string]any{"id": "Patient.name.given", "path": "Patient.name.given", "base": map[string]any{"max": "*"}}),
	}
}

func TestEnsureChildSynthesizesSlice(t *testing.T) {
	elements := patientNameArrayElements()
	aliases := NewAliasMap()

	out, err := EnsureChild(context.Background(), elements, "Patient", "name:official", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureChild: %v", err)
	}

	var ids []string
	for _, e := range out {
		ids = append(ids, e.ID())
	}
	want := []string{
		"Patient", "Patient.name", "Patient.name.family", "Patient.name.given",
		"Patient.name:official", "Patient.name:official.family", "Patient.name:official.given",
	}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("position %d: got %q want %q (full: %v)", i, ids[i], want[i], ids)
		}
	}

	var sliceRoot element.Element
	for _, e := range out {
		if e.ID() == "Patient.name:official" {
			sliceRoot = e
		}
	}
	if sliceRoot == nil {
		t.Fatalf("synthesized slice root not found")
	}
	if name, ok := sliceRoot.SliceName(); !ok || name != "official" {
		t.Fatalf("expected sliceName=official, got %q (%v)", name, ok)
	}
	if sliceRoot.HasSlicing() {
		t.Fatalf("expected slicing dropped from synthesized slice")
	}
}

func TestEnsureChildIdempotentWhenSliceExists(t *testing.T) {
	elements := patientNameArrayElements()
	aliases := NewAliasMap()

	first, err := EnsureChild(context.Background(), elements, "Patient", "name:official", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureChild (first): %v", err)
	}
	second, err := EnsureChild(context.Background(), first, "Patient", "name:official", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureChild (second): %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected no duplicate slice synthesis: got %d then %d elements", len(first), len(second))
	}
}

func observationValueXElements() []element.Element {
	return []element.Element{
		elem(map[string]any{"id": "Observation", "path": "Observation"}),
		elem(map[string]any{
			"id": "Observation.value[x]", "path": "Observation.value[x]",
			"type": []any{
				map[string]any{"code": "Quantity"},
				map[string]any{"code": "string"},
			},
		}),
	}
}

func TestEnsureChildMonopolyShortcut(t *testing.T) {
	elements := observationValueXElements()
	aliases := NewAliasMap()

	out, err := EnsureChild(context.Background(), elements, "Observation", "valueQuantity", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureChild: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected no new elements from a monopoly shortcut, got %d", len(out))
	}

	alias, ok := aliases.entries["Observation.valueQuantity"]
	if !ok {
		t.Fatalf("expected alias recorded for Observation.valueQuantity")
	}
	if alias.ID != "Observation.value[x]" {
		t.Fatalf("expected alias to canonical id Observation.value[x], got %q", alias.ID)
	}

	for _, e := range out {
		if e.ID() == "Observation.value[x]" {
			types := e.Types()
			if len(types) != 1 || types[0].Code != "Quantity" {
				t.Fatalf("expected virtual diff narrowing type to Quantity, got %+v", types)
			}
		}
	}
}

func TestEnsureChildIllegalChild(t *testing.T) {
	elements := patientNameArrayElements()
	aliases := NewAliasMap()
	_, err := EnsureChild(context.Background(), elements, "Patient", "nonexistent", newTestFetcher(), fsglog.Nop, aliases)
	if err == nil {
		t.Fatalf("expected illegal-child error")
	}
}

func TestEnsureBranchWalksSegments(t *testing.T) {
	elements := patientNameArrayElements()
	aliases := NewAliasMap()

	out, err := EnsureBranch(context.Background(), elements, "Patient.name:official.family", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureBranch: %v", err)
	}

	found := false
	for _, e := range out {
		if e.ID() == "Patient.name:official.family" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Patient.name:official.family to be present after EnsureBranch")
	}
}

func TestEnsureBranchRootMismatch(t *testing.T) {
	elements := patientNameArrayElements()
	aliases := NewAliasMap()
	_, err := EnsureBranch(context.Background(), elements, "Observation.status", newTestFetcher(), fsglog.Nop, aliases)
	if err == nil {
		t.Fatalf("expected root-mismatch error")
	}
}

func TestEnsureChildNonSliceableChildAlias(t *testing.T) {
	elements := []element.Element{
		elem(map[string]any{"id": "Patient", "path": "Patient"}),
		elem(map[string]any{"id": "Patient.birthDate", "path": "Patient.birthDate"}),
	}
	aliases := NewAliasMap()

	out, err := EnsureChild(context.Background(), elements, "Patient", "birthDate:exact", newTestFetcher(), fsglog.Nop, aliases)
	if err != nil {
		t.Fatalf("EnsureChild: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected no structural change for a scalar alias, got %d elements", len(out))
	}
	alias, ok := aliases.entries["Patient.birthDate:exact"]
	if !ok {
		t.Fatalf("expected alias recorded for Patient.birthDate:exact")
	}
	if alias.ID != "Patient.birthDate" {
		t.Fatalf("expected alias to Patient.birthDate, got %q", alias.ID)
	}
}

func TestAliasMapRewriteID(t *testing.T) {
	aliases := NewAliasMap()
	aliases.Record("Patient.name", Alias{ID: "Patient.name:official", Path: "Patient.name"})
	got := aliases.RewriteID("Patient.name.family")
	if got != "Patient.name:official.family" {
		t.Fatalf("got %q", got)
	}
}
