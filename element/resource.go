package element

import "fmt"

// Resource is a full FHIR resource object carrying a snapshot: a copy of
// the source StructureDefinition's top-level fields with snapshot.element
// replaced by the generated or stored element sequence. This, not a bare
// element sequence, is what get_snapshot returns and what the snapshot
// cache stores on disk. The copy is one level deep: nested objects and
// arrays other than snapshot are shared with the source, not copied.
type Resource map[string]any

// NewResource builds a Resource from source's top-level fields (left
// unmodified) and the given snapshot element sequence. source is expected
// to already carry "resourceType": "StructureDefinition"; callers that
// can't guarantee that (e.g. assembling a resource from scratch) should set
// it explicitly first.
func NewResource(source map[string]any, snapshot []Element) Resource {
	out := make(Resource, len(source)+2)
	for k, v := range source {
		out[k] = v
	}
	elems := make([]any, len(snapshot))
	for i, e := range snapshot {
		elems[i] = map[string]any(e)
	}
	out["snapshot"] = map[string]any{"element": elems}
	if _, ok := out["resourceType"]; !ok {
		out["resourceType"] = "StructureDefinition"
	}
	return out
}

// ResourceType returns the resource's resourceType field and whether it was
// present as a non-empty string.
func (r Resource) ResourceType() (string, bool) {
	s, ok := r["resourceType"].(string)
	return s, ok && s != ""
}

// Elements extracts the resource's snapshot.element sequence.
func (r Resource) Elements() ([]Element, error) {
	snap, ok := r["snapshot"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("element: resource has no snapshot object")
	}
	arr, ok := snap["element"].([]any)
	if !ok {
		return nil, fmt.Errorf("element: resource snapshot has no element array")
	}
	out := make([]Element, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element: resource snapshot element entry is not an object")
		}
		out = append(out, Element(m))
	}
	return out, nil
}

// Clone returns a shallow top-level copy of r, safe for a caller to stamp
// additional top-level fields onto (e.g. __core_package) without mutating
// the original.
func (r Resource) Clone() Resource {
	out := make(Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CorePackageAnnotation is the `__core_package` field §6 attaches to every
// returned snapshot, identifying the base-library package used for type
// resolution.
type CorePackageAnnotation struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// SetCorePackage stamps the __core_package annotation at the resource's top
// level.
func (r Resource) SetCorePackage(id, version string) {
	r["__core_package"] = CorePackageAnnotation{ID: id, Version: version}
}
