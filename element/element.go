// Package element implements the element<->tree transform described for
// the snapshot derivation engine: classification of a single element into
// its structural kind, a typed-tree build/flatten pair, and prefix rewriting
// across both id and path fields.
//
// An Element is kept as a decoded JSON object (map[string]any) rather than a
// fixed Go struct. The source data carries fields the engine never looks at
// (mapping, condition, extension, vendor fields, ...) and the merge rules in
// package merge require those to survive untouched; a map preserves them for
// free the same way the teacher's resource-instance walker operates directly
// on map[string]any rather than a typed resource.
package element

import "fmt"

// Element is one ElementDefinition, decoded from JSON. Keys not understood by
// this package (mapping, condition, extension, vendor extensions, ...) are
// carried opaquely.
type Element map[string]any

// Clone returns a shallow copy of e. Nested maps/slices are not deep-copied;
// callers that mutate nested structures should clone those explicitly.
func (e Element) Clone() Element {
	if e == nil {
		return nil
	}
	out := make(Element, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func getString(e Element, key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ID returns the element's id field.
func (e Element) ID() string {
	s, _ := getString(e, "id")
	return s
}

// SetID sets the element's id field.
func (e Element) SetID(id string) {
	e["id"] = id
}

// Path returns the element's path field.
func (e Element) Path() string {
	s, _ := getString(e, "path")
	return s
}

// SetPath sets the element's path field.
func (e Element) SetPath(path string) {
	e["path"] = path
}

// SliceName returns the element's sliceName field and whether it was present
// and non-empty.
func (e Element) SliceName() (string, bool) {
	s, ok := getString(e, "sliceName")
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// SetSliceName sets or clears the sliceName field.
func (e Element) SetSliceName(name string) {
	if name == "" {
		delete(e, "sliceName")
		return
	}
	e["sliceName"] = name
}

// HasSlicing reports whether the element carries a slicing block.
func (e Element) HasSlicing() bool {
	v, ok := e["slicing"]
	if !ok {
		return false
	}
	m, ok := v.(map[string]any)
	return ok && m != nil
}

// Slicing returns the slicing block, or nil if absent.
func (e Element) Slicing() map[string]any {
	v, ok := e["slicing"]
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// BaseMax returns the base.max field used by the array-kind classification
// rule, and whether a base block with a max was present.
func (e Element) BaseMax() (string, bool) {
	v, ok := e["base"]
	if !ok {
		return "", false
	}
	base, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	return getString(base, "max")
}

// TypeRef mirrors one entry of the element's type array.
type TypeRef struct {
	Code          string
	Profile       []string
	TargetProfile []string
	Extension     []any
}

// Types decodes the element's type array, if present.
func (e Element) Types() []TypeRef {
	v, ok := e["type"]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]TypeRef, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tr := TypeRef{}
		tr.Code, _ = getString(m, "code")
		tr.Profile = stringSlice(m["profile"])
		tr.TargetProfile = stringSlice(m["targetProfile"])
		if ext, ok := m["extension"].([]any); ok {
			tr.Extension = ext
		}
		out = append(out, tr)
	}
	return out
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SetTypes overwrites the element's type array from the given refs.
func (e Element) SetTypes(types []TypeRef) {
	arr := make([]any, 0, len(types))
	for _, tr := range types {
		m := map[string]any{"code": tr.Code}
		if len(tr.Profile) > 0 {
			m["profile"] = toAnySlice(tr.Profile)
		}
		if len(tr.TargetProfile) > 0 {
			m["targetProfile"] = toAnySlice(tr.TargetProfile)
		}
		if tr.Extension != nil {
			m["extension"] = tr.Extension
		}
		arr = append(arr, m)
	}
	e["type"] = arr
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// ContentReference returns the element's contentReference field.
func (e Element) ContentReference() (string, bool) {
	s, ok := getString(e, "contentReference")
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ClearContentReference removes the contentReference field.
func (e Element) ClearContentReference() {
	delete(e, "contentReference")
}

// Constraint returns the element's constraint array (each entry a
// map[string]any), or nil.
func (e Element) Constraint() []any {
	arr, _ := e["constraint"].([]any)
	return arr
}

// SetConstraint overwrites the constraint array.
func (e Element) SetConstraint(c []any) {
	if len(c) == 0 {
		delete(e, "constraint")
		return
	}
	e["constraint"] = c
}

// Extension returns the element's extension array, or nil.
func (e Element) Extension() []any {
	arr, _ := e["extension"].([]any)
	return arr
}

// SetExtension overwrites (or clears, if empty) the extension array.
func (e Element) SetExtension(ext []any) {
	if len(ext) == 0 {
		delete(e, "extension")
		return
	}
	e["extension"] = ext
}

// Condition returns the element's condition array of strings.
func (e Element) Condition() []string {
	return stringSlice(e["condition"])
}

// SetCondition overwrites the condition array.
func (e Element) SetCondition(c []string) {
	if len(c) == 0 {
		delete(e, "condition")
		return
	}
	e["condition"] = toAnySlice(c)
}

// Mapping returns the element's mapping array (each a map[string]any).
func (e Element) Mapping() []any {
	arr, _ := e["mapping"].([]any)
	return arr
}

// SetMapping overwrites the mapping array.
func (e Element) SetMapping(m []any) {
	if len(m) == 0 {
		delete(e, "mapping")
		return
	}
	e["mapping"] = m
}

// MarkdownFields lists the element fields the migrator rewrites relative
// links in.
var MarkdownFields = []string{"definition", "comment", "requirements", "meaningWhenMissing"}

// String implements fmt.Stringer for debugging/log output.
func (e Element) String() string {
	return fmt.Sprintf("Element{id=%q, path=%q}", e.ID(), e.Path())
}
