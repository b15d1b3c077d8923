// Package merge implements the single-element differential merge: a fixed
// set of per-field accumulation rules layered on top of "diff overwrites
// base".
package merge

import (
	"encoding/json"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/fsgerrors"
)

// retainedFromBase are copied from base and never taken from diff.
var retainedFromBase = map[string]bool{"id": true, "path": true}

// accumulated get special per-field treatment instead of plain overwrite.
var accumulated = map[string]bool{"constraint": true, "condition": true, "mapping": true}

// Merge combines a differential entry into its matching base element per
// §4.3: constraint concatenates, condition and mapping ordered-set-union,
// id/path are retained from base, everything else is diff-overwrites-base.
// Precondition: diff.ID() == base.ID(), else id-mismatch.
func Merge(base, diff element.Element) (element.Element, error) {
	if diff.ID() != base.ID() {
		return nil, fsgerrors.New(fsgerrors.KindIDMismatch, diff.ID(), "", nil)
	}

	out := base.Clone()

	out.SetConstraint(concatConstraint(base.Constraint(), diff.Constraint()))
	out.SetCondition(unionStrings(base.Condition(), diff.Condition()))
	out.SetMapping(unionMapping(base.Mapping(), diff.Mapping()))

	for k, v := range diff {
		if retainedFromBase[k] || accumulated[k] {
			continue
		}
		out[k] = v
	}

	fixupSliceName(out)
	return out, nil
}

func concatConstraint(base, diff []any) []any {
	if len(base) == 0 && len(diff) == 0 {
		return nil
	}
	out := make([]any, 0, len(base)+len(diff))
	out = append(out, base...)
	out = append(out, diff...)
	return out
}

func unionStrings(base, diff []string) []string {
	out := append([]string{}, base...)
	for _, d := range diff {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unionMapping(base, diff []any) []any {
	out := append([]any{}, base...)
	seen := make(map[string]bool, len(out))
	for _, m := range out {
		seen[canonicalJSON(m)] = true
	}
	for _, d := range diff {
		key := canonicalJSON(d)
		if !seen[key] {
			out = append(out, d)
			seen[key] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// canonicalJSON marshals v; encoding/json sorts map keys, giving a stable
// representation for key-wise equality comparisons.
func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// fixupSliceName clears a merged element's sliceName if it is not the
// suffix of its id after the last colon: a remnant left over from
// polymorphic shortcut merges that targeted this element's canonical id.
func fixupSliceName(e element.Element) {
	name, ok := e.SliceName()
	if !ok {
		return
	}
	id := e.ID()
	idx := strings.LastIndexByte(id, ':')
	if idx < 0 || id[idx+1:] != name {
		e.SetSliceName("")
	}
}
