package element

import (
	"strings"

	"github.com/gofhir/snapgen/pkg/pool"
)

// SplitID splits a dotted id into its segments, each possibly carrying a
// ":slicename" suffix.
func SplitID(id string) []string {
	if id == "" {
		return nil
	}
	return strings.Split(id, ".")
}

// SplitPath splits a dotted path into its segments. Paths never carry slice
// names.
func SplitPath(path string) []string {
	return SplitID(path)
}

// StripSliceNames removes any ":slicename" suffix from every segment of a
// dotted id, producing the corresponding path-shaped string.
func StripSliceNames(id string) string {
	segs := SplitID(id)
	for i, seg := range segs {
		if idx := strings.IndexByte(seg, ':'); idx >= 0 {
			segs[i] = seg[:idx]
		}
	}
	return pool.JoinPath(segs...)
}

// LastSegment returns the final dotted segment of an id or path.
func LastSegment(id string) string {
	if idx := strings.LastIndexByte(id, '.'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// SegmentSliceName returns the slice name carried by a single id segment
// (the part after the first ':'), and whether one was present.
func SegmentSliceName(seg string) (string, bool) {
	if idx := strings.IndexByte(seg, ':'); idx >= 0 {
		return seg[idx+1:], true
	}
	return "", false
}

// ParentID computes the parent id of a (possibly slice-suffixed) id per the
// tree builder's "id parent lookup" rule: if the last segment carries a
// ":slicename" suffix, the parent is the id with that suffix stripped from
// the final segment (the head-slice/container this slice attaches to
// directly); otherwise it is the ordinary parent of the last dotted segment.
//
// isSliceAttach reports which of the two cases applied.
func ParentID(id string) (parentID string, isSliceAttach bool) {
	lastDot := strings.LastIndexByte(id, '.')
	var prefix, last string
	if lastDot >= 0 {
		prefix, last = id[:lastDot+1], id[lastDot+1:]
	} else {
		prefix, last = "", id
	}
	if idx := strings.LastIndexByte(last, ':'); idx >= 0 {
		return prefix + last[:idx], true
	}
	if lastDot < 0 {
		return "", false
	}
	return id[:lastDot], false
}
