// Package polymorphic resolves the monopoly-shortcut aliasing rule: a
// polymorphic element may be addressed by a differential through a
// type-specific alias such as "valueQuantity" instead of "value[x]", for
// any one of the types its head-slice declares.
package polymorphic

import (
	"strings"
	"unicode"

	"github.com/gofhir/snapgen/element"
)

// Shortcut is the result of a successful monopoly-shortcut match.
type Shortcut struct {
	RewrittenSegment string // e.g. "value[x]"
	Type             string // e.g. "Quantity"
}

// InitCap upper-cases the first rune of s, leaving the rest untouched. FHIR
// type-specific aliases are formed by title-casing the type code.
func InitCap(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Find scans parent's children for a poly node whose id is
// "<parentID>.<base>[x]" such that, for some type declared on its
// head-slice, "<base>" + InitCap(type) equals missing. Returns the first
// match, or ok=false.
func Find(parent *element.Node, parentID, missing string) (Shortcut, bool) {
	prefix := parentID + "."
	for _, child := range parent.Children {
		if child.Kind != element.KindPoly {
			continue
		}
		if !strings.HasPrefix(child.ID, prefix) {
			continue
		}
		rest := child.ID[len(prefix):]
		base, ok := strings.CutSuffix(rest, "[x]")
		if !ok || !strings.HasPrefix(missing, base) {
			continue
		}
		if len(child.Children) == 0 {
			continue
		}
		head := child.Children[0]
		if head.Definition == nil {
			continue
		}
		for _, tr := range head.Definition.Types() {
			if base+InitCap(tr.Code) == missing {
				return Shortcut{RewrittenSegment: base + "[x]", Type: tr.Code}, true
			}
		}
	}
	return Shortcut{}, false
}
