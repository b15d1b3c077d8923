package element

import (
	"strings"

	"github.com/gofhir/snapgen/pkg/decimalcard"
)

// Kind is the structural classification of a tree node.
type Kind string

const (
	KindElement   Kind = "element"
	KindArray     Kind = "array"
	KindPoly      Kind = "poly"
	KindSlice     Kind = "slice"
	KindResliced  Kind = "resliced"
	KindHeadSlice Kind = "headslice"
)

// Sliceable reports whether a kind admits a head-slice child and further
// slice children (array, poly, resliced).
func (k Kind) Sliceable() bool {
	switch k {
	case KindArray, KindPoly, KindResliced:
		return true
	default:
		return false
	}
}

// EmitsDefinition reports whether a node of this kind carries a definition
// that from_tree should emit.
func (k Kind) EmitsDefinition() bool {
	switch k {
	case KindElement, KindSlice, KindHeadSlice:
		return true
	default:
		return false
	}
}

// ClassifyKind classifies a single element per the fixed, semantic (not
// syntactic) precedence:
//
//  1. id ends with "[x]" => poly
//  2. sliceName present and slicing also present => resliced
//  3. sliceName present alone => slice
//  4. base.max is "*" or parses to >1 => array
//  5. otherwise => element
func ClassifyKind(e Element) Kind {
	if strings.HasSuffix(e.ID(), "[x]") {
		return KindPoly
	}
	_, hasSliceName := e.SliceName()
	hasSlicing := e.HasSlicing()
	if hasSliceName && hasSlicing {
		return KindResliced
	}
	if hasSliceName {
		return KindSlice
	}
	if max, ok := e.BaseMax(); ok && decimalcard.IsArray(max) {
		return KindArray
	}
	return KindElement
}
