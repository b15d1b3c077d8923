// Package branch implements the three tree-growing operations the diff
// applier drives: ExpandNode (pull in a node's base children on demand),
// EnsureChild (resolve or synthesise one child segment, including slicing
// and the monopoly-shortcut alias), and EnsureBranch (walk an id
// segment-by-segment, calling EnsureChild at each step).
package branch

import (
	"context"
	"strings"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/fetch"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/polymorphic"
)

// Alias is the canonical {id, path} pair an alias key resolves to.
type Alias struct {
	ID   string
	Path string
}

// AliasMap is the append-only, insertion-ordered alias table shared across
// a single diff application. Order matters: §4.7 resolves prefix rewrites
// by first-match-wins over the entries in the order they were recorded.
type AliasMap struct {
	order   []string
	entries map[string]Alias
}

// NewAliasMap returns an empty AliasMap.
func NewAliasMap() *AliasMap {
	return &AliasMap{entries: make(map[string]Alias)}
}

// Record appends (or overwrites, if the key repeats) a key -> alias entry.
func (m *AliasMap) Record(key string, alias Alias) {
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = alias
}

// ResolveID exactly-matches id against recorded keys, transitively, until
// no further mapping applies. Used by EnsureBranch's canonical_parent
// rewrite, which always rewrites a complete accumulated id.
func (m *AliasMap) ResolveID(id string) string {
	seen := make(map[string]bool)
	for {
		alias, ok := m.entries[id]
		if !ok || seen[id] {
			return id
		}
		seen[id] = true
		id = alias.ID
	}
}

// RewriteID rewrites id's prefix through the first recorded key that
// matches it as a prefix (exact or dotted), per §4.7b. A single pass: no
// further chaining once one alias has applied.
func (m *AliasMap) RewriteID(id string) string {
	for _, key := range m.order {
		if rewritten := element.RewriteOne(id, key, m.entries[key].ID); rewritten != id {
			return rewritten
		}
	}
	return id
}

// RewritePath rewrites path's prefix through the first recorded key whose
// slice-stripped form matches it as a prefix, substituting the alias's
// canonical path.
func (m *AliasMap) RewritePath(path string) string {
	for _, key := range m.order {
		alias := m.entries[key]
		oldPath := element.StripSliceNames(key)
		if rewritten := element.RewriteOne(path, oldPath, alias.Path); rewritten != path {
			return rewritten
		}
	}
	return path
}

func splice(elements []element.Element, start, end int, replacement []element.Element) []element.Element {
	out := make([]element.Element, 0, len(elements)-(end-start)+len(replacement))
	out = append(out, elements[:start]...)
	out = append(out, replacement...)
	out = append(out, elements[end:]...)
	return out
}

func findSlab(elements []element.Element, parentID string) (start, end int, err error) {
	prefix := parentID + "."
	for i, e := range elements {
		if e.ID() != parentID {
			continue
		}
		start = i
		end = i + 1
		for end < len(elements) && strings.HasPrefix(elements[end].ID(), prefix) {
			end++
		}
		return start, end, nil
	}
	return 0, 0, fsgerrors.New(fsgerrors.KindParentNotFound, parentID, "", nil)
}

func splitChildSegment(seg string) (name, slice string, hasSlice bool) {
	if idx := strings.IndexByte(seg, ':'); idx >= 0 {
		return seg[:idx], seg[idx+1:], true
	}
	return seg, "", false
}

func findChildByID(parent *element.Node, id string) *element.Node {
	for _, c := range parent.Children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ExpandNode pulls node's base children in from the definition fetcher.
// It refuses to operate on a sliceable node directly (the caller must pick
// the head-slice or a specific slice) and no-ops if already expanded.
func ExpandNode(ctx context.Context, node *element.Node, fetcher *fetch.Fetcher) error {
	if node.Kind.Sliceable() {
		return fsgerrors.New(fsgerrors.KindCannotExpand, node.ID, "", nil)
	}
	if len(node.Children) > 0 {
		return nil
	}
	if node.Definition == nil {
		return fsgerrors.New(fsgerrors.KindCannotExpand, node.ID, "", nil)
	}
	def := node.Definition

	var source []element.Element
	var err error
	switch {
	case hasContentReference(def):
		ref, _ := def.ContentReference()
		source, err = fetcher.GetContentReference(ctx, ref)
		if err != nil {
			return err
		}
		def.ClearContentReference()
	case len(def.Types()) > 1:
		source, err = fetcher.GetBaseType(ctx, "Element")
		if err != nil {
			return err
		}
	case len(def.Types()) == 1 && len(def.Types()[0].Profile) > 0:
		source, err = fetcher.GetByURL(ctx, def.Types()[0].Profile[0])
		if err != nil {
			return err
		}
	case len(def.Types()) == 1:
		source, err = fetcher.GetBaseType(ctx, def.Types()[0].Code)
		if err != nil {
			return err
		}
	default:
		return fsgerrors.New(fsgerrors.KindCannotExpand, node.ID, "", nil)
	}
	if len(source) == 0 {
		return fsgerrors.New(fsgerrors.KindCannotExpand, node.ID, "", nil)
	}

	rewritten := element.RewritePrefix(source, node.ID, source[0].ID())
	sub, err := element.ToTree(rewritten)
	if err != nil {
		return err
	}
	node.Children = sub.Children
	return nil
}

func hasContentReference(def element.Element) bool {
	_, ok := def.ContentReference()
	return ok
}

// EnsureChild resolves child_segment ("name" or "name:slice") under
// parentID within elements, expanding and/or synthesising as needed per
// §4.6. Returns the (possibly longer) element sequence.
func EnsureChild(ctx context.Context, elements []element.Element, parentID, childSegment string, fetcher *fetch.Fetcher, logger fsglog.Logger, aliases *AliasMap) ([]element.Element, error) {
	start, end, err := findSlab(elements, parentID)
	if err != nil {
		return nil, err
	}
	slab := append([]element.Element(nil), elements[start:end]...)
	root, err := element.ToSubtree(slab)
	if err != nil {
		return nil, err
	}

	work := root
	if root.Kind.Sliceable() {
		work = root.Children[0]
	}
	if len(work.Children) == 0 {
		if err := ExpandNode(ctx, work, fetcher); err != nil {
			return nil, err
		}
	}

	flat, err := element.FromTree(root)
	if err != nil {
		return nil, err
	}
	elements = splice(elements, start, end, flat)
	end = start + len(flat)

	name, slice, hasSlice := splitChildSegment(childSegment)

	parentForSearch, child := element.FindChildBySegment(root, name)
	if child == nil {
		shortcut, ok := polymorphic.Find(parentForSearch, parentID, name)
		if !ok {
			return nil, fsgerrors.New(fsgerrors.KindIllegalChild, parentID+"."+childSegment, "", nil)
		}
		polyNode := findChildByID(parentForSearch, parentID+"."+shortcut.RewrittenSegment)
		if polyNode == nil || len(polyNode.Children) == 0 {
			return nil, fsgerrors.New(fsgerrors.KindIllegalChild, parentID+"."+childSegment, "", nil)
		}
		aliases.Record(parentID+"."+name, Alias{ID: polyNode.ID, Path: polyNode.Path})
		head := polyNode.Children[0]
		head.Definition.SetTypes([]element.TypeRef{{Code: shortcut.Type}})
		return elements, nil
	}

	if !hasSlice {
		return elements, nil
	}

	if !child.Kind.Sliceable() {
		aliases.Record(child.ID+":"+slice, Alias{ID: child.ID, Path: child.Path})
		return elements, nil
	}

	for _, sliceNode := range child.Children[1:] {
		if sliceNode.SliceName == slice {
			return elements, nil
		}
	}

	if strings.HasSuffix(name, "[x]") {
		head := child.Children[0]
		types := head.Definition.Types()
		if len(types) == 1 && strings.EqualFold(types[0].Code, slice) {
			aliases.Record(child.ID+":"+slice, Alias{ID: child.ID, Path: child.Path})
			return elements, nil
		}
	}

	head := child.Children[0]
	headFlat, err := element.FromTree(head)
	if err != nil {
		return nil, err
	}
	cloned := make([]element.Element, len(headFlat))
	for i, e := range headFlat {
		cloned[i] = e.Clone()
	}
	newChildID := child.ID + ":" + slice
	rewritten := element.RewritePrefix(cloned, newChildID, child.ID)
	sliceRoot, err := element.ToTree(rewritten)
	if err != nil {
		return nil, err
	}
	sliceRoot.Kind = element.KindSlice
	delete(sliceRoot.Definition, "slicing")
	delete(sliceRoot.Definition, "mustSupport")
	sliceRoot.Definition.SetSliceName(slice)
	sliceRoot.SliceName = slice

	child.Children = append(child.Children, sliceRoot)

	flat2, err := element.FromTree(root)
	if err != nil {
		return nil, err
	}
	elements = splice(elements, start, end, flat2)
	return elements, nil
}

// EnsureBranch walks targetID's segments left-to-right, calling EnsureChild
// at each step so that by the time it returns, every prefix of targetID is
// present (directly or via an installed alias) in elements.
func EnsureBranch(ctx context.Context, elements []element.Element, targetID string, fetcher *fetch.Fetcher, logger fsglog.Logger, aliases *AliasMap) ([]element.Element, error) {
	segs := element.SplitID(targetID)
	if len(segs) == 0 || len(elements) == 0 || elements[0].ID() != segs[0] {
		return nil, fsgerrors.New(fsgerrors.KindRootMismatch, targetID, "", nil)
	}

	canonicalParent := segs[0]
	for _, seg := range segs[1:] {
		rewrittenParent := aliases.ResolveID(canonicalParent)
		var err error
		elements, err = EnsureChild(ctx, elements, rewrittenParent, seg, fetcher, logger, aliases)
		if err != nil {
			return nil, err
		}
		canonicalParent = canonicalParent + "." + seg
	}
	return elements, nil
}
