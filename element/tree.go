package element

import (
	"github.com/gofhir/snapgen/fsgerrors"
)

// Node is one node of a materialised element tree.
type Node struct {
	ID           string
	Path         string
	IDSegments   []string
	PathSegments []string
	Kind         Kind
	Definition   Element // present on element/slice/headslice; nil on containers
	SliceName    string  // mirrors Definition["sliceName"] for slice/resliced
	Children     []*Node
}

func newNode(e Element, kind Kind) *Node {
	n := &Node{
		ID:           e.ID(),
		Path:         e.Path(),
		IDSegments:   SplitID(e.ID()),
		PathSegments: SplitPath(e.Path()),
		Kind:         kind,
	}
	if kind.EmitsDefinition() {
		n.Definition = e
	}
	if kind == KindSlice || kind == KindResliced {
		n.SliceName, _ = e.SliceName()
	}
	return n
}

// ToTree builds a tree from a flat, pre-order element sequence representing
// a whole document (a full snapshot): elements must be non-empty, and the
// first element becomes the root, forced to kind element per §3's "the
// root of any tree has kind element" invariant (true in practice, since a
// resource root is never itself sliceable).
func ToTree(elements []Element) (*Node, error) {
	return buildTree(elements, true)
}

// ToSubtree builds a tree from a flat, pre-order element sequence
// representing an arbitrary branch slab (elements[0] is some interior
// parent_id, not necessarily the document root): the root node is
// classified normally, so it may come back sliceable — callers (branch's
// EnsureChild) step into its head-slice when that happens, per §4.6.
func ToSubtree(elements []Element) (*Node, error) {
	return buildTree(elements, false)
}

// buildTree is the shared implementation behind ToTree/ToSubtree.
//
// For each subsequent element the parent id is computed per the id-parent
// lookup rule. If the element carries a slice-name last segment, the
// parent must already be a materialised sliceable node and the new node
// attaches directly to it as a slice. Otherwise the element attaches to the
// parent's head-slice if the parent is sliceable, or to the parent itself.
//
// Building fails with parent-not-found if the expected parent id has not
// yet been materialised.
func buildTree(elements []Element, forceRootElement bool) (*Node, error) {
	if len(elements) == 0 {
		return nil, fsgerrors.New(fsgerrors.KindParentNotFound, "", "", nil)
	}
	rootKind := ClassifyKind(elements[0])
	if forceRootElement {
		rootKind = KindElement
	}
	var root *Node
	if rootKind.Sliceable() {
		root = newNode(elements[0], rootKind)
		head := newNode(elements[0], KindHeadSlice)
		root.Children = append(root.Children, head)
	} else {
		root = newNode(elements[0], rootKind)
	}
	byID := map[string]*Node{root.ID: root}

	for _, e := range elements[1:] {
		id := e.ID()
		kind := ClassifyKind(e)
		parentID, sliceAttach := ParentID(id)

		parent, ok := byID[parentID]
		if !ok {
			return nil, fsgerrors.New(fsgerrors.KindParentNotFound, id, "", nil)
		}

		var target *Node
		if kind.Sliceable() {
			container := newNode(e, kind)
			head := newNode(e, KindHeadSlice)
			container.Children = append(container.Children, head)
			target = container
		} else {
			target = newNode(e, kind)
		}
		byID[id] = target

		switch {
		case sliceAttach:
			if !parent.Kind.Sliceable() {
				return nil, fsgerrors.New(fsgerrors.KindParentNotFound, id, "", nil)
			}
			parent.Children = append(parent.Children, target)
		case parent.Kind.Sliceable():
			head := parent.Children[0]
			head.Children = append(head.Children, target)
		default:
			parent.Children = append(parent.Children, target)
		}
	}
	return root, nil
}

// FromTree flattens a tree back into a pre-order element sequence, emitting
// only element/slice/headslice definitions. A node of one of those kinds
// with no definition is missing-definition, a bug rather than a user error.
func FromTree(root *Node) ([]Element, error) {
	var out []Element
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n.Kind.EmitsDefinition() {
			if n.Definition == nil {
				return fsgerrors.New(fsgerrors.KindMissingDefinition, n.ID, "", nil)
			}
			out = append(out, n.Definition)
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID searches the subtree rooted at n for a node with the given id.
func FindByID(n *Node, id string) *Node {
	if n.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// FindChildBySegment returns the direct child of n (stepping into n's
// head-slice first if n is sliceable) whose id ends in "."+name, along with
// the effective parent node the search was performed against.
func FindChildBySegment(n *Node, name string) (parent *Node, child *Node) {
	parent = n
	if n.Kind.Sliceable() {
		parent = n.Children[0]
	}
	for _, c := range parent.Children {
		if LastSegment(c.ID) == name || SliceBaseName(c.ID) == name {
			return parent, c
		}
	}
	return parent, nil
}

// SliceBaseName returns the portion of an id's last segment before any
// ":slicename" suffix.
func SliceBaseName(id string) string {
	last := LastSegment(id)
	if name, ok := SegmentSliceName(last); ok {
		return last[:len(last)-len(name)-1]
	}
	return last
}
