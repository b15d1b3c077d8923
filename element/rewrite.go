package element

import "strings"

// RewriteOne swaps oldPrefix for newPrefix at the front of s, matching
// either an exact match or oldPrefix followed by '.'. Exported for callers
// (branch's alias-map rewriting) that need the same single-string logic
// RewritePrefix applies across a whole element sequence.
func RewriteOne(s, oldPrefix, newPrefix string) string {
	return rewriteOne(s, oldPrefix, newPrefix)
}

// rewriteOne swaps oldPrefix for newPrefix at the front of s, matching
// either an exact prefix or a prefix followed by '.'. Everything else is
// copied unchanged.
func rewriteOne(s, oldPrefix, newPrefix string) string {
	if s == oldPrefix {
		return newPrefix
	}
	if strings.HasPrefix(s, oldPrefix+".") {
		return newPrefix + s[len(oldPrefix):]
	}
	return s
}

// RewritePrefix retargets the id/path prefix of every element in the
// sequence: ids rewrite old_prefix -> new_prefix verbatim (slice names
// survive, since they live inside the untouched suffix); paths rewrite the
// same prefixes with slice names stripped from both before comparison. A
// new sequence of cloned elements is returned; the input is untouched.
func RewritePrefix(elements []Element, newPrefix, oldPrefix string) []Element {
	oldPath := StripSliceNames(oldPrefix)
	newPath := StripSliceNames(newPrefix)

	out := make([]Element, len(elements))
	for i, e := range elements {
		clone := e.Clone()
		clone.SetID(rewriteOne(e.ID(), oldPrefix, newPrefix))
		clone.SetPath(rewriteOne(e.Path(), oldPath, newPath))
		out[i] = clone
	}
	return out
}

// RewriteNodePrefix applies RewritePrefix to a tree: it flattens, rewrites,
// and rebuilds, so the result satisfies the same tree invariants as any
// other ToTree output. Returns a new tree; the input is untouched.
func RewriteNodePrefix(root *Node, newPrefix, oldPrefix string) (*Node, error) {
	flat, err := FromTree(root)
	if err != nil {
		return nil, err
	}
	rewritten := RewritePrefix(flat, newPrefix, oldPrefix)
	return ToTree(rewritten)
}
