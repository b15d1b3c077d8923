// Package migrate prepares a base snapshot's elements for reuse as the
// parent of a derivation: it drops non-inheritable structural metadata from
// the root, rewrites relative documentation links to absolute ones, and
// stamps a constraint source on every constraint that doesn't carry one
// already.
package migrate

import (
	"regexp"
	"strings"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/pkg/fpcheck"
)

// NonInheritableExtensions is the fixed block-list of root-element extension
// names the migrator strips, each matched as the last segment of a URL under
// the base namespace: structural publishing metadata that describes the base
// resource itself, not something a derived profile should inherit.
var NonInheritableExtensions = map[string]bool{
	"structuredefinition-fmm":                      true,
	"structuredefinition-fmm-no-warnings":          true,
	"structuredefinition-hierarchy":                true,
	"structuredefinition-interface":                true,
	"structuredefinition-normative-version":        true,
	"structuredefinition-applicable-version":       true,
	"structuredefinition-category":                 true,
	"structuredefinition-codegen-super":            true,
	"structuredefinition-security-category":        true,
	"structuredefinition-standards-status":         true,
	"structuredefinition-summary":                  true,
	"structuredefinition-wg":                       true,
	"replaces":                                     true,
	"resource-approvalDate":                        true,
	"resource-effectivePeriod":                      true,
	"resource-lastReviewDate":                       true,
}

var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
var hasScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)

// Options configures a single migration pass.
type Options struct {
	// SourceURL is the canonical URL of the snapshot being migrated; it is
	// stamped onto constraint entries that lack a source.
	SourceURL string
	// BaseNamespace, if SourceURL begins with it, enables the relative
	// markdown link rewrite.
	BaseNamespace string
	// CheckConstraintExpressions turns on the advisory FHIRPath syntax
	// check; off by default. Checker must be non-nil when true.
	CheckConstraintExpressions bool
	Checker                    *fpcheck.Checker
	Logger                     fsglog.Logger
}

// Migrate returns a migrated copy of elements; the input is left untouched
// so a cached base snapshot can be migrated repeatedly for different
// derivations without cross-contamination.
func Migrate(elements []element.Element, opts Options) []element.Element {
	out := make([]element.Element, len(elements))
	for i, e := range elements {
		out[i] = e.Clone()
	}

	if len(out) > 0 {
		stripRootExtensions(out[0], opts.BaseNamespace)
	}

	namespaced := opts.BaseNamespace != "" && strings.HasPrefix(opts.SourceURL, opts.BaseNamespace)
	for _, e := range out {
		if namespaced {
			rewriteMarkdownLinks(e, opts.BaseNamespace)
		}
		stampConstraintSources(e, opts.SourceURL)
		if opts.CheckConstraintExpressions && opts.Checker != nil {
			checkConstraints(e, opts)
		}
	}
	return out
}

func stripRootExtensions(root element.Element, baseNamespace string) {
	ext := root.Extension()
	if ext == nil || baseNamespace == "" {
		return
	}
	prefix := strings.TrimSuffix(baseNamespace, "/") + "/"
	kept := make([]any, 0, len(ext))
	for _, item := range ext {
		m, ok := item.(map[string]any)
		if !ok {
			kept = append(kept, item)
			continue
		}
		url, _ := m["url"].(string)
		if name, ok := strings.CutPrefix(url, prefix); ok && NonInheritableExtensions[name] {
			continue
		}
		kept = append(kept, item)
	}
	root.SetExtension(kept)
}

func rewriteMarkdownLinks(e element.Element, baseNamespace string) {
	for _, field := range element.MarkdownFields {
		v, ok := e[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		rewritten := markdownLink.ReplaceAllStringFunc(s, func(match string) string {
			sub := markdownLink.FindStringSubmatch(match)
			text, target := sub[1], sub[2]
			if hasScheme.MatchString(target) {
				return match
			}
			return "[" + text + "](" + strings.TrimSuffix(baseNamespace, "/") + "/" + target + ")"
		})
		if rewritten != s {
			e[field] = rewritten
		}
	}
}

func stampConstraintSources(e element.Element, sourceURL string) {
	constraints := e.Constraint()
	if len(constraints) == 0 {
		return
	}
	changed := false
	out := make([]any, len(constraints))
	for i, c := range constraints {
		m, ok := c.(map[string]any)
		if !ok {
			out[i] = c
			continue
		}
		if _, hasSource := m["source"]; hasSource {
			out[i] = c
			continue
		}
		clone := make(map[string]any, len(m)+1)
		for k, v := range m {
			clone[k] = v
		}
		clone["source"] = sourceURL
		out[i] = clone
		changed = true
	}
	if changed {
		e.SetConstraint(out)
	}
}

func checkConstraints(e element.Element, opts Options) {
	for _, c := range e.Constraint() {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		expr, _ := m["expression"].(string)
		if expr == "" {
			continue
		}
		if err := opts.Checker.Check(expr); err != nil {
			key, _ := m["key"].(string)
			opts.Logger.Warn("constraint %s on %s has an invalid FHIRPath expression %q: %v", key, e.ID(), expr, err)
		}
	}
}
