// Package diffapply implements the top-level diff application loop (§4.7):
// given a migrated base snapshot and a differential in source order, it
// grows the working element sequence with branch.EnsureBranch and merges
// each differential entry in with merge.Merge.
package diffapply

import (
	"context"

	"github.com/gofhir/snapgen/branch"
	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/fetch"
	"github.com/gofhir/snapgen/fsgerrors"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/merge"
)

func fsgIllegalChild(id string) error {
	return fsgerrors.New(fsgerrors.KindIllegalChild, id, "", nil)
}

// Apply merges differential into base (already migrated), in source order,
// returning the resulting snapshot. The alias map installed by EnsureBranch
// and the monopoly-shortcut resolver is shared across the whole
// application, per §4.7's ordering guarantee: earlier diffs may install
// aliases that change how later diffs are resolved.
func Apply(ctx context.Context, base []element.Element, differential []element.Element, fetcher *fetch.Fetcher, logger fsglog.Logger) ([]element.Element, error) {
	if logger == nil {
		logger = fsglog.Nop
	}

	working := make([]element.Element, len(base))
	copy(working, base)
	if len(working) > 0 {
		working[0] = working[0].Clone()
		working[0].SetExtension(nil)
	}

	aliases := branch.NewAliasMap()

	for _, diff := range differential {
		id := diff.ID()

		if findByID(working, id) < 0 {
			var err error
			working, err = branch.EnsureBranch(ctx, working, id, fetcher, logger, aliases)
			if err != nil {
				return nil, err
			}
		}

		rewrittenID := aliases.RewriteID(id)
		rewrittenPath := aliases.RewritePath(diff.Path())

		rewritten := diff.Clone()
		rewritten.SetID(rewrittenID)
		rewritten.SetPath(rewrittenPath)

		idx := findByID(working, rewrittenID)
		if idx < 0 {
			return nil, fsgIllegalChild(rewrittenID)
		}

		merged, err := merge.Merge(working[idx], rewritten)
		if err != nil {
			return nil, err
		}
		working[idx] = merged
	}

	return working, nil
}

func findByID(elements []element.Element, id string) int {
	for i, e := range elements {
		if e.ID() == id {
			return i
		}
	}
	return -1
}
