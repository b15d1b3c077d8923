// Package snapgen generates FHIR StructureDefinition snapshots from
// differentials.
//
// This package follows the same structural choices as the validator it
// descends from: concurrency via explicit mutexes around shared maps
// rather than goroutine fan-out, a sync.Pool-backed path builder for
// id/path joining, a generic LRU cache as the in-memory layer over the
// on-disk snapshot cache, and small composable interfaces (Explorer,
// Logger) at every collaborator boundary.
//
// # Quick Start
//
//	import (
//	    snapgen "github.com/gofhir/snapgen"
//	    "github.com/gofhir/snapgen/config"
//	    "github.com/gofhir/snapgen/engine"
//	    "github.com/gofhir/snapgen/explorer"
//	)
//
//	exp := explorer.NewRegistryExplorer("", []explorer.PackageRef{
//	    {ID: "hl7.fhir.us.core", Version: "6.1.0"},
//	})
//	e, err := engine.New(ctx, exp, config.WithFHIRVersion(snapgen.R4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resource, err := e.GetSnapshot(ctx, "http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient", nil)
//
// # Functional Options
//
//	e, err := engine.New(ctx, exp,
//	    config.WithCacheMode(snapcache.ModeEnsure),
//	    config.WithCoreVersionOverride(explorer.PackageRef{ID: "hl7.fhir.r4b.core", Version: "4.3.0"}),
//	)
//
// # Derivation Dispatch
//
// get_snapshot resolves one identifier (URL, id, or name) to its snapshot:
//
//   - specialization: the resource's own stored snapshot, returned as-is
//   - constraint: a snapshot generated by migrating the base definition's
//     snapshot (root extension strip, link rewrite, constraint source
//     stamping) and applying the profile's differential, cache-gated by
//     the snapshot cache coordinator
//
// # Architecture
//
//   - explorer.Explorer: the sole collaborator touching package storage
//   - element: the element-tree builder and id/path classifier
//   - migrate: prepares a base snapshot for reuse by a derivation
//   - branch: on-demand node expansion and slice synthesis (ExpandNode,
//     EnsureChild, EnsureBranch)
//   - diffapply: differential merge onto the migrated base tree
//   - snapcache: the cache coordinator (in-process single-flight plus a
//     cross-process lockfile protocol over the on-disk cache directory)
//   - baseversion: resolves which base-library version a profile's types
//     are checked against
//   - orchestrator: ties the above into the one get_snapshot entrypoint
package snapgen
