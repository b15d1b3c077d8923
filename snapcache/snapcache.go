// Package snapcache implements the snapshot cache coordinator (§4.8): a
// disk-backed, cross-process-safe store of generated profile snapshots,
// keyed by (package id, package version, filename), with four operating
// modes and an in-process + cross-process single-flight protocol so
// concurrent callers generating the same snapshot converge on one result.
package snapcache

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/pkg/cache"
)

// memCacheCapacity bounds the in-process fast layer in front of disk reads.
// A miss here always falls through to disk, so this only trims repeat-read
// latency within one process; it never changes correctness.
const memCacheCapacity = 512

// Mode selects one of the four cache behaviours from §4.8's table.
type Mode string

const (
	ModeLazy    Mode = "lazy"
	ModeEnsure  Mode = "ensure"
	ModeRebuild Mode = "rebuild"
	ModeNone    Mode = "none"
)

// GenerateFunc produces a fresh snapshot for a cache miss.
type GenerateFunc func(ctx context.Context) (element.Resource, error)

// Coordinator is the snapshot cache for one engine instance. It is safe for
// concurrent use by multiple goroutines in one process; cross-process
// safety is provided by the lockfile protocol in lock.go.
type Coordinator struct {
	Root          string
	EngineVersion string
	Mode          Mode
	Logger        fsglog.Logger
	Metrics       *Metrics

	hostname string
	mem      *cache.Cache[string, element.Resource]

	mu       sync.Mutex
	inflight map[string]*pendingCall
}

type pendingCall struct {
	done   chan struct{}
	result element.Resource
	err    error
}

// New builds a Coordinator. mode defaults to ModeLazy if empty.
func New(root, engineVersion string, mode Mode, logger fsglog.Logger) *Coordinator {
	if mode == "" {
		mode = ModeLazy
	}
	if logger == nil {
		logger = fsglog.Nop
	}
	hostname, _ := os.Hostname()
	return &Coordinator{
		Root:          root,
		EngineVersion: engineVersion,
		Mode:          mode,
		Logger:        logger,
		Metrics:       &Metrics{},
		hostname:      hostname,
		mem:           cache.New[string, element.Resource](memCacheCapacity),
		inflight:      make(map[string]*pendingCall),
	}
}

// GetSnapshot implements §4.8's "On get_snapshot for a profile" column: read
// the cache, on miss (or in ModeNone, always) call generate, writing the
// result back unless the mode is ModeNone.
func (c *Coordinator) GetSnapshot(ctx context.Context, key Key, generate GenerateFunc) (element.Resource, error) {
	if c.Mode == ModeNone {
		c.Metrics.recordMiss()
		return generate(ctx)
	}

	if resource, ok, err := c.read(key); err != nil {
		return nil, err
	} else if ok {
		c.Metrics.recordHit()
		return resource, nil
	}
	c.Metrics.recordMiss()

	resource, err := c.singleflightGenerate(ctx, key, generate)
	if err != nil {
		return nil, err
	}
	return resource, nil
}

// singleflightGenerate runs generate for key, deduplicating concurrent
// in-process callers of this Coordinator (a per-Coordinator map guarded by
// c.mu) and cross-process callers (via the lockfile protocol), then writes
// the result to the cache. Two Coordinators in one process do not share
// the map; they meet only at the lockfile layer.
func (c *Coordinator) singleflightGenerate(ctx context.Context, key Key, generate GenerateFunc) (element.Resource, error) {
	sfKey := key.singleflightKey()

	c.mu.Lock()
	if pc, ok := c.inflight[sfKey]; ok {
		c.mu.Unlock()
		<-pc.done
		return pc.result, pc.err
	}
	pc := &pendingCall{done: make(chan struct{})}
	c.inflight[sfKey] = pc
	c.mu.Unlock()

	pc.result, pc.err = c.generateCrossProcess(ctx, key, generate)

	c.mu.Lock()
	delete(c.inflight, sfKey)
	c.mu.Unlock()
	close(pc.done)

	return pc.result, pc.err
}

func (c *Coordinator) generateCrossProcess(ctx context.Context, key Key, generate GenerateFunc) (element.Resource, error) {
	cachePath := Path(c.Root, key, c.EngineVersion)
	lockPath := cachePath + ".lock"
	deadline := time.Now().Add(lockTTL + 10*time.Second)

	for {
		release, acquired, err := acquireLock(lockPath, cachePath, c.hostname)
		if err != nil {
			return nil, err
		}
		if acquired {
			resource, genErr := generate(ctx)
			if genErr == nil {
				if werr := c.write(key, resource); werr != nil {
					release()
					return nil, werr
				}
			}
			release()
			return resource, genErr
		}

		appeared, waitErr := waitForLock(cachePath, lockPath, c.hostname, deadline)
		if waitErr != nil {
			return nil, waitErr
		}
		if appeared {
			if resource, ok, rerr := c.read(key); rerr == nil && ok {
				return resource, nil
			}
			// Cache file vanished or was corrupt between the stat and the
			// read: fall through and retry acquisition.
		}
	}
}

// read returns (resource, true, nil) on a cache hit, (nil, false, nil) on a
// tolerated miss (absent or corrupt, per §4.8), or a non-nil error for an
// IO failure other than "not found". A hit in the in-process LRU (mem)
// skips disk entirely; a miss there always falls through to disk, since
// mem is only a latency optimization over the same on-disk entry, never an
// independent source of truth.
//
// Per §9's cache format note, a file that parses but lacks a resourceType
// field is treated the same as a syntactically corrupt one.
func (c *Coordinator) read(key Key) (element.Resource, bool, error) {
	sfKey := key.singleflightKey()
	if resource, ok := c.mem.Get(sfKey); ok {
		return resource, true, nil
	}

	path := Path(c.Root, key, c.EngineVersion)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		c.evictCorrupt(path)
		return nil, false, nil
	}

	// Cheap peek before the full decode: a well-formed snapshot file is a
	// JSON object carrying a string "resourceType" field. jsonparser.Get is
	// enough to reject a truncated or wrong-shaped file without unmarshalling
	// the whole object.
	if _, dataType, _, perr := jsonparser.Get(trimmed, "resourceType"); perr != nil || dataType != jsonparser.String {
		c.evictCorrupt(path)
		return nil, false, nil
	}

	var resource element.Resource
	if err := json.Unmarshal(trimmed, &resource); err != nil {
		c.evictCorrupt(path)
		return nil, false, nil
	}
	if rt, ok := resource.ResourceType(); !ok || rt == "" {
		c.evictCorrupt(path)
		return nil, false, nil
	}
	c.mem.Set(sfKey, resource)
	return resource, true, nil
}

func (c *Coordinator) evictCorrupt(path string) {
	_ = os.Remove(path)
	c.Metrics.recordEvict()
}

func (c *Coordinator) write(key Key, resource element.Resource) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}
	path := Path(c.Root, key, c.EngineVersion)
	if werr := atomicWriteFile(path, data); werr != nil {
		return werr
	}
	c.mem.Set(key.singleflightKey(), resource)
	c.Metrics.recordWrite()
	return nil
}

// DeleteAll removes the entire cached-snapshot subtree for pkg, used by
// ModeRebuild's "delete all cache directories for packages in context"
// step. Best-effort: a missing directory is not an error. Also drops pkg's
// entries from the in-process mem layer, so a rebuild can't serve a stale
// hit out of memory right after deleting the file it came from.
func (c *Coordinator) DeleteAll(pkg explorer.PackageRef) error {
	prefix := pkg.ID + "#" + pkg.Version + "/"
	for _, k := range c.mem.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.mem.Delete(k)
		}
	}

	dir := Dir(c.Root, pkg, c.EngineVersion)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
