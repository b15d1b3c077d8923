package explorer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gofhir/fhir/r4"
)

// MemoryExplorer is an in-memory Explorer, grounded on the teacher's
// InMemoryProfileService: pre-converted resources indexed by URL, id, and
// name, with no disk or network access. Used for tests and for embedding a
// fixed base-library snapshot set.
type MemoryExplorer struct {
	mu       sync.RWMutex
	byURL    map[string]*StructureDefinition
	byID     map[string]*StructureDefinition
	byName   map[string]*StructureDefinition
	context  []PackageRef
	deps     map[string][]PackageRef
	manifest map[string]*Manifest
	cache    string
}

// NewMemoryExplorer returns an empty MemoryExplorer.
func NewMemoryExplorer() *MemoryExplorer {
	return &MemoryExplorer{
		byURL:    make(map[string]*StructureDefinition),
		byID:     make(map[string]*StructureDefinition),
		byName:   make(map[string]*StructureDefinition),
		deps:     make(map[string][]PackageRef),
		manifest: make(map[string]*Manifest),
	}
}

// WithCachePath sets the path CachePath returns.
func (m *MemoryExplorer) WithCachePath(path string) *MemoryExplorer {
	m.cache = path
	return m
}

// AddContextPackage registers pkg in the context list returned by
// ContextPackages, in registration order.
func (m *MemoryExplorer) AddContextPackage(pkg PackageRef) *MemoryExplorer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context = append(m.context, pkg)
	return m
}

// SetDependencies records pkg's direct dependencies.
func (m *MemoryExplorer) SetDependencies(pkg PackageRef, deps []PackageRef) *MemoryExplorer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[pkg.String()] = deps
	return m
}

// SetManifest records pkg's manifest.
func (m *MemoryExplorer) SetManifest(pkg PackageRef, manifest *Manifest) *MemoryExplorer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest[pkg.String()] = manifest
	return m
}

// Load indexes sd by its URL, id, and name.
func (m *MemoryExplorer) Load(sd *StructureDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sd.Meta.URL != "" {
		m.byURL[sd.Meta.URL] = sd
	}
	if sd.Meta.ID != "" {
		m.byID[sd.Meta.ID] = sd
	}
	if sd.Meta.Name != "" {
		m.byName[sd.Meta.Name] = sd
	}
}

// LoadR4 converts and loads a typed r4.StructureDefinition, tagging it with
// pkg.
func (m *MemoryExplorer) LoadR4(sd *r4.StructureDefinition, pkg PackageRef, filename string) error {
	converted, err := ConvertStructureDefinition(sd)
	if err != nil {
		return err
	}
	converted.Meta.Package = pkg
	converted.Meta.Filename = filename
	m.Load(converted)
	return nil
}

func (m *MemoryExplorer) ResolveByFilename(ctx context.Context, pkg PackageRef, filename string) (*StructureDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sd := range m.byURL {
		if sd.Meta.Filename == filename && (pkg.ID == "" || sd.Meta.Package.ID == pkg.ID) {
			return sd, nil
		}
	}
	return nil, fmt.Errorf("explorer: no resource with filename %q", filename)
}

func (m *MemoryExplorer) ResolveMeta(ctx context.Context, sel MetaSelector, pkgFilter *PackageRef) (*StructureDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sd *StructureDefinition
	switch {
	case sel.ID != "":
		sd = m.byID[sel.ID]
	case sel.URL != "":
		sd = m.byURL[sel.URL]
	case sel.Name != "":
		sd = m.byName[sel.Name]
	case sel.Filename != "":
		for _, candidate := range m.byURL {
			if candidate.Meta.Filename == sel.Filename {
				sd = candidate
				break
			}
		}
	}
	if sd == nil {
		return nil, fmt.Errorf("explorer: no resource matching %+v", sel)
	}
	if pkgFilter != nil && pkgFilter.ID != "" && sd.Meta.Package.ID != pkgFilter.ID {
		return nil, fmt.Errorf("explorer: resource %s not in package %s", sd.Meta.URL, pkgFilter)
	}
	return sd, nil
}

func (m *MemoryExplorer) LookupMeta(ctx context.Context, filter LookupFilter) ([]ResourceMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ResourceMeta, 0)
	for _, sd := range m.byURL {
		if filter.Kind != "" && sd.Meta.Kind != filter.Kind {
			continue
		}
		if filter.Type != "" && sd.Meta.Type != filter.Type {
			continue
		}
		if filter.Package != nil && sd.Meta.Package.ID != filter.Package.ID {
			continue
		}
		out = append(out, sd.Meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *MemoryExplorer) ContextPackages(ctx context.Context) ([]PackageRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PackageRef, len(m.context))
	copy(out, m.context)
	return out, nil
}

func (m *MemoryExplorer) DirectDependencies(ctx context.Context, pkg PackageRef) ([]PackageRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deps[pkg.String()], nil
}

func (m *MemoryExplorer) PackageManifest(ctx context.Context, pkg PackageRef) (*Manifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	man, ok := m.manifest[pkg.String()]
	if !ok {
		return nil, fmt.Errorf("explorer: no manifest for %s", pkg)
	}
	return man, nil
}

func (m *MemoryExplorer) CachePath(ctx context.Context) (string, error) {
	return m.cache, nil
}

var _ Explorer = (*MemoryExplorer)(nil)
