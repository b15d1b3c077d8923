package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/snapgen/pkg/loader"
)

// RegistryExplorer is the disk-backed Explorer: it reads FHIR packages from
// the local npm-style cache via pkg/loader, decoding StructureDefinition
// resources on demand. It performs no network access itself; pkg/registry
// is the (separate, out-of-scope-for-the-core) component responsible for
// populating the cache.
type RegistryExplorer struct {
	loader  *loader.Loader
	context []PackageRef

	mu       sync.Mutex
	packages map[string]*loader.Package
}

// NewRegistryExplorer returns a RegistryExplorer reading from basePath (the
// npm-style package cache root; DefaultPackagePath if empty), scoped to
// context.
func NewRegistryExplorer(basePath string, context []PackageRef) *RegistryExplorer {
	return &RegistryExplorer{
		loader:   loader.NewLoader(basePath),
		context:  context,
		packages: make(map[string]*loader.Package),
	}
}

func (r *RegistryExplorer) loadPackage(pkg PackageRef) (*loader.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pkg.String()
	if p, ok := r.packages[key]; ok {
		return p, nil
	}
	p, err := r.loader.LoadPackage(pkg.ID, pkg.Version)
	if err != nil {
		return nil, err
	}
	r.packages[key] = p
	return p, nil
}

// resourceProbe peeks the fields needed for metadata listing/filtering
// without paying for a full r4.StructureDefinition decode.
type resourceProbe struct {
	ResourceType   string `json:"resourceType"`
	ID             string `json:"id"`
	URL            string `json:"url"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Kind           string `json:"kind"`
	Derivation     string `json:"derivation"`
	BaseDefinition string `json:"baseDefinition"`
	FhirVersion    string `json:"fhirVersion"`
	Abstract       bool   `json:"abstract"`
}

func (r *RegistryExplorer) decode(pkg PackageRef, filename string, raw []byte) (*StructureDefinition, error) {
	var sd r4.StructureDefinition
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("explorer: decoding %s in %s: %w", filename, pkg, err)
	}
	converted, err := ConvertStructureDefinition(&sd)
	if err != nil {
		return nil, err
	}
	converted.Meta.Package = pkg
	converted.Meta.Filename = filename

	// Prefer the exact on-disk bytes over the re-marshaled typed struct for
	// the resource's own top-level fields, so vendor/unknown fields survive
	// into the cached snapshot artifact untouched.
	var resource map[string]any
	if err := json.Unmarshal(raw, &resource); err == nil {
		converted.Resource = resource
	}
	return converted, nil
}

func (r *RegistryExplorer) packageDir(pkg PackageRef) string {
	return filepath.Join(r.loader.BasePath(), fmt.Sprintf("%s#%s", pkg.ID, pkg.Version), "package")
}

func (r *RegistryExplorer) ResolveByFilename(ctx context.Context, pkg PackageRef, filename string) (*StructureDefinition, error) {
	candidates := []PackageRef{pkg}
	if pkg.ID == "" {
		candidates = r.context
	}
	for _, candidate := range candidates {
		path := filepath.Join(r.packageDir(candidate), filename)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return r.decode(candidate, filename, raw)
	}
	return nil, fmt.Errorf("explorer: no file %q found in %v", filename, candidates)
}

func (r *RegistryExplorer) ResolveMeta(ctx context.Context, sel MetaSelector, pkgFilter *PackageRef) (*StructureDefinition, error) {
	candidates := r.context
	if pkgFilter != nil {
		candidates = []PackageRef{*pkgFilter}
	}
	for _, pkg := range candidates {
		pack, err := r.loadPackage(pkg)
		if err != nil {
			continue
		}
		for key, raw := range pack.Resources {
			var probe resourceProbe
			if err := json.Unmarshal(raw, &probe); err != nil {
				continue
			}
			if probe.ResourceType != "StructureDefinition" {
				continue
			}
			matched := false
			switch {
			case sel.ID != "":
				matched = probe.ID == sel.ID
			case sel.URL != "":
				matched = probe.URL == sel.URL
			case sel.Name != "":
				matched = probe.Name == sel.Name
			case sel.Filename != "":
				matched = fmt.Sprintf("StructureDefinition-%s.json", probe.ID) == sel.Filename
			}
			if !matched {
				continue
			}
			filename := fmt.Sprintf("StructureDefinition-%s.json", probe.ID)
			return r.decode(pkg, filename, raw)
		}
	}
	return nil, fmt.Errorf("explorer: no resource matching %+v", sel)
}

func (r *RegistryExplorer) LookupMeta(ctx context.Context, filter LookupFilter) ([]ResourceMeta, error) {
	candidates := r.context
	if filter.Package != nil {
		candidates = []PackageRef{*filter.Package}
	}
	var out []ResourceMeta
	for _, pkg := range candidates {
		pack, err := r.loadPackage(pkg)
		if err != nil {
			continue
		}
		for key, raw := range pack.Resources {
			var probe resourceProbe
			if err := json.Unmarshal(raw, &probe); err != nil {
				continue
			}
			if probe.ResourceType != "StructureDefinition" {
				continue
			}
			// The loader indexes a resource under both its URL and its
			// Type/id; list each resource once.
			if probe.URL != "" && key != probe.URL {
				continue
			}
			if filter.Kind != "" && probe.Kind != filter.Kind {
				continue
			}
			if filter.Type != "" && probe.Type != filter.Type {
				continue
			}
			out = append(out, ResourceMeta{
				ID: probe.ID, URL: probe.URL, Name: probe.Name, Type: probe.Type,
				Kind: probe.Kind, Derivation: probe.Derivation, BaseDefinition: probe.BaseDefinition,
				FHIRVersion: probe.FhirVersion, Abstract: probe.Abstract, Package: pkg,
				Filename: fmt.Sprintf("StructureDefinition-%s.json", probe.ID),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (r *RegistryExplorer) ContextPackages(ctx context.Context) ([]PackageRef, error) {
	out := make([]PackageRef, len(r.context))
	copy(out, r.context)
	return out, nil
}

func (r *RegistryExplorer) DirectDependencies(ctx context.Context, pkg PackageRef) ([]PackageRef, error) {
	manifest, err := r.PackageManifest(ctx, pkg)
	if err != nil {
		return nil, err
	}
	out := make([]PackageRef, 0, len(manifest.Dependencies))
	names := make([]string, 0, len(manifest.Dependencies))
	for name := range manifest.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, PackageRef{ID: name, Version: manifest.Dependencies[name]})
	}
	return out, nil
}

func (r *RegistryExplorer) PackageManifest(ctx context.Context, pkg PackageRef) (*Manifest, error) {
	path := filepath.Join(r.loader.BasePath(), fmt.Sprintf("%s#%s", pkg.ID, pkg.Version), "package", "package.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("explorer: reading manifest for %s: %w", pkg, err)
	}
	var m struct {
		Name               string            `json:"name"`
		Version            string            `json:"version"`
		FHIRVersion        string            `json:"fhirVersion"`
		Dependencies       map[string]string `json:"dependencies"`
		CompatibleVersions []string          `json:"compatibleVersions"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("explorer: parsing manifest for %s: %w", pkg, err)
	}
	return &Manifest{
		Name: m.Name, Version: m.Version, FHIRVersion: m.FHIRVersion,
		Dependencies: m.Dependencies, CompatibleVersions: m.CompatibleVersions,
	}, nil
}

func (r *RegistryExplorer) CachePath(ctx context.Context) (string, error) {
	return r.loader.BasePath(), nil
}

var _ Explorer = (*RegistryExplorer)(nil)

// ParsePackageRef parses "id#version", "id@version", or bare "id" (latest,
// empty version) into a PackageRef, mirroring the context-entry grammar in
// the engine's configuration.
func ParsePackageRef(spec string) PackageRef {
	for _, sep := range []string{"#", "@"} {
		if idx := strings.Index(spec, sep); idx >= 0 {
			return PackageRef{ID: spec[:idx], Version: spec[idx+1:]}
		}
	}
	return PackageRef{ID: spec}
}
