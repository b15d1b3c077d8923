// Package config builds the engine's configuration via functional options,
// mirroring the teacher's options.go: one Options struct, one Option func
// type, and a DefaultOptions constructor that seeds sane defaults.
package config

import (
	"context"

	snapgen "github.com/gofhir/snapgen"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsglog"
	"github.com/gofhir/snapgen/snapcache"
)

// Option configures Options.
type Option func(*Options)

// Options holds every setting §6's Configuration section names.
type Options struct {
	Context     []explorer.PackageRef
	CachePath   string
	FHIRVersion snapgen.FHIRVersion
	CacheMode   snapcache.Mode
	Logger      fsglog.Logger

	// CoreVersionOverride forces the base-library package baseversion
	// resolves to, bypassing its dependency-walk steps. Empty means no
	// override.
	CoreVersionOverride explorer.PackageRef

	// CheckConstraintExpressions gates pkg/fpcheck's advisory FHIRPath
	// syntax check in migrate; off by default.
	CheckConstraintExpressions bool

	BaseContext context.Context
}

// DefaultOptions returns the engine's default configuration:
// fhirVersion "4.0.1" (canonical R4), cacheMode lazy, a no-op logger.
func DefaultOptions() *Options {
	return &Options{
		FHIRVersion: snapgen.R4,
		CacheMode:   snapcache.ModeLazy,
		Logger:      fsglog.Nop,
		BaseContext: context.Background(),
	}
}

// Apply builds an Options from DefaultOptions with opts applied in order.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithContext sets the list of package references the engine resolves
// against.
func WithContext(packages ...explorer.PackageRef) Option {
	return func(o *Options) { o.Context = packages }
}

// WithCachePath sets the package/snapshot cache root directory.
func WithCachePath(path string) Option {
	return func(o *Options) { o.CachePath = path }
}

// WithFHIRVersion sets the engine's target FHIR version. The caller is
// responsible for passing an already-resolved canonical form (see
// snapgen.ResolveVersion); an unrecognised value is validated at engine
// construction time, not here.
func WithFHIRVersion(v snapgen.FHIRVersion) Option {
	return func(o *Options) { o.FHIRVersion = v }
}

// WithCacheMode sets the snapshot cache coordinator's operating mode.
func WithCacheMode(mode snapcache.Mode) Option {
	return func(o *Options) { o.CacheMode = mode }
}

// WithLogger sets the engine's logger.
func WithLogger(logger fsglog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithCoreVersionOverride forces the base-library package used for type
// lookups, bypassing baseversion's dependency-walk steps.
func WithCoreVersionOverride(pkg explorer.PackageRef) Option {
	return func(o *Options) { o.CoreVersionOverride = pkg }
}

// WithGoContext sets the context passed to every engine-internal
// operation that doesn't receive one explicitly from the caller (used only
// by long-running batch operations like precache).
func WithGoContext(ctx context.Context) Option {
	return func(o *Options) {
		if ctx != nil {
			o.BaseContext = ctx
		}
	}
}
