// Package main implements the snapgen CLI tool.
// This CLI is designed to generate StructureDefinition snapshots from a
// local FHIR package cache, the way the engine's Go API does.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	snapgen "github.com/gofhir/snapgen"
	"github.com/gofhir/snapgen/config"
	"github.com/gofhir/snapgen/engine"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/pkg/logger"
	"github.com/gofhir/snapgen/pkg/registry"
	"github.com/gofhir/snapgen/snapcache"
)

const (
	version = "0.1.0"
	usage   = `snapgen - FHIR StructureDefinition snapshot generator

Usage:
  snapgen [options] <identifier>...
  snapgen [options] -precache

Examples:
  snapgen -context hl7.fhir.us.core#6.1.0 http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient
  snapgen -version 4.3.0 -cache-mode rebuild -precache
  snapgen -output json Patient

Options:
`
)

// Config holds CLI configuration.
type Config struct {
	Context     []string
	CachePath   string
	FHIRVersion string
	CacheMode   string
	Output      string
	Precache    bool
	Fetch       bool
	Verbose     bool
	ShowVersion bool
	Help        bool
	Identifiers []string
}

type snapshotOutput struct {
	Identifier string `json:"identifier"`
	Elements   int    `json:"elements"`
	Error      string `json:"error,omitempty"`
}

func main() {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("snapgen v%s\n", version)
		os.Exit(0)
	}

	if cfg.Help || (len(cfg.Identifiers) == 0 && !cfg.Precache) {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() *Config {
	cfg := &Config{
		FHIRVersion: "4.0.1",
		CacheMode:   "lazy",
		Output:      "text",
	}

	var context string
	flag.StringVar(&context, "context", "", "Package(s) to resolve against (comma-separated id#version)")
	flag.StringVar(&cfg.CachePath, "cache", "", "Package cache root directory (defaults to the registry loader's default)")
	flag.StringVar(&cfg.FHIRVersion, "version", cfg.FHIRVersion, "FHIR version (4.0.1, 4.3.0, 5.0.0, or their short forms)")
	flag.StringVar(&cfg.CacheMode, "cache-mode", cfg.CacheMode, "Snapshot cache mode: lazy, ensure, rebuild, none")
	flag.StringVar(&cfg.Output, "output", cfg.Output, "Output format: text, json")
	flag.BoolVar(&cfg.Precache, "precache", false, "Run the configured cache mode's batch create() over the context instead of resolving identifiers")
	flag.BoolVar(&cfg.Fetch, "fetch", false, "Download the core package and context packages from the FHIR package registry before resolving (requires network access)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Show detailed output")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version")
	flag.BoolVar(&cfg.Help, "help", false, "Show help")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if context != "" {
		cfg.Context = strings.Split(context, ",")
	}
	cfg.Identifiers = flag.Args()
	return cfg
}

func parseCacheMode(s string) (snapcache.Mode, error) {
	switch strings.ToLower(s) {
	case "lazy":
		return snapcache.ModeLazy, nil
	case "ensure":
		return snapcache.ModeEnsure, nil
	case "rebuild":
		return snapcache.ModeRebuild, nil
	case "none":
		return snapcache.ModeNone, nil
	default:
		return "", fmt.Errorf("snapgen: unknown cache mode %q", s)
	}
}

// fetchPackages downloads the context's base-library and additional
// packages from the FHIR package registry into cfg.CachePath, giving a
// first-run caller with an empty cache something for RegistryExplorer to
// read. RegistryExplorer itself never touches the network.
func fetchPackages(ctx context.Context, cfg *Config, log *logger.Logger) error {
	canonical, err := snapgen.ResolveVersion(cfg.FHIRVersion)
	if err != nil {
		return err
	}

	var clientOpts []registry.ClientOption
	if cfg.CachePath != "" {
		clientOpts = append(clientOpts, registry.WithCacheDir(cfg.CachePath))
	}
	client := registry.NewClient(clientOpts...)
	resolver := registry.NewResolver(client)

	if _, err := resolver.ResolveCore(ctx, canonical.String()); err != nil {
		return fmt.Errorf("core package: %w", err)
	}

	var refs []registry.PackageRef
	for _, spec := range cfg.Context {
		pkg := explorer.ParsePackageRef(strings.TrimSpace(spec))
		refs = append(refs, registry.PackageRef{Name: pkg.ID, Version: pkg.Version})
	}
	if len(refs) > 0 {
		if _, err := resolver.ResolveAdditional(ctx, refs); err != nil {
			return fmt.Errorf("context packages: %w", err)
		}
	}

	log.Info("snapgen: fetched core package %s and %d context package(s)", canonical, len(refs))
	return nil
}

func run(cfg *Config) int {
	log := logger.Default()
	if cfg.Verbose {
		log.SetLevel(logger.LevelDebug)
	}

	mode, err := parseCacheMode(cfg.CacheMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var pkgs []explorer.PackageRef
	for _, spec := range cfg.Context {
		pkgs = append(pkgs, explorer.ParsePackageRef(strings.TrimSpace(spec)))
	}

	if cfg.Fetch {
		if err := fetchPackages(context.Background(), cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetching packages: %v\n", err)
			return 1
		}
	}

	exp := explorer.NewRegistryExplorer(cfg.CachePath, pkgs)

	opts := []config.Option{
		config.WithFHIRVersion(snapgen.FHIRVersion(cfg.FHIRVersion)),
		config.WithCacheMode(mode),
		config.WithContext(pkgs...),
		config.WithLogger(log),
	}
	if cfg.CachePath != "" {
		opts = append(opts, config.WithCachePath(cfg.CachePath))
	}

	ctx := context.Background()
	e, err := engine.New(ctx, exp, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize engine: %v\n", err)
		return 1
	}

	if cfg.Precache {
		return runPrecache(ctx, e, cfg)
	}
	return runResolve(ctx, e, cfg)
}

func runPrecache(ctx context.Context, e *engine.Engine, cfg *Config) int {
	report, err := e.Precache(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: precache failed: %v\n", err)
		return 1
	}
	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("Precache: generated %d, skipped %d, failed %d\n", report.Generated, report.Skipped, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Printf("  FAILED %s/%s: %v\n", f.Key.Package, f.Key.Filename, f.Err)
	}
	if len(report.Failures) > 0 {
		return 1
	}
	return 0
}

func runResolve(ctx context.Context, e *engine.Engine, cfg *Config) int {
	hasErrors := false
	outputs := make([]snapshotOutput, 0, len(cfg.Identifiers))

	for _, identifier := range cfg.Identifiers {
		start := time.Now()
		resource, err := e.GetSnapshot(ctx, identifier, nil)
		duration := time.Since(start)

		var elementCount int
		if err == nil {
			if elements, elemErr := resource.Elements(); elemErr == nil {
				elementCount = len(elements)
			}
		}

		out := snapshotOutput{Identifier: identifier, Elements: elementCount}
		if err != nil {
			out.Error = err.Error()
			hasErrors = true
		}
		outputs = append(outputs, out)

		if cfg.Output == "text" {
			if err != nil {
				fmt.Printf("== %s ==\nError: %v\n\n", identifier, err)
				continue
			}
			resourceType, _ := resource.ResourceType()
			fmt.Printf("== %s ==\nresourceType: %s\nElements: %d\nDuration: %s\n\n", identifier, resourceType, elementCount, duration.Round(time.Microsecond))
		}
	}

	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Println(string(data))
	}

	if hasErrors {
		return 1
	}
	return 0
}
