package snapcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofhir/snapgen/element"
	"github.com/gofhir/snapgen/explorer"
	"github.com/gofhir/snapgen/fsglog"
)

func testKey() Key {
	return Key{Package: explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}, Filename: "StructureDefinition-my-patient.json"}
}

func testResource(id string) element.Resource {
	return element.NewResource(map[string]any{"resourceType": "StructureDefinition", "id": id}, []element.Element{{"id": id, "path": id}})
}

func TestGetSnapshotLazyMissThenHit(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)

	calls := 0
	generate := func(ctx context.Context) (element.Resource, error) {
		calls++
		return testResource("Patient"), nil
	}

	out, err := c.GetSnapshot(context.Background(), testKey(), generate)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if rt, ok := out.ResourceType(); !ok || rt != "StructureDefinition" {
		t.Fatalf("unexpected resourceType: %v (ok=%v)", rt, ok)
	}
	elems, err := out.Elements()
	if err != nil || len(elems) != 1 || elems[0]["id"] != "Patient" {
		t.Fatalf("unexpected result: %v, err=%v", out, err)
	}
	if calls != 1 {
		t.Fatalf("expected generate called once, got %d", calls)
	}

	out2, err := c.GetSnapshot(context.Background(), testKey(), generate)
	if err != nil {
		t.Fatalf("GetSnapshot (second): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit, generate not called again, got %d calls", calls)
	}
	if rt, ok := out2.ResourceType(); !ok || rt != "StructureDefinition" {
		t.Fatalf("unexpected cached resourceType: %v (ok=%v)", rt, ok)
	}
}

func TestGetSnapshotModeNoneAlwaysGenerates(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeNone, fsglog.Nop)

	calls := 0
	generate := func(ctx context.Context) (element.Resource, error) {
		calls++
		return testResource("Patient"), nil
	}

	var last element.Resource
	for i := 0; i < 2; i++ {
		out, err := c.GetSnapshot(context.Background(), testKey(), generate)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		last = out
	}
	if calls != 2 {
		t.Fatalf("expected ModeNone to regenerate every call, got %d calls", calls)
	}
	if rt, ok := last.ResourceType(); !ok || rt != "StructureDefinition" {
		t.Fatalf("expected a resourceType-bearing object even in none mode, got %v", last)
	}
	path := Path(root, testKey(), "1.0.0")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected ModeNone never to write a cache file, stat err = %v", err)
	}
}

func TestReadTreatsEmptyFileAsMiss(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)

	path := Path(root, testKey(), "1.0.0")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("   \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.read(testKey())
	if err != nil {
		t.Fatalf("expected whitespace-only file tolerated as a miss, got error: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected corrupt file deleted")
	}
}

// TestReadTreatsSyntaxErrorAsMiss uses the exact truncated fixture from
// spec scenario 2: a file that parses as neither valid JSON nor a
// recognisable resource.
func TestReadTreatsSyntaxErrorAsMiss(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)

	path := Path(root, testKey(), "1.0.0")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"resourceType":"StructureDefinition"`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.read(testKey())
	if err != nil {
		t.Fatalf("expected truncated file tolerated as a miss, got error: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected corrupt file deleted")
	}
}

// TestReadTreatsMissingResourceTypeAsCorrupt covers §9's cache format
// note: a file that parses cleanly but lacks resourceType must still be
// rejected as corrupt, not accepted as a valid cached snapshot.
func TestReadTreatsMissingResourceTypeAsCorrupt(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)

	path := Path(root, testKey(), "1.0.0")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"dummy":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.read(testKey())
	if err != nil {
		t.Fatalf("expected a well-formed-but-resourceType-less file tolerated as a miss, got error: %v", err)
	}
	if ok {
		t.Fatalf("expected a miss")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected corrupt file deleted")
	}
}

func TestReadPropagatesNonParseIOErrors(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)

	path := Path(root, testKey(), "1.0.0")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}

	_, _, err := c.read(testKey())
	if err == nil {
		t.Fatalf("expected an IO error when the cache path is a directory")
	}
}

func TestDeleteAllRemovesPackageCacheDir(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)
	key := testKey()

	if err := c.write(key, testResource("Patient")); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteAll(key.Package); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.read(key); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.read(key); ok {
		t.Fatalf("expected cache removed after DeleteAll")
	}
}

func TestCreateEnsureGeneratesOnlyMisses(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeEnsure, fsglog.Nop)

	hitKey := Key{Package: explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}, Filename: "a.json"}
	missKey := Key{Package: explorer.PackageRef{ID: "example.profiles", Version: "1.0.0"}, Filename: "b.json"}
	if err := c.write(hitKey, testResource("A")); err != nil {
		t.Fatal(err)
	}

	var generated []string
	items := []PrecacheItem{
		{Key: hitKey, Generate: func(ctx context.Context) (element.Resource, error) {
			generated = append(generated, "a")
			return testResource("A"), nil
		}},
		{Key: missKey, Generate: func(ctx context.Context) (element.Resource, error) {
			generated = append(generated, "b")
			return testResource("B"), nil
		}},
	}

	report := c.Create(context.Background(), nil, items)
	if report.Skipped != 1 || report.Generated != 1 {
		t.Fatalf("expected 1 skipped + 1 generated, got %+v", report)
	}
	if len(generated) != 1 || generated[0] != "b" {
		t.Fatalf("expected only the miss to regenerate, got %v", generated)
	}
}

func TestCreateModeLazyIsNoOp(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)
	called := false
	items := []PrecacheItem{
		{Key: testKey(), Generate: func(ctx context.Context) (element.Resource, error) {
			called = true
			return nil, nil
		}},
	}
	report := c.Create(context.Background(), nil, items)
	if called {
		t.Fatalf("expected ModeLazy's Create to do no pre-work")
	}
	if report.Generated != 0 || report.Skipped != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestCreateRebuildDeletesThenEnsures(t *testing.T) {
	root := t.TempDir()
	key := testKey()

	seed := New(root, "1.0.0", ModeLazy, fsglog.Nop)
	if err := seed.write(key, testResource("Stale")); err != nil {
		t.Fatal(err)
	}

	c := New(root, "1.0.0", ModeRebuild, fsglog.Nop)
	calls := 0
	items := []PrecacheItem{
		{Key: key, Generate: func(ctx context.Context) (element.Resource, error) {
			calls++
			return testResource("Fresh"), nil
		}},
	}
	report := c.Create(context.Background(), []explorer.PackageRef{key.Package}, items)
	if calls != 1 {
		t.Fatalf("expected rebuild to regenerate even though a stale entry existed, got %d calls", calls)
	}
	if report.Generated != 1 {
		t.Fatalf("expected 1 generated, got %+v", report)
	}
	out, ok, err := c.read(key)
	if err != nil || !ok {
		t.Fatalf("expected fresh entry readable: ok=%v err=%v", ok, err)
	}
	elems, err := out.Elements()
	if err != nil || len(elems) != 1 || elems[0]["id"] != "Fresh" {
		t.Fatalf("expected fresh content, got %v, err=%v", out, err)
	}
}

func TestMetricsTrackHitsAndMisses(t *testing.T) {
	root := t.TempDir()
	c := New(root, "1.0.0", ModeLazy, fsglog.Nop)
	generate := func(ctx context.Context) (element.Resource, error) {
		return testResource("Patient"), nil
	}
	if _, err := c.GetSnapshot(context.Background(), testKey(), generate); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetSnapshot(context.Background(), testKey(), generate); err != nil {
		t.Fatal(err)
	}
	snap := c.Metrics.Snapshot()
	if snap.Misses != 1 || snap.Hits != 1 {
		t.Fatalf("expected 1 miss + 1 hit, got %+v", snap)
	}
}

func TestEngineVersionDir(t *testing.T) {
	if got := engineVersionDir("1.2.3"); got != "v1.2.x" {
		t.Fatalf("got %q", got)
	}
}
