package snapcache

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/gofhir/snapgen/explorer"
)

// Key identifies one cached snapshot file: a package version plus the
// filename the source resource carries in the package's content directory.
type Key struct {
	Package  explorer.PackageRef
	Filename string
}

// singleflightKey is the cache-path-independent key §4.8 uses for the
// in-process single-flight map: "<pkg_id>#<pkg_ver>/<filename>".
func (k Key) singleflightKey() string {
	return k.Package.ID + "#" + k.Package.Version + "/" + k.Filename
}

// engineVersionDir renders "vM.m.x" from a "M.m.patch" engine version, per
// §6's on-disk layout (the snapshot directory is keyed by major.minor only).
func engineVersionDir(engineVersion string) string {
	parts := strings.SplitN(engineVersion, ".", 3)
	major, minor := "0", "0"
	if len(parts) > 0 {
		major = parts[0]
	}
	if len(parts) > 1 {
		minor = parts[1]
	}
	return "v" + major + "." + minor + ".x"
}

// Dir returns the on-disk directory holding cached snapshots for pkg, under
// cacheRoot, for the given engine version: "C/P#V/.fsg.snapshots/vM.m.x/".
func Dir(cacheRoot string, pkg explorer.PackageRef, engineVersion string) string {
	return filepath.Join(cacheRoot, pkg.ID+"#"+pkg.Version, ".fsg.snapshots", engineVersionDir(engineVersion))
}

// Path returns the full path to k's cached snapshot file.
func Path(cacheRoot string, k Key, engineVersion string) string {
	return filepath.Join(Dir(cacheRoot, k.Package, engineVersion), k.Filename)
}

// randomHex returns n random hex characters for the atomic-write temp-file
// suffix (§4.8): "<cache>.<pid>.<epoch-ms>.<random-hex>.tmp".
func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:n]
}
