package snapcache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// renameNoOverwrite links the rename-without-overwrite semantics §4.8 needs
// onto os.Rename, which on its own always overwrites. It first checks for
// an existing destination; the brief race window between the check and the
// rename is the same one any "move sibling tmp file onto me" protocol
// accepts, and is closed by the caller treating "already exists" as success
// rather than failure.
func renameNoOverwrite(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return os.ErrExist
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	return nil
}

// atomicWriteFile writes data to path via a sibling temp file and an
// overwrite-false move, per §4.8's atomic-write rule. "Already exists" from
// the move is treated as success: another writer won the race and its
// content is authoritative.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpName := fmt.Sprintf("%s.%d.%d.%s.tmp", path, os.Getpid(), time.Now().UnixMilli(), randomHex(8))

	if err := os.WriteFile(tmpName, data, 0o644); err != nil {
		return err
	}
	if err := renameNoOverwrite(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return nil
}
