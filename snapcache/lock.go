package snapcache

import (
	"encoding/json"
	"os"
	"runtime"
	"syscall"
	"time"
)

// lockTTL is the staleness threshold from §4.8: a lock older than this is
// considered abandoned regardless of whether its owning process is alive.
const lockTTL = 3 * time.Minute

const lockPollInterval = 100 * time.Millisecond

type lockInfo struct {
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
}

func readLockInfo(path string) (lockInfo, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockInfo{}, false
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return lockInfo{}, false
	}
	return info, true
}

// processAlive probes whether pid still exists on this host, via a
// zero-signal liveness check (no-op on platforms where Signal isn't
// meaningful; treated as "alive" there since we cannot tell otherwise).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func isStale(info lockInfo, hostname string) bool {
	if time.Since(info.Timestamp) > lockTTL {
		return true
	}
	if info.Hostname == hostname && !processAlive(info.PID) {
		return true
	}
	return false
}

// acquireLock attempts the atomic-create-then-rename-without-overwrite
// protocol from §4.8. It returns a release func (idempotent, safe to call
// more than once) on success, or ok=false if another live holder won the
// race and is still live (caller should poll via waitForLock).
func acquireLock(lockPath, tmpPrefix, hostname string) (release func(), ok bool, err error) {
	if existing, found := readLockInfo(lockPath); found && !isStale(existing, hostname) {
		return nil, false, nil
	}

	mine := lockInfo{PID: os.Getpid(), Timestamp: time.Now(), Hostname: hostname}
	data, merr := json.Marshal(mine)
	if merr != nil {
		return nil, false, merr
	}

	tmpPath := tmpPrefix + ".lock.tmp"
	if werr := os.WriteFile(tmpPath, data, 0o644); werr != nil {
		return nil, false, werr
	}
	if rerr := renameNoOverwrite(tmpPath, lockPath); rerr != nil {
		_ = os.Remove(tmpPath)
		if os.IsExist(rerr) {
			// Lost the race; the winner may still be stale from an earlier
			// read, so the caller re-checks via waitForLock rather than
			// assuming defeat.
			return nil, false, nil
		}
		return nil, false, rerr
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if current, found := readLockInfo(lockPath); found && current.PID == mine.PID && current.Hostname == mine.Hostname {
			_ = os.Remove(lockPath)
		}
	}, true, nil
}

// waitForLock polls for the cache file to appear or the lock to vanish or
// go stale, per §4.8's cross-process single-flight wait. It returns
// (true, nil) if the cache file appeared (the caller should re-read it),
// or (false, nil) if the lock disappeared/went stale (caller should retry
// acquisition), or an error if the deadline passed without either.
func waitForLock(cachePath, lockPath, hostname string, deadline time.Time) (cacheAppeared bool, err error) {
	for time.Now().Before(deadline) {
		if _, statErr := os.Stat(cachePath); statErr == nil {
			return true, nil
		}
		info, found := readLockInfo(lockPath)
		if !found || isStale(info, hostname) {
			return false, nil
		}
		time.Sleep(lockPollInterval)
	}
	return false, &lockTimeoutError{lockPath: lockPath}
}

type lockTimeoutError struct{ lockPath string }

func (e *lockTimeoutError) Error() string {
	return "snapcache: timed out waiting for lock " + e.lockPath
}
