package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// LockTimeoutError is returned when a directory lock is still held after the wait.
type LockTimeoutError struct {
	LockDir string
}

func (e *LockTimeoutError) Error() string { return "timeout acquiring lock: " + e.LockDir }

func IsLockTimeout(err error) bool {
	var lt *LockTimeoutError
	return errors.As(err, &lt)
}

// WithDirLock runs fn while holding lockDir. Concurrent writers into one run
// directory are serialized this way.
func WithDirLock(lockDir string, wait time.Duration, fn func() error) error {
	release, err := acquireDirLock(lockDir, wait)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()
	return fn()
}

// DefaultStaleAfter is how old a lock directory must be before its owner is probed.
const DefaultStaleAfter = 2 * time.Minute

type ownerRecord struct {
	Version   int    `json:"version"`
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
}

func readLockOwner(lockDir string) (ownerRecord, bool) {
	raw, err := os.ReadFile(filepath.Join(lockDir, "owner.json"))
	if err != nil {
		return ownerRecord{}, false
	}
	var owner ownerRecord
	if err := json.Unmarshal(raw, &owner); err != nil {
		return ownerRecord{}, false
	}
	if owner.PID <= 0 {
		return ownerRecord{}, false
	}
	return owner, true
}

func shouldBreakStaleLock(lockDir string, staleAfter time.Duration, now time.Time) bool {
	info, err := os.Stat(lockDir)
	if err != nil {
		return false
	}
	if now.Sub(info.ModTime()) <= staleAfter {
		return false
	}
	if owner, ok := readLockOwner(lockDir); ok {
		if processAlive(owner.PID) {
			return false
		}
	}
	return true
}

func acquireDirLock(lockDir string, wait time.Duration) (func() error, error) {
	deadline := time.Now().Add(wait)
	staleAfter := DefaultStaleAfter
	for {
		if err := os.Mkdir(lockDir, 0o755); err == nil {
			owner := ownerRecord{Version: 1, PID: os.Getpid(), StartedAt: time.Now().UTC().Format(time.RFC3339Nano)}
			if b, err := json.Marshal(owner); err == nil {
				_ = os.WriteFile(filepath.Join(lockDir, "owner.json"), b, 0o644)
			}
			return func() error { return os.RemoveAll(lockDir) }, nil
		} else if !os.IsExist(err) {
			return nil, err
		}

		// Stale and ownerless: break it.
		if shouldBreakStaleLock(lockDir, staleAfter, time.Now()) {
			_ = os.RemoveAll(lockDir)
			continue
		}

		if time.Now().After(deadline) {
			return nil, &LockTimeoutError{LockDir: lockDir}
		}
		if runtime.GOOS == "windows" {
			time.Sleep(35 * time.Millisecond)
		} else {
			time.Sleep(25 * time.Millisecond)
		}
	}
}
