// Package lockfile guards an instance against two sessions editing it at
// once.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrAlreadyLocked is returned when another session holds the lock.
var ErrAlreadyLocked = errors.New("instance is locked by another session")

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes the lock at path without blocking, creating the file and
// its directory. owner is written into the file for troubleshooting.
func Acquire(path, owner string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lockfile: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrAlreadyLocked) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "pid=%d owner=%s\n", os.Getpid(), owner)
	_ = f.Sync()
	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and closes the file. The file itself is left in place;
// removing it would race with a session acquiring it. Release is
// idempotent.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	return errors.Join(unlockErr, closeErr)
}

// Close implements io.Closer.
func (l *Lock) Close() error { return l.Release() }
