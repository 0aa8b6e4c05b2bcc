// Package directory manages the on-disk layout of an index: the writer lock,
// numbered commit points and per-generation tombstone files. Segment files
// themselves are written by package segment.
package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

const LockFile = "write.lock"

// Lock is the exclusive writer lock on an index directory.
type Lock struct {
	path string
}

// AcquireLock creates the lock file exclusively. If another writer holds it
// the error matches ErrWriterLockHeld. A lock left by a crashed process must
// be removed by hand.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.StorageIO(err, "creating index directory %s", dir)
	}
	path := filepath.Join(dir, LockFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := os.ReadFile(path)
			return nil, apperrors.Newf(apperrors.ErrWriterLockHeld, "%s is held by pid %s", path, owner)
		}
		return nil, apperrors.StorageIO(err, "creating %s", path)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, apperrors.StorageIO(werr, "writing %s", path)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
