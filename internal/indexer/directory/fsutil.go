package directory

import (
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

const tmpSuffix = ".tmp"

func writeFileAtomic(dir, name string, data []byte) error {
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + tmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.StorageIO(err, "creating %s", tmpPath)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.StorageIO(err, "writing %s", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return apperrors.StorageIO(err, "syncing %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.StorageIO(err, "closing %s", tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperrors.StorageIO(err, "publishing %s", finalPath)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return apperrors.StorageIO(err, "opening %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return apperrors.StorageIO(err, "syncing %s", dir)
	}
	return nil
}

// Remove deletes files written by an abandoned commit. Missing files are
// ignored.
func Remove(dir string, names ...string) {
	for _, name := range names {
		if name != "" {
			os.Remove(filepath.Join(dir, name))
		}
	}
}
