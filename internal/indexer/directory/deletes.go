package directory

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

const (
	deletesPrefix = "del_"
	deletesSuffix = ".roar"
)

// DeletesFileName names the tombstone file of segment for generation gen.
func DeletesFileName(gen uint64, segment string) string {
	base := strings.TrimSuffix(segment, filepath.Ext(segment))
	return fmt.Sprintf("%s%d_%s%s", deletesPrefix, gen, base, deletesSuffix)
}

// WriteDeletes persists a segment's tombstones for generation gen and returns
// the file name.
func WriteDeletes(dir string, gen uint64, segment string, deleted *roaring.Bitmap) (string, error) {
	var buf bytes.Buffer
	deleted.RunOptimize()
	if _, err := deleted.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("encoding tombstones for %s: %w", segment, err)
	}
	name := DeletesFileName(gen, segment)
	if err := writeFileAtomic(dir, name, buf.Bytes()); err != nil {
		return "", err
	}
	return name, nil
}

// ReadDeletes loads a tombstone file. An empty name yields an empty set.
func ReadDeletes(dir, name string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if name == "" {
		return bm, nil
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.StorageIO(err, "reading %s", path)
	}
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, apperrors.StorageIO(err, "decoding %s", path)
	}
	return bm, nil
}
