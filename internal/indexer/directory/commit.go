package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

const (
	commitPrefix = "commit_"
	commitSuffix = ".json"
)

// SegmentInfo is one segment as seen by a commit point. Deletes names the
// tombstone file for this generation, empty when the segment has none.
type SegmentInfo struct {
	Name     string `json:"name"`
	MaxDoc   uint32 `json:"max_doc"`
	Deletes  string `json:"deletes,omitempty"`
	DelCount uint64 `json:"del_count"`
}

// CommitPoint is the durable description of one index generation. Segments
// are listed in commit order; doc ID bases follow that order.
type CommitPoint struct {
	Generation  uint64             `json:"generation"`
	ID          string             `json:"id"`
	Analyzer    string             `json:"analyzer"`
	Schema      []schema.FieldSpec `json:"schema"`
	Segments    []SegmentInfo      `json:"segments"`
	CommittedAt time.Time          `json:"committed_at"`
}

// MaxDoc is the sum of the segments' MaxDoc.
func (c *CommitPoint) MaxDoc() uint64 {
	var n uint64
	for _, s := range c.Segments {
		n += uint64(s.MaxDoc)
	}
	return n
}

// NumDocs is MaxDoc minus tombstoned documents.
func (c *CommitPoint) NumDocs() uint64 {
	n := c.MaxDoc()
	for _, s := range c.Segments {
		n -= s.DelCount
	}
	return n
}

// CheckSchema returns ErrSchemaMismatch unless s and analyzerName match what
// the commit was written with.
func (c *CommitPoint) CheckSchema(s *schema.Schema, analyzerName string) error {
	recorded, err := schema.New(c.Schema...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSchemaMismatch, err, "commit point carries an invalid schema")
	}
	if !recorded.Equal(s) {
		return apperrors.Newf(apperrors.ErrSchemaMismatch,
			"index was built with schema [%s], opened with [%s]", recorded, s)
	}
	if c.Analyzer != analyzerName {
		return apperrors.Newf(apperrors.ErrSchemaMismatch,
			"index was built with analyzer %q, opened with %q", c.Analyzer, analyzerName)
	}
	return nil
}

// CommitFileName returns the file name for generation gen.
func CommitFileName(gen uint64) string {
	return fmt.Sprintf("%s%020d%s", commitPrefix, gen, commitSuffix)
}

func parseCommitFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, commitPrefix) || !strings.HasSuffix(name, commitSuffix) {
		return 0, false
	}
	var gen uint64
	if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(name, commitPrefix), commitSuffix), "%d", &gen); err != nil {
		return 0, false
	}
	return gen, true
}

// LatestGeneration returns the highest committed generation in dir, or 0 if
// the directory holds no commit.
func LatestGeneration(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, apperrors.StorageIO(err, "listing %s", dir)
	}
	var latest uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if gen, ok := parseCommitFileName(e.Name()); ok && gen > latest {
			latest = gen
		}
	}
	return latest, nil
}

// ReadLatest loads the newest commit point. It returns nil, nil for an index
// that has never been committed.
func ReadLatest(dir string) (*CommitPoint, error) {
	gen, err := LatestGeneration(dir)
	if err != nil || gen == 0 {
		return nil, err
	}
	return ReadCommit(dir, gen)
}

// ReadCommit loads the commit point for generation gen.
func ReadCommit(dir string, gen uint64) (*CommitPoint, error) {
	path := filepath.Join(dir, CommitFileName(gen))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.StorageIO(err, "reading %s", path)
	}
	var cp CommitPoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, apperrors.StorageIO(err, "parsing %s", path)
	}
	if cp.Generation != gen {
		return nil, apperrors.StorageIO(
			fmt.Errorf("file generation %d, content generation %d", gen, cp.Generation),
			"inconsistent commit point %s", path)
	}
	return &cp, nil
}

// WriteCommit publishes cp. The file appears atomically: readers either see
// the previous generation or this one in full.
func WriteCommit(dir string, cp *CommitPoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling commit point: %w", err)
	}
	name := CommitFileName(cp.Generation)
	if err := writeFileAtomic(dir, name, data); err != nil {
		return err
	}
	if err := syncDir(dir); err != nil {
		Remove(dir, name)
		return err
	}
	return nil
}

// Prune removes commit points older than keep, tombstone files keep does not
// reference, segments no commit references and leftover temp files. Errors
// are returned but leave the index readable.
func Prune(dir string, keep *CommitPoint) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.StorageIO(err, "listing %s", dir)
	}
	live := make(map[string]struct{}, 2*len(keep.Segments))
	for _, s := range keep.Segments {
		live[s.Name] = struct{}{}
		if s.Deletes != "" {
			live[s.Deletes] = struct{}{}
		}
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		remove := false
		switch {
		case strings.HasSuffix(name, tmpSuffix):
			remove = true
		case strings.HasPrefix(name, commitPrefix):
			if gen, ok := parseCommitFileName(name); ok && gen < keep.Generation {
				remove = true
			}
		case strings.HasPrefix(name, deletesPrefix), strings.HasPrefix(name, "seg_"):
			_, used := live[name]
			remove = !used
		}
		if remove {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
