// Package indexer implements the single writer of an index directory. A
// Writer buffers added documents and deletions in memory and makes them
// visible atomically on Commit by writing a new segment, per-segment
// tombstone files and finally a new commit point.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Config locates an index and fixes how its documents are interpreted.
type Config struct {
	Dir      string
	Schema   *schema.Schema
	Analyzer analyzer.Analyzer
}

// Validate reports a Config that cannot open an index.
func (c Config) Validate() error {
	if c.Dir == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "index directory must be set")
	}
	if c.Schema == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "schema must be set")
	}
	if c.Analyzer == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "analyzer must be set")
	}
	return nil
}

// CommitInfo describes the commit point a Commit produced or, for a no-op
// commit, the one already current.
type CommitInfo struct {
	Generation  uint64    `json:"generation"`
	ID          string    `json:"id"`
	Segments    int       `json:"segments"`
	MaxDoc      uint64    `json:"max_doc"`
	NumDocs     uint64    `json:"num_docs"`
	CommittedAt time.Time `json:"committed_at"`
	Changed     bool      `json:"changed"`
}

type Option func(*Writer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithCommitHook registers fn to run after every commit that changed the
// index. It is called with the writer lock held and must not call back into
// the Writer.
func WithCommitHook(fn func(CommitInfo)) Option {
	return func(w *Writer) { w.hooks = append(w.hooks, fn) }
}

// committedSegment is a segment of the current commit together with the
// tombstones the next commit will record for it.
type committedSegment struct {
	info    directory.SegmentInfo
	reader  *segment.Reader
	deleted *roaring.Bitmap
	dirty   bool
}

type Writer struct {
	mu       sync.Mutex
	cfg      Config
	lock     *directory.Lock
	segWrite *segment.Writer
	exec     *executor.Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	hooks    []func(CommitInfo)

	commit   *directory.CommitPoint
	segments []*committedSegment
	base     uint64

	pending        *index.MemoryIndex
	pendingDeleted *roaring.Bitmap
	dirty          bool
	closed         bool
}

// OpenWriter takes the writer lock on cfg.Dir and loads the latest commit.
// A second writer on the same directory fails with ErrWriterLockHeld; an
// existing index built with a different schema or analyzer fails with
// ErrSchemaMismatch.
func OpenWriter(cfg Config, opts ...Option) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lock, err := directory.AcquireLock(cfg.Dir)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		cfg:            cfg,
		lock:           lock,
		segWrite:       segment.NewWriter(cfg.Dir),
		exec:           executor.New(cfg.Schema, cfg.Analyzer),
		logger:         slog.Default().With("component", "index-writer", "dir", cfg.Dir),
		pending:        index.NewMemoryIndex(cfg.Schema, cfg.Analyzer),
		pendingDeleted: roaring.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.load(); err != nil {
		var result *multierror.Error
		result = multierror.Append(result, err)
		if cerr := w.closeSegments(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if rerr := lock.Release(); rerr != nil {
			result = multierror.Append(result, rerr)
		}
		return nil, result.ErrorOrNil()
	}
	w.logger.Info("index writer opened",
		"generation", w.generation(),
		"segments", len(w.segments),
		"max_doc", w.base,
	)
	return w, nil
}

func (w *Writer) load() error {
	cp, err := directory.ReadLatest(w.cfg.Dir)
	if err != nil {
		return err
	}
	if cp == nil {
		return nil
	}
	if err := cp.CheckSchema(w.cfg.Schema, w.cfg.Analyzer.Name()); err != nil {
		return err
	}
	for _, info := range cp.Segments {
		reader, err := segment.OpenReader(w.cfg.Dir, info.Name)
		if err != nil {
			return apperrors.StorageIO(err, "loading segment %s", info.Name)
		}
		w.segments = append(w.segments, &committedSegment{info: info, reader: reader})
		deleted, err := directory.ReadDeletes(w.cfg.Dir, info.Deletes)
		if err != nil {
			return err
		}
		w.segments[len(w.segments)-1].deleted = deleted
		w.base += uint64(info.MaxDoc)
	}
	w.commit = cp
	w.setLiveSegments()
	return nil
}

// Add validates doc against the schema, buffers it and returns the doc ID it
// will have once committed.
func (w *Writer) Add(doc *schema.Document) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	if err := w.cfg.Schema.Validate(doc); err != nil {
		return 0, err
	}
	return w.addLocked(doc), nil
}

func (w *Writer) addLocked(doc *schema.Document) uint64 {
	local := w.pending.AddDocument(doc)
	w.dirty = true
	if w.metrics != nil {
		w.metrics.DocsAddedTotal.Inc()
	}
	return w.base + uint64(local)
}

// DeleteByQuery tombstones every live document matching q, committed or
// pending, and returns how many were deleted. The deletion becomes durable on
// the next commit.
func (w *Writer) DeleteByQuery(ctx context.Context, q query.Query) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	return w.deleteLocked(ctx, q)
}

func (w *Writer) deleteLocked(ctx context.Context, q query.Query) (int, error) {
	leaves := make([]executor.Leaf, 0, len(w.segments)+1)
	for _, s := range w.segments {
		leaves = append(leaves, executor.Leaf{Segment: s.reader, Deleted: s.deleted})
	}
	leaves = append(leaves, executor.Leaf{Segment: w.pending, Deleted: w.pendingDeleted})

	matches, err := w.exec.Match(ctx, q, leaves)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, m := range matches {
		if m.IsEmpty() {
			continue
		}
		n += int(m.GetCardinality())
		if i < len(w.segments) {
			w.segments[i].deleted.Or(m)
			w.segments[i].dirty = true
		} else {
			w.pendingDeleted.Or(m)
		}
	}
	if n > 0 {
		w.dirty = true
		if w.metrics != nil {
			w.metrics.DocsDeletedTotal.Add(float64(n))
		}
	}
	w.logger.Debug("delete by query", "query", q.String(), "deleted", n)
	return n, nil
}

// UpdateByTerm replaces every live document containing term with doc. doc is
// validated before anything is deleted, so a rejected document leaves the
// index untouched.
func (w *Writer) UpdateByTerm(ctx context.Context, term query.TermQuery, doc *schema.Document) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	if err := w.cfg.Schema.Validate(doc); err != nil {
		return 0, err
	}
	if _, err := w.deleteLocked(ctx, term); err != nil {
		return 0, err
	}
	return w.addLocked(doc), nil
}

// DeleteAll tombstones every document, committed and pending.
func (w *Writer) DeleteAll() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	n := 0
	for _, s := range w.segments {
		before := s.deleted.GetCardinality()
		s.deleted.AddRange(0, uint64(s.info.MaxDoc))
		if added := s.deleted.GetCardinality() - before; added > 0 {
			n += int(added)
			s.dirty = true
		}
	}
	before := w.pendingDeleted.GetCardinality()
	w.pendingDeleted.AddRange(0, uint64(w.pending.MaxDoc()))
	n += int(w.pendingDeleted.GetCardinality() - before)
	if n > 0 {
		w.dirty = true
		if w.metrics != nil {
			w.metrics.DocsDeletedTotal.Add(float64(n))
		}
	}
	return n, nil
}

// Commit makes all buffered changes durable and visible to searchers opened
// afterwards. With nothing buffered it is a no-op. On failure the previous
// commit stays current, files written by the attempt are removed and the
// buffer is kept so the caller can retry.
func (w *Writer) Commit() (CommitInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return CommitInfo{}, apperrors.ErrClosed
	}
	if !w.dirty {
		w.observeCommit("noop", 0)
		return w.info(false), nil
	}
	start := time.Now()
	bufferBytes := w.pending.Size()
	info, err := w.commitLocked()
	if err != nil {
		w.observeCommit("error", time.Since(start))
		w.logger.Error("commit failed", "generation", w.generation()+1, "error", err)
		return CommitInfo{}, apperrors.Wrap(apperrors.ErrCommitFailure, err, "commit aborted")
	}
	w.observeCommit("ok", time.Since(start))
	w.logger.Info("commit complete",
		"generation", info.Generation,
		"segments", info.Segments,
		"num_docs", info.NumDocs,
		"max_doc", info.MaxDoc,
		"buffer_bytes", bufferBytes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, hook := range w.hooks {
		hook(info)
	}
	return info, nil
}

func (w *Writer) commitLocked() (CommitInfo, error) {
	gen := w.generation() + 1
	var created []string
	abort := func(newReader *segment.Reader) {
		if newReader != nil {
			newReader.Close()
		}
		directory.Remove(w.cfg.Dir, created...)
	}

	var (
		newSeg     *committedSegment
		newSegName string
	)
	if w.pending.DocCount() > 0 {
		name, err := w.segWrite.Write(w.pending.Snapshot())
		if err != nil {
			return CommitInfo{}, apperrors.StorageIO(err, "writing segment")
		}
		created = append(created, name)
		reader, err := segment.OpenReader(w.cfg.Dir, name)
		if err != nil {
			abort(nil)
			return CommitInfo{}, apperrors.StorageIO(err, "reopening segment %s", name)
		}
		newSegName = name
		newSeg = &committedSegment{
			info:    directory.SegmentInfo{Name: name, MaxDoc: reader.MaxDoc()},
			reader:  reader,
			deleted: w.pendingDeleted.Clone(),
			dirty:   !w.pendingDeleted.IsEmpty(),
		}
	}

	all := w.segments
	if newSeg != nil {
		all = append(all[:len(all):len(all)], newSeg)
	}
	infos := make([]directory.SegmentInfo, len(all))
	for i, s := range all {
		info := s.info
		if s.dirty {
			name, err := directory.WriteDeletes(w.cfg.Dir, gen, info.Name, s.deleted)
			if err != nil {
				abort(readerOf(newSeg))
				return CommitInfo{}, err
			}
			created = append(created, name)
			info.Deletes = name
			info.DelCount = s.deleted.GetCardinality()
		}
		infos[i] = info
	}

	cp := &directory.CommitPoint{
		Generation:  gen,
		ID:          uuid.NewString(),
		Analyzer:    w.cfg.Analyzer.Name(),
		Schema:      w.cfg.Schema.Fields(),
		Segments:    infos,
		CommittedAt: time.Now().UTC(),
	}
	if err := directory.WriteCommit(w.cfg.Dir, cp); err != nil {
		abort(readerOf(newSeg))
		return CommitInfo{}, err
	}

	for i, s := range all {
		s.info = infos[i]
		s.dirty = false
	}
	w.segments = all
	w.commit = cp
	w.base = cp.MaxDoc()
	w.pending.Reset()
	w.pendingDeleted = roaring.New()
	w.dirty = false
	w.setLiveSegments()

	if err := directory.Prune(w.cfg.Dir, cp); err != nil {
		w.logger.Warn("pruning stale index files failed", "generation", gen, "error", err)
	}
	if newSegName != "" {
		w.logger.Debug("segment written", "segment", newSegName, "docs", newSeg.info.MaxDoc, "terms", newSeg.reader.Terms())
	}
	return w.info(true), nil
}

func readerOf(s *committedSegment) *segment.Reader {
	if s == nil {
		return nil
	}
	return s.reader
}

// Close discards anything not yet committed, closes segment readers and
// releases the writer lock. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.dirty {
		w.logger.Warn("discarding uncommitted changes",
			"pending_docs", w.pending.DocCount(),
			"pending_deletes", w.pendingDeleted.GetCardinality(),
		)
	}
	var result *multierror.Error
	if err := w.closeSegments(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.lock.Release(); err != nil {
		result = multierror.Append(result, err)
	}
	w.logger.Info("index writer closed", "generation", w.generation())
	return result.ErrorOrNil()
}

func (w *Writer) closeSegments() error {
	var result *multierror.Error
	for _, s := range w.segments {
		if err := s.reader.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing segment %s: %w", s.info.Name, err))
		}
	}
	w.segments = nil
	return result.ErrorOrNil()
}

// Generation returns the generation of the last successful commit, 0 before
// the first one.
func (w *Writer) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation()
}

// PendingDocs reports how many documents are buffered for the next commit.
func (w *Writer) PendingDocs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.DocCount()
}

func (w *Writer) generation() uint64 {
	if w.commit == nil {
		return 0
	}
	return w.commit.Generation
}

func (w *Writer) info(changed bool) CommitInfo {
	if w.commit == nil {
		return CommitInfo{Changed: changed}
	}
	return CommitInfo{
		Generation:  w.commit.Generation,
		ID:          w.commit.ID,
		Segments:    len(w.commit.Segments),
		MaxDoc:      w.commit.MaxDoc(),
		NumDocs:     w.commit.NumDocs(),
		CommittedAt: w.commit.CommittedAt,
		Changed:     changed,
	}
}

func (w *Writer) observeCommit(status string, d time.Duration) {
	if w.metrics == nil {
		return
	}
	w.metrics.CommitsTotal.WithLabelValues(status).Inc()
	if status != "noop" {
		w.metrics.CommitLatency.Observe(d.Seconds())
	}
}

func (w *Writer) setLiveSegments() {
	if w.metrics != nil {
		w.metrics.LiveSegments.Set(float64(len(w.segments)))
	}
}
