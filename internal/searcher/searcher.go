// Package searcher opens a read-only, point-in-time view of an index. A
// Searcher sees exactly the segments and tombstones of the commit that was
// current when it was opened; later commits need a Reopen.
package searcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	"github.com/hashicorp/go-multierror"
)

// openAttempts bounds retries when a concurrent commit prunes files between
// reading the commit point and loading what it references.
const openAttempts = 3

type Hit = merger.Hit

// TopDocs is a ranked result page. TotalHits counts every match, not just
// the returned hits.
type TopDocs struct {
	TotalHits int   `json:"total_hits"`
	Hits      []Hit `json:"hits"`
}

type Option func(*Searcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

type Searcher struct {
	cfg     indexer.Config
	opts    []Option
	commit  *directory.CommitPoint
	readers []*segment.Reader
	leaves  []executor.Leaf
	exec    *executor.Executor
	logger  *slog.Logger
	metrics *metrics.Metrics
	maxDoc  uint64
	numDocs uint64
	closed  atomic.Bool
}

// Open loads the latest commit of cfg.Dir. An index that was never committed
// opens as an empty snapshot at generation 0.
func Open(cfg indexer.Config, opts ...Option) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < openAttempts; attempt++ {
		s, err := open(cfg, opts)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func open(cfg indexer.Config, opts []Option) (*Searcher, error) {
	s := &Searcher{
		cfg:    cfg,
		opts:   opts,
		exec:   executor.New(cfg.Schema, cfg.Analyzer),
		logger: slog.Default().With("component", "searcher", "dir", cfg.Dir),
	}
	for _, opt := range opts {
		opt(s)
	}
	cp, err := directory.ReadLatest(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return s, nil
	}
	if err := cp.CheckSchema(cfg.Schema, cfg.Analyzer.Name()); err != nil {
		return nil, err
	}
	for _, info := range cp.Segments {
		reader, err := segment.OpenReader(cfg.Dir, info.Name)
		if err != nil {
			s.Close()
			return nil, apperrors.StorageIO(err, "opening segment %s", info.Name)
		}
		s.readers = append(s.readers, reader)
		deleted, err := directory.ReadDeletes(cfg.Dir, info.Deletes)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.logger.Debug("segment opened",
			"segment", reader.Name(),
			"base", s.maxDoc,
			"max_doc", reader.MaxDoc(),
			"deleted", deleted.GetCardinality(),
		)
		s.leaves = append(s.leaves, executor.Leaf{Segment: reader, Base: s.maxDoc, Deleted: deleted})
		s.maxDoc += uint64(reader.MaxDoc())
		s.numDocs += uint64(reader.MaxDoc()) - deleted.GetCardinality()
	}
	s.commit = cp
	s.logger.Debug("searcher opened",
		"generation", cp.Generation,
		"segments", len(s.readers),
		"num_docs", s.numDocs,
	)
	return s, nil
}

// Search returns the best limit documents matching q, ordered by descending
// score and then ascending doc ID.
func (s *Searcher) Search(ctx context.Context, q query.Query, limit int) (*TopDocs, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrClosed
	}
	start := time.Now()
	res, err := s.exec.Execute(ctx, q, s.leaves, limit)
	s.observe(start, res, err)
	if err != nil {
		return nil, err
	}
	return &TopDocs{TotalHits: res.TotalHits, Hits: res.Hits}, nil
}

func (s *Searcher) observe(start time.Time, res *executor.Result, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	case res.TotalHits == 0:
		s.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		s.metrics.SearchResultsCount.Observe(0)
	default:
		s.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
		s.metrics.SearchResultsCount.Observe(float64(len(res.Hits)))
	}
}

// Document returns the stored fields of docID. Deleted and unknown IDs fail
// with ErrDocumentNotFound.
func (s *Searcher) Document(docID uint64) (*schema.Document, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrClosed
	}
	if docID >= s.maxDoc {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d is beyond max doc %d", docID, s.maxDoc)
	}
	i := sort.Search(len(s.leaves), func(i int) bool {
		return s.leaves[i].Base > docID
	}) - 1
	leaf := s.leaves[i]
	local := uint32(docID - leaf.Base)
	if leaf.Deleted.Contains(local) {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d is deleted", docID)
	}
	fields, err := s.readers[i].Stored(local)
	if err != nil {
		return nil, apperrors.StorageIO(err, "reading doc %d", docID)
	}
	return schema.NewDocument(fields...), nil
}

// Generation is the commit generation this snapshot reflects.
func (s *Searcher) Generation() uint64 {
	if s.commit == nil {
		return 0
	}
	return s.commit.Generation
}

// CommitID identifies the commit this snapshot reflects. Unlike the
// generation it is never reused, even when the directory is wiped and
// rebuilt. It is empty for an index that was never committed.
func (s *Searcher) CommitID() string {
	if s.commit == nil {
		return ""
	}
	return s.commit.ID
}

// NumDocs counts live documents.
func (s *Searcher) NumDocs() uint64 { return s.numDocs }

// MaxDoc is one past the largest doc ID, deleted documents included.
func (s *Searcher) MaxDoc() uint64 { return s.maxDoc }

// Schema is the field schema the snapshot was opened and verified with.
func (s *Searcher) Schema() *schema.Schema { return s.cfg.Schema }

// Reopen returns a Searcher over the latest commit and true if it is newer
// than this one, or s itself and false. The caller closes the old Searcher.
func (s *Searcher) Reopen() (*Searcher, bool, error) {
	if s.closed.Load() {
		return nil, false, apperrors.ErrClosed
	}
	latest, err := directory.LatestGeneration(s.cfg.Dir)
	if err != nil {
		return nil, false, err
	}
	if latest <= s.Generation() {
		return s, false, nil
	}
	next, err := Open(s.cfg, s.opts...)
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// Close releases segment files. Closing twice is a no-op.
func (s *Searcher) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var result *multierror.Error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
