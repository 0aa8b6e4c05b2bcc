package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/resilience"
)

// IndexWriter is the part of *indexer.Writer a rebuild drives.
type IndexWriter interface {
	Add(doc *schema.Document) (uint64, error)
	DeleteAll() (int, error)
	Commit() (indexer.CommitInfo, error)
}

// Builder performs full rebuilds: every existing document is deleted, every
// source record is added, and the result becomes visible in a single commit.
type Builder struct {
	writer IndexWriter
	mapper *Mapper
	retry  resilience.RetryConfig
	logger *slog.Logger
}

type BuilderOption func(*Builder)

// WithCommitRetry retries failed commits. Only ErrCommitFailure is retried;
// the writer keeps its buffer between attempts.
func WithCommitRetry(cfg resilience.RetryConfig) BuilderOption {
	return func(b *Builder) {
		cfg.Retryable = func(err error) bool {
			return errors.Is(err, apperrors.ErrCommitFailure)
		}
		b.retry = cfg
	}
}

func NewBuilder(w IndexWriter, m *Mapper, opts ...BuilderOption) *Builder {
	b := &Builder{
		writer: w,
		mapper: m,
		retry:  resilience.RetryConfig{MaxAttempts: 1},
		logger: slog.Default().With("component", "index-builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rebuild replaces the index content with src. If reading or mapping fails
// nothing is committed; the writer then holds a partial rebuild and must be
// closed to discard it.
func (b *Builder) Rebuild(ctx context.Context, src Source) (*BuildReport, error) {
	start := time.Now()
	deleted, err := b.writer.DeleteAll()
	if err != nil {
		return nil, fmt.Errorf("clearing index: %w", err)
	}
	report := &BuildReport{Deleted: deleted}
	for rec, err := range src.FetchAll(ctx) {
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", report.Records+1, err)
		}
		doc, err := b.mapper.Map(rec)
		if err != nil {
			return nil, fmt.Errorf("mapping record %d: %w", report.Records+1, err)
		}
		if _, err := b.writer.Add(doc); err != nil {
			return nil, fmt.Errorf("adding record %d: %w", report.Records+1, err)
		}
		report.Records++
		if report.Records%10000 == 0 {
			b.logger.Info("rebuild progress", "records", report.Records)
		}
	}

	var info indexer.CommitInfo
	err = resilience.Retry(ctx, "index-commit", b.retry, func() error {
		var cerr error
		info, cerr = b.writer.Commit()
		return cerr
	})
	if err != nil {
		return nil, err
	}
	report.Generation = info.Generation
	report.NumDocs = info.NumDocs
	report.Duration = time.Since(start)
	b.logger.Info("rebuild complete",
		"records", report.Records,
		"deleted", report.Deleted,
		"generation", report.Generation,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}
