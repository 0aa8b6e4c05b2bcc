// Package executor evaluates query trees against a fixed set of segments.
// Each segment is evaluated independently, in parallel, and yields
// segment-local matches that are shifted by the segment's base into
// snapshot-wide doc IDs.
package executor

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// Leaf is one segment as seen by a snapshot: its reader, the snapshot-wide ID
// of its first document and the documents deleted as of the snapshot.
type Leaf struct {
	Segment index.Segment
	Base    uint64
	Deleted *roaring.Bitmap
}

// Result is the outcome of a ranked search.
type Result struct {
	TotalHits int
	Hits      []merger.Hit
}

type Executor struct {
	schema   *schema.Schema
	analyzer analyzer.Analyzer
	logger   *slog.Logger
}

func New(s *schema.Schema, a analyzer.Analyzer) *Executor {
	return &Executor{
		schema:   s,
		analyzer: a,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Match returns, per leaf, the segment-local documents matching q. Deleted
// documents are excluded. No scores are computed.
func (e *Executor) Match(ctx context.Context, q query.Query, leaves []Leaf) ([]*roaring.Bitmap, error) {
	prepared, err := e.Prepare(q)
	if err != nil {
		return nil, err
	}
	out := make([]*roaring.Bitmap, len(leaves))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, leaf := range leaves {
		g.Go(func() error {
			ev := &leafEval{ctx: gctx, leaf: leaf}
			r, err := ev.eval(prepared)
			if err != nil {
				return err
			}
			out[i] = r.docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Execute ranks the documents matching q and returns the best limit of them.
func (e *Executor) Execute(ctx context.Context, q query.Query, leaves []Leaf, limit int) (*Result, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "limit must be positive, got %d", limit)
	}
	prepared, err := e.Prepare(q)
	if err != nil {
		return nil, err
	}
	stats := collectStats(prepared, leaves)

	perLeaf := make([][]merger.Hit, len(leaves))
	counts := make([]int, len(leaves))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, leaf := range leaves {
		g.Go(func() error {
			ev := &leafEval{ctx: gctx, leaf: leaf, stats: stats, scoring: true}
			r, err := ev.eval(prepared)
			if err != nil {
				return err
			}
			matched := r.docs.GetCardinality()
			counts[i] = int(matched)
			if matched == 0 {
				return nil
			}
			top := merger.NewTopK(int(min(uint64(limit), matched)))
			it := r.docs.Iterator()
			for it.HasNext() {
				local := it.Next()
				top.Collect(merger.Hit{
					DocID: leaf.Base + uint64(local),
					Score: ranker.Round(r.scores[local]),
				})
			}
			perLeaf[i] = top.Hits()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	hits := merger.Merge(perLeaf, limit)
	e.logger.Debug("query executed",
		"query", q.String(),
		"segments", len(leaves),
		"total_hits", total,
		"returned", len(hits),
	)
	return &Result{TotalHits: total, Hits: hits}, nil
}

// Prepare validates q against the schema and rewrites multi-field text
// queries into a SHOULD of term queries.
func (e *Executor) Prepare(q query.Query) (query.Query, error) {
	if err := e.validate(q); err != nil {
		return nil, err
	}
	return e.rewrite(q), nil
}

func (e *Executor) validate(q query.Query) error {
	switch q := q.(type) {
	case query.TermQuery:
		spec, err := e.indexedField(q.Field)
		if err != nil {
			return err
		}
		if spec.Numeric {
			return apperrors.Newf(apperrors.ErrTypeMismatch, "term query on numeric field %q", q.Field)
		}
	case query.NumericRangeQuery:
		spec, err := e.indexedField(q.Field)
		if err != nil {
			return err
		}
		if !spec.Numeric {
			return apperrors.Newf(apperrors.ErrTypeMismatch, "range query on text field %q", q.Field)
		}
		if math.IsNaN(q.Min) || math.IsNaN(q.Max) {
			return apperrors.Newf(apperrors.ErrInvalidInput, "range on %q has a NaN bound", q.Field)
		}
	case query.BooleanQuery:
		if len(q.Clauses) == 0 {
			return apperrors.New(apperrors.ErrEmptyBooleanQuery, "boolean query has no clauses")
		}
		for i, c := range q.Clauses {
			if c.Occur < query.OccurMust || c.Occur > query.OccurMustNot {
				return apperrors.Newf(apperrors.ErrInvalidInput, "clause %d has invalid occur %d", i, int(c.Occur))
			}
			if c.Query == nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, "clause %d has no query", i)
			}
			if err := e.validate(c.Query); err != nil {
				return err
			}
		}
	case query.MultiFieldTextQuery:
		if len(q.Fields) == 0 {
			return apperrors.New(apperrors.ErrInvalidInput, "multi-field query names no fields")
		}
		for _, name := range q.Fields {
			spec, err := e.indexedField(name)
			if err != nil {
				return err
			}
			if spec.Numeric {
				return apperrors.Newf(apperrors.ErrTypeMismatch, "text query on numeric field %q", name)
			}
		}
	case nil:
		return apperrors.New(apperrors.ErrInvalidInput, "nil query")
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "unsupported query type %T", q)
	}
	return nil
}

func (e *Executor) indexedField(name string) (schema.FieldSpec, error) {
	spec, ok := e.schema.Field(name)
	if !ok {
		return spec, apperrors.Newf(apperrors.ErrUnknownField, "field %q is not declared", name)
	}
	if !spec.Indexed {
		return spec, apperrors.Newf(apperrors.ErrTypeMismatch, "field %q is not indexed", name)
	}
	return spec, nil
}

func (e *Executor) rewrite(q query.Query) query.Query {
	switch q := q.(type) {
	case query.BooleanQuery:
		clauses := make([]query.Clause, len(q.Clauses))
		for i, c := range q.Clauses {
			clauses[i] = query.Clause{Occur: c.Occur, Query: e.rewrite(c.Query)}
		}
		return query.BooleanQuery{Clauses: clauses}
	case query.MultiFieldTextQuery:
		return e.expandMultiField(q)
	default:
		return q
	}
}

// expandMultiField analyzes the text once. Untokenized fields get the trimmed
// raw text as a single exact term. Text producing no terms yields an empty
// boolean, which matches nothing.
func (e *Executor) expandMultiField(q query.MultiFieldTextQuery) query.BooleanQuery {
	tokens := analyzer.UniqueTerms(e.analyzer, q.Text)
	raw := strings.TrimSpace(q.Text)
	var clauses []query.Clause
	for _, name := range q.Fields {
		spec, _ := e.schema.Field(name)
		if !spec.Tokenized {
			if raw != "" {
				clauses = append(clauses, query.Should(query.Term(name, raw)))
			}
			continue
		}
		for _, tok := range tokens {
			clauses = append(clauses, query.Should(query.Term(name, tok)))
		}
	}
	return query.BooleanQuery{Clauses: clauses}
}

// collectStats sums document frequencies of every term in q across leaves.
// Totals include deleted documents so that scores do not depend on delete
// timing within a segment.
func collectStats(q query.Query, leaves []Leaf) map[index.Term]ranker.Stats {
	var total int64
	for _, leaf := range leaves {
		total += int64(leaf.Segment.MaxDoc())
	}
	stats := make(map[index.Term]ranker.Stats)
	walkTerms(q, func(t index.Term) {
		if _, done := stats[t]; done {
			return
		}
		var df int64
		for _, leaf := range leaves {
			df += int64(leaf.Segment.DocFreq(t))
		}
		stats[t] = ranker.Stats{TotalDocs: total, DocFreq: df}
	})
	return stats
}

func walkTerms(q query.Query, fn func(index.Term)) {
	switch q := q.(type) {
	case query.TermQuery:
		fn(index.Term{Field: q.Field, Token: q.Token})
	case query.BooleanQuery:
		for _, c := range q.Clauses {
			walkTerms(c.Query, fn)
		}
	}
}
