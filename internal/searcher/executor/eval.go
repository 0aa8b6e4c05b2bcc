package executor

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/numeric"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

type result struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

type leafEval struct {
	ctx     context.Context
	leaf    Leaf
	stats   map[index.Term]ranker.Stats
	scoring bool
}

func (ev *leafEval) eval(q query.Query) (result, error) {
	r, err := ev.evalNode(q)
	if err != nil {
		return result{}, err
	}
	if ev.leaf.Deleted != nil && !ev.leaf.Deleted.IsEmpty() {
		r.docs.AndNot(ev.leaf.Deleted)
	}
	return r, nil
}

func (ev *leafEval) evalNode(q query.Query) (result, error) {
	if err := ev.ctx.Err(); err != nil {
		return result{}, err
	}
	switch q := q.(type) {
	case query.TermQuery:
		return ev.evalTerm(q)
	case query.NumericRangeQuery:
		return ev.evalRange(q)
	case query.BooleanQuery:
		return ev.evalBoolean(q)
	default:
		// multi-field queries are rewritten before evaluation
		return ev.empty(), nil
	}
}

func (ev *leafEval) empty() result {
	r := result{docs: roaring.New()}
	if ev.scoring {
		r.scores = make(map[uint32]float64)
	}
	return r
}

func (ev *leafEval) evalTerm(q query.TermQuery) (result, error) {
	term := index.Term{Field: q.Field, Token: q.Token}
	postings, err := ev.leaf.Segment.Postings(term)
	if err != nil {
		return result{}, segmentErr(err, "reading postings of %s:%s", q.Field, q.Token)
	}
	r := ev.empty()
	stats := ev.stats[term]
	for _, p := range postings {
		r.docs.Add(p.DocID)
		if ev.scoring {
			r.scores[p.DocID] = ranker.TermScore(p.Frequency, stats)
		}
	}
	return r, nil
}

func (ev *leafEval) evalRange(q query.NumericRangeQuery) (result, error) {
	docs, err := ev.leaf.Segment.NumericRange(q.Field, numeric.Bounds{
		Min:        q.Min,
		Max:        q.Max,
		IncludeMin: q.IncludeMin,
		IncludeMax: q.IncludeMax,
	})
	if err != nil {
		return result{}, segmentErr(err, "reading numeric range of %s", q.Field)
	}
	r := result{docs: docs}
	if ev.scoring {
		r.scores = make(map[uint32]float64, docs.GetCardinality())
		it := docs.Iterator()
		for it.HasNext() {
			r.scores[it.Next()] = ranker.RangeScore
		}
	}
	return r, nil
}

func (ev *leafEval) evalBoolean(q query.BooleanQuery) (result, error) {
	var musts, shoulds []result
	excluded := roaring.New()
	for _, c := range q.Clauses {
		r, err := ev.evalNode(c.Query)
		if err != nil {
			return result{}, err
		}
		switch c.Occur {
		case query.OccurMust:
			musts = append(musts, r)
		case query.OccurShould:
			shoulds = append(shoulds, r)
		case query.OccurMustNot:
			excluded.Or(r.docs)
		}
	}

	var docs *roaring.Bitmap
	switch {
	case len(musts) > 0:
		docs = musts[0].docs.Clone()
		for _, r := range musts[1:] {
			docs.And(r.docs)
		}
	case len(shoulds) > 0:
		docs = roaring.New()
		for _, r := range shoulds {
			docs.Or(r.docs)
		}
	default:
		docs = roaring.New()
	}
	docs.AndNot(excluded)

	out := result{docs: docs}
	if ev.scoring {
		out.scores = make(map[uint32]float64, docs.GetCardinality())
		for _, group := range [][]result{musts, shoulds} {
			for _, r := range group {
				for doc, s := range r.scores {
					if docs.Contains(doc) {
						out.scores[doc] += s
					}
				}
			}
		}
	}
	return out, nil
}

// segmentErr types a segment read failure as ErrStorageIO. Errors that are
// already typed, and context cancellation, pass through unchanged.
func segmentErr(err error, format string, args ...any) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.StorageIO(err, format, args...)
}
