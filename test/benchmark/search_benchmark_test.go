package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
)

// openBenchSearcher indexes docs documents across segments commits and opens
// a searcher over the result.
func openBenchSearcher(b *testing.B, docs, segments int) *searcher.Searcher {
	b.Helper()
	cfg := benchConfig(b)
	w, err := indexer.OpenWriter(cfg)
	if err != nil {
		b.Fatal(err)
	}
	per := docs / segments
	for i := 0; i < docs; i++ {
		if _, err := w.Add(benchDoc(i)); err != nil {
			b.Fatal(err)
		}
		if (i+1)%per == 0 {
			if _, err := w.Commit(); err != nil {
				b.Fatal(err)
			}
		}
	}
	if _, err := w.Commit(); err != nil {
		b.Fatal(err)
	}
	if err := w.Close(); err != nil {
		b.Fatal(err)
	}
	s, err := searcher.Open(cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

// BenchmarkQueryParse measures parsing latency for expressions of varying
// complexity.
func BenchmarkQueryParse(b *testing.B) {
	a := analyzer.NewStandard()
	fields := []string{"title", "body"}
	queries := []struct {
		name  string
		query string
	}{
		{"free_text", "distributed systems"},
		{"boolean_and", "search AND analytics AND platform"},
		{"with_not", "distributed NOT monolithic"},
		{"fielded", "+title:search price:[10 TO 99] -body:ranking"},
		{"long", "distributed search analytics platform indexing query processing ranking caching"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := parser.Parse(q.query, fields, benchSchema, a); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	s := openBenchSearcher(b, 10000, 4)
	ctx := context.Background()
	queries := map[string]query.Query{
		"term":        query.Term("title", "search"),
		"range":       query.Range("price", 100, 200, true, false),
		"multi_field": query.MultiField("distributed ranking", "title", "body"),
		"boolean": query.Bool(
			query.Must(query.Term("body", "search")),
			query.Should(query.Term("title", "engine")),
			query.MustNot(query.AtLeast("price", 400)),
		),
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, q, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearchParallel measures concurrent searches on one snapshot.
func BenchmarkSearchParallel(b *testing.B) {
	s := openBenchSearcher(b, 10000, 4)
	q := query.MultiField("search engine", "title", "body")
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := s.Search(ctx, q, 10); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkSearchSegments shows how the segment count of a snapshot affects
// latency for the same corpus.
func BenchmarkSearchSegments(b *testing.B) {
	q := query.Term("body", "search")
	for _, segs := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("segments_%d", segs), func(b *testing.B) {
			s := openBenchSearcher(b, 8000, segs)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, q, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMerge(b *testing.B) {
	for _, n := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("hits_%d", n), func(b *testing.B) {
			lists := make([][]merger.Hit, 4)
			for l := range lists {
				lists[l] = make([]merger.Hit, n)
				for i := range lists[l] {
					lists[l][i] = merger.Hit{DocID: uint64(l*n + i), Score: float64((i*7919)%1000) / 100}
				}
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = merger.Merge(lists, 10)
			}
		})
	}
}
