// Package integration exercises the writer, searchers, cache and ingestion
// pipeline together over a real index directory. Tests that need Redis skip
// when it is unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func testConfig(t *testing.T) (*config.Config, indexer.Config) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Index.Dir = t.TempDir()
	s, err := schema.FromConfig(cfg.Index.Schema)
	if err != nil {
		t.Fatalf("schema.FromConfig: %v", err)
	}
	a, err := analyzer.New(cfg.Index.Analyzer)
	if err != nil {
		t.Fatalf("analyzer.New: %v", err)
	}
	return cfg, indexer.Config{Dir: cfg.Index.Dir, Schema: s, Analyzer: a}
}

var books = ingestion.SliceSource{
	{"id": int64(1), "name": "Effective Java", "price": 59.9, "pic": "1.png", "description": "java programming best practices"},
	{"id": int64(2), "name": "Clean Code", "price": 45.0, "pic": "2.png", "description": "java craftsmanship"},
	{"id": int64(3), "name": "Lucene in Action", "price": 65.0, "pic": "3.png", "description": "java lucene search"},
}

func rebuild(t *testing.T, icfg indexer.Config, src ingestion.Source) {
	t.Helper()
	w, err := indexer.OpenWriter(icfg)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()
	if _, err := ingestion.NewBuilder(w, ingestion.NewMapper(icfg.Schema)).Rebuild(context.Background(), src); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
}

func storedIDs(t *testing.T, s *searcher.Searcher, td *searcher.TopDocs) []string {
	t.Helper()
	var ids []string
	for _, h := range td.Hits {
		doc, err := s.Document(h.DocID)
		if err != nil {
			t.Fatalf("Document(%d): %v", h.DocID, err)
		}
		v, _ := doc.Get("id")
		ids = append(ids, v.Text())
	}
	return ids
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestParsedQueriesOverRebuiltIndex(t *testing.T) {
	cfg, icfg := testConfig(t)
	rebuild(t, icfg, books)

	s, err := searcher.Open(icfg)
	if err != nil {
		t.Fatalf("searcher.Open: %v", err)
	}
	defer s.Close()

	tests := []struct {
		expr string
		want int
	}{
		{"lucene", 1},
		{"java", 3},
		{"price:[50 TO 70] AND description:java", 2},
		{"java -name:clean", 2},
		{"id:2", 1},
		{"price:{45 TO *]", 2},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			q, err := parser.Parse(tt.expr, cfg.Index.DefaultFields, icfg.Schema, icfg.Analyzer)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			td, err := s.Search(context.Background(), q, 10)
			if err != nil {
				t.Fatalf("Search(%s): %v", q, err)
			}
			if td.TotalHits != tt.want {
				t.Errorf("%s: expected %d hits, got %d (%v)", q, tt.want, td.TotalHits, storedIDs(t, s, td))
			}
		})
	}
}

func TestSearchersSeeConsistentSnapshotsDuringCommits(t *testing.T) {
	_, icfg := testConfig(t)
	w, err := indexer.OpenWriter(icfg)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	const rounds = 20
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				s, err := searcher.Open(icfg)
				if err != nil {
					errs <- err
					return
				}
				td, err := s.Search(ctx, query.Term("description", "batch"), 1000)
				if err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
					s.Close()
					return
				}
				// Each commit adds a full batch of five, so a snapshot never
				// shows a partial one.
				if err == nil && td.TotalHits%5 != 0 {
					errs <- fmt.Errorf("generation %d shows %d hits", s.Generation(), td.TotalHits)
				}
				s.Close()
			}
		}()
	}

	for i := 0; i < rounds; i++ {
		for j := 0; j < 5; j++ {
			doc := schema.NewDocument().
				Add("id", schema.Text(fmt.Sprintf("%d-%d", i, j))).
				Add("name", schema.Text("batch item")).
				Add("description", schema.Text("batch"))
			if _, err := w.Add(doc); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := w.Commit(); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}
	cancel()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	s, err := searcher.Open(icfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.NumDocs() != 5*rounds || s.Generation() != rounds {
		t.Errorf("expected %d docs at generation %d, got %d at %d", 5*rounds, rounds, s.NumDocs(), s.Generation())
	}
}

func TestUpdateSurvivesRestart(t *testing.T) {
	_, icfg := testConfig(t)
	rebuild(t, icfg, books)

	w, err := indexer.OpenWriter(icfg)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ingestion.NewMapper(icfg.Schema).Map(ingestion.Record{
		"id": "2", "name": "Clean Code, 2nd edition", "price": 49.0, "description": "java craftsmanship revised",
	})
	if err != nil {
		t.Fatal(err)
	}
	newID, err := w.UpdateByTerm(context.Background(), query.Term("id", "2"), doc)
	if err != nil {
		t.Fatalf("UpdateByTerm: %v", err)
	}
	if _, err := w.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := searcher.Open(icfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.NumDocs() != 3 || s.MaxDoc() != 4 {
		t.Errorf("expected 3 live of 4, got %d of %d", s.NumDocs(), s.MaxDoc())
	}
	if _, err := s.Document(1); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("old version must be gone, got %v", err)
	}
	td, err := s.Search(context.Background(), query.Term("description", "revised"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if td.TotalHits != 1 || td.Hits[0].DocID != newID {
		t.Errorf("expected new version %d, got %+v", newID, td)
	}
}

func TestRedisCacheFollowsGenerations(t *testing.T) {
	cfg, icfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := pkgredis.NewClient(ctx, config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		PoolSize: 2,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	defer client.Close()

	qc := cache.New(client, time.Minute, nil)
	if err := qc.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	defer qc.Invalidate(context.Background())

	rebuild(t, icfg, books[:2])
	s, err := searcher.Open(icfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { s.Close() }()

	q, err := parser.Parse("java", cfg.Index.DefaultFields, icfg.Schema, icfg.Analyzer)
	if err != nil {
		t.Fatal(err)
	}
	search := func() (*searcher.TopDocs, error) { return s.Search(ctx, q, 10) }

	td, hit, err := qc.GetOrCompute(ctx, s.CommitID(), q, 10, search)
	if err != nil || hit || td.TotalHits != 2 {
		t.Fatalf("first lookup: hit=%v td=%+v err=%v", hit, td, err)
	}
	if _, hit, _ = qc.GetOrCompute(ctx, s.CommitID(), q, 10, search); !hit {
		t.Error("second lookup must hit")
	}

	rebuild(t, icfg, books)
	next, changed, err := s.Reopen()
	if err != nil || !changed {
		t.Fatalf("Reopen: changed=%v err=%v", changed, err)
	}
	s.Close()
	s = next

	td, hit, err = qc.GetOrCompute(ctx, s.CommitID(), q, 10, search)
	if err != nil || hit || td.TotalHits != 3 {
		t.Errorf("new generation must miss and see 3 hits: hit=%v td=%+v err=%v", hit, td, err)
	}
}
