package cache

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

var javaQuery = query.Term("description", "java")

const (
	commitA = "8f0c2a36-0b7e-4d55-9a43-3c1a6f0d9e01"
	commitB = "1d4e7b90-52c3-4f6a-8e2d-7a9b0c3e5f12"
)

func sampleResult() *searcher.TopDocs {
	return &searcher.TopDocs{
		TotalHits: 2,
		Hits:      []searcher.Hit{{DocID: 2, Score: 1.5}, {DocID: 0, Score: 0.75}},
	}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	store := newMemStore()
	m := metrics.New(prometheus.NewRegistry())
	c := New(store, time.Minute, m)
	ctx := context.Background()

	calls := 0
	compute := func() (*searcher.TopDocs, error) {
		calls++
		return sampleResult(), nil
	}
	first, hit, err := c.GetOrCompute(ctx, commitA, javaQuery, 10, compute)
	if err != nil || hit {
		t.Fatalf("first call: hit=%t err=%v", hit, err)
	}
	second, hit, err := c.GetOrCompute(ctx, commitA, javaQuery, 10, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%t err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("expected one computation, got %d", calls)
	}
	if second.TotalHits != first.TotalHits || len(second.Hits) != 2 || second.Hits[0] != first.Hits[0] {
		t.Errorf("cached result differs: %+v vs %+v", second, first)
	}
	if ttl := store.ttls[BuildKey(commitA, javaQuery, 10)]; ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %v", ttl)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 1 {
		t.Errorf("cache misses = %v", got)
	}
}

func TestKeyDependsOnCommitQueryAndLimit(t *testing.T) {
	base := BuildKey(commitA, javaQuery, 10)
	for name, other := range map[string]string{
		"commit": BuildKey(commitB, javaQuery, 10),
		"query":  BuildKey(commitA, query.Term("description", "lucene"), 10),
		"limit":  BuildKey(commitA, javaQuery, 5),
		"empty":  BuildKey("", javaQuery, 10),
	} {
		if other == base {
			t.Errorf("key must change with %s", name)
		}
	}
	if BuildKey(commitA, query.Term("description", "java"), 10) != base {
		t.Error("equal queries must share a key")
	}
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), commitA, javaQuery, 10, func() (*searcher.TopDocs, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := c.Get(context.Background(), commitA, javaQuery, 10); ok {
		t.Error("failed computation must not be cached")
	}
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*searcher.TopDocs, error) {
		calls.Add(1)
		<-release
		return sampleResult(), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), commitA, javaQuery, 10, compute); err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Errorf("unexpected compute count %d", n)
	}
	hits, misses := c.Stats()
	if hits+misses < 8 {
		t.Errorf("expected every call to be counted, got %d hits %d misses", hits, misses)
	}
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, commitA, javaQuery, 10, sampleResult())
	c.Set(ctx, commitB, javaQuery, 10, sampleResult())
	store.Set(ctx, "unrelated", []byte("x"), 0)

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := c.Get(ctx, commitA, javaQuery, 10); ok {
		t.Error("entry survived invalidation")
	}
	if _, err := store.Get(ctx, "unrelated"); err != nil {
		t.Error("invalidation removed a foreign key")
	}
}

func buildIndex(t *testing.T, cfg indexer.Config, descriptions ...string) {
	t.Helper()
	w, err := indexer.OpenWriter(cfg)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()
	for _, d := range descriptions {
		if _, err := w.Add(schema.NewDocument().Add("description", schema.Text(d))); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestRebuiltIndexDoesNotReuseEntries(t *testing.T) {
	dir := t.TempDir()
	cfg := indexer.Config{
		Dir:      dir,
		Schema:   schema.MustNew(schema.FieldSpec{Name: "description", Tokenized: true, Indexed: true, Stored: true}),
		Analyzer: analyzer.NewStandard(),
	}
	c := New(newMemStore(), time.Minute, nil)
	ctx := context.Background()

	searchWith := func(s *searcher.Searcher) (*searcher.TopDocs, bool) {
		t.Helper()
		td, hit, err := c.GetOrCompute(ctx, s.CommitID(), javaQuery, 10, func() (*searcher.TopDocs, error) {
			return s.Search(ctx, javaQuery, 10)
		})
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
		return td, hit
	}

	buildIndex(t, cfg, "java one", "java two", "java three")
	first, err := searcher.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if td, _ := searchWith(first); td.TotalHits != 3 {
		t.Fatalf("expected 3 hits, got %d", td.TotalHits)
	}
	first.Close()

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	buildIndex(t, cfg, "rust only")
	second, err := searcher.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer second.Close()
	if second.Generation() != first.Generation() {
		t.Fatalf("expected the rebuilt index to restart at generation %d, got %d", first.Generation(), second.Generation())
	}
	td, hit := searchWith(second)
	if hit {
		t.Error("rebuilt index was served a cached result")
	}
	if td.TotalHits != 0 {
		t.Errorf("expected 0 hits, got %d", td.TotalHits)
	}
}
