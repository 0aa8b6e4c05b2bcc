package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

type response struct {
	Query      string `json:"query"`
	Generation uint64 `json:"generation"`
	TotalHits  int    `json:"total_hits"`
	Cached     bool   `json:"cached"`
	TookMs     int64  `json:"took_ms"`
	Hits       []hit  `json:"hits"`
}

type hit struct {
	DocID  uint64         `json:"doc_id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields,omitempty"`
}

// app holds what every query needs. The searcher is swapped on Reopen.
type app struct {
	cfg      *config.Config
	analyzer analyzer.Analyzer
	searcher *searcher.Searcher
	cache    *cache.QueryCache
	limit    int
	out      io.Writer
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	q := flag.String("q", "", "query expression; reads one query per line from stdin when empty")
	limit := flag.Int("limit", 0, "maximum hits per query (default search.defaultLimit)")
	invalidate := flag.Bool("invalidate-cache", false, "drop every cached search result before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *q, *limit, *invalidate)
	stop()
	if err != nil {
		slog.Error("searcher failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, q string, limit int, invalidate bool) error {
	s, err := schema.FromConfig(cfg.Index.Schema)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "index.schema")
	}
	a, err := analyzer.New(cfg.Index.Analyzer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "index.analyzer")
	}
	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	srch, err := searcher.Open(indexer.Config{Dir: cfg.Index.Dir, Schema: s, Analyzer: a}, searcher.WithMetrics(m))
	if err != nil {
		return err
	}
	ap := &app{cfg: cfg, analyzer: a, searcher: srch, limit: limit, out: os.Stdout}
	defer func() { ap.searcher.Close() }()

	if cfg.Redis.Addr != "" {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("search cache disabled", "error", err)
		} else {
			defer client.Close()
			ap.cache = cache.New(client, cfg.Redis.CacheTTL, m)
			defer func() {
				hits, misses := ap.cache.Stats()
				slog.Info("search cache stats", "hits", hits, "misses", misses)
			}()
		}
	}
	if invalidate {
		if ap.cache == nil {
			slog.Warn("-invalidate-cache ignored, no search cache configured")
		} else if err := ap.cache.Invalidate(ctx); err != nil {
			return err
		}
	}

	slog.Info("searcher ready",
		"dir", cfg.Index.Dir,
		"generation", srch.Generation(),
		"num_docs", srch.NumDocs(),
		"cache", ap.cache != nil,
	)

	if q != "" {
		return ap.query(ctx, q)
	}
	return ap.serve(ctx, os.Stdin)
}

// serve answers one query per non-blank line of in. Each query first picks up
// commits made since the previous one. Rejected and timed-out queries are
// logged and skipped; any other failure stops the loop.
func (ap *app) serve(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := ap.refresh(); err != nil {
			slog.Warn("reopen failed, serving previous snapshot", "error", err)
		}
		if err := ap.query(ctx, line); err != nil {
			if !errors.Is(err, apperrors.ErrTimeout) && apperrors.ExitCode(err) != 2 {
				return err
			}
			slog.Warn("query rejected", "query", line, "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

// refresh picks up commits made since the current snapshot was opened.
func (ap *app) refresh() error {
	next, changed, err := ap.searcher.Reopen()
	if err != nil || !changed {
		return err
	}
	old := ap.searcher
	ap.searcher = next
	slog.Info("searcher reopened", "generation", next.Generation(), "num_docs", next.NumDocs())
	return old.Close()
}

func (ap *app) query(ctx context.Context, text string) error {
	start := time.Now()
	ctx, root := tracing.Start(ctx, "search")
	defer func() {
		root.End()
		root.Log(slog.Default())
	}()

	_, span := tracing.Start(ctx, "parse")
	q, err := parser.Parse(text, ap.cfg.Index.DefaultFields, ap.searcher.Schema(), ap.analyzer)
	span.End()
	if err != nil {
		return err
	}
	root.SetAttr("query", q.String())
	var (
		td     *searcher.TopDocs
		cached bool
	)
	ectx, span := tracing.Start(ctx, "execute")
	err = resilience.WithTimeout(ectx, ap.cfg.Search.Timeout, "search", func(ctx context.Context) error {
		search := func() (*searcher.TopDocs, error) {
			return ap.searcher.Search(ctx, q, ap.limit)
		}
		var err error
		if ap.cache != nil {
			td, cached, err = ap.cache.GetOrCompute(ctx, ap.searcher.CommitID(), q, ap.limit, search)
		} else {
			td, err = search()
		}
		return err
	})
	span.End()
	if err != nil {
		return err
	}
	span.SetAttr("total_hits", td.TotalHits)
	span.SetAttr("cached", cached)

	_, span = tracing.Start(ctx, "fetch-docs")
	defer span.End()
	resp := response{
		Query:      q.String(),
		Generation: ap.searcher.Generation(),
		TotalHits:  td.TotalHits,
		Cached:     cached,
		TookMs:     time.Since(start).Milliseconds(),
		Hits:       make([]hit, 0, len(td.Hits)),
	}
	for _, h := range td.Hits {
		out := hit{DocID: h.DocID, Score: h.Score}
		doc, err := ap.searcher.Document(h.DocID)
		if err != nil {
			return fmt.Errorf("loading doc %d: %w", h.DocID, err)
		}
		out.Fields = fieldMap(doc)
		resp.Hits = append(resp.Hits, out)
	}
	return json.NewEncoder(ap.out).Encode(resp)
}

func fieldMap(doc *schema.Document) map[string]any {
	if len(doc.Fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(doc.Fields))
	for _, f := range doc.Fields {
		if f.Value.IsNumeric() {
			m[f.Name] = f.Value.Number()
		} else {
			m[f.Name] = f.Value.Text()
		}
	}
	return m
}
