package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

type flags struct {
	configPath string
	build      bool
	deleteAll  bool
	deleteQ    string
	updateTerm string
	doc        string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "configs/development.yaml", "path to config file")
	flag.BoolVar(&f.build, "build", false, "rebuild the index from the postgres source")
	flag.BoolVar(&f.deleteAll, "delete-all", false, "delete every document")
	flag.StringVar(&f.deleteQ, "delete", "", "delete documents matching a query expression; bare words match index.idField")
	flag.StringVar(&f.updateTerm, "update-term", "", "replace documents matching field:value, or a bare index.idField value, with -doc")
	flag.StringVar(&f.doc, "doc", "", "JSON object to add, or to use with -update-term")
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, f)
	stop()
	if err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	s, err := schema.FromConfig(cfg.Index.Schema)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "index.schema")
	}
	a, err := analyzer.New(cfg.Index.Analyzer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "index.analyzer")
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

	opts := []indexer.Option{indexer.WithMetrics(m)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithCommitHook(ingestion.NewNotifier(filepath.Base(cfg.Index.Dir), producer).Hook()))
	}

	icfg := indexer.Config{Dir: cfg.Index.Dir, Schema: s, Analyzer: a}
	w, err := indexer.OpenWriter(icfg, opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	retry := resilience.RetryConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
	mapper := ingestion.NewMapper(s)

	if f.build {
		return rebuild(ctx, cfg, w, mapper, retry)
	}

	if f.deleteAll {
		n, err := w.DeleteAll()
		if err != nil {
			return err
		}
		slog.Info("deleted all documents", "count", n)
	}
	if f.deleteQ != "" {
		q, err := parser.Parse(f.deleteQ, deleteFields(cfg.Index), s, a)
		if err != nil {
			return err
		}
		n, err := w.DeleteByQuery(ctx, q)
		if err != nil {
			return err
		}
		slog.Info("deleted documents", "query", q.String(), "count", n)
	}
	if f.doc != "" {
		doc, err := parseDoc(f.doc, mapper)
		if err != nil {
			return err
		}
		var id uint64
		if f.updateTerm != "" {
			term, err := parseTerm(f.updateTerm, cfg.Index.IDField)
			if err != nil {
				return err
			}
			id, err = w.UpdateByTerm(ctx, term, doc)
			if err != nil {
				return err
			}
		} else {
			id, err = w.Add(doc)
			if err != nil {
				return err
			}
		}
		slog.Info("document buffered", "doc_id", id)
	} else if f.updateTerm != "" {
		return apperrors.New(apperrors.ErrInvalidInput, "-update-term requires -doc")
	}

	slog.Info("committing", "pending_docs", w.PendingDocs())
	return resilience.Retry(ctx, "index-commit", commitRetry(retry), func() error {
		info, err := w.Commit()
		if err == nil {
			printJSON(info)
		}
		return err
	})
}

func rebuild(ctx context.Context, cfg *config.Config, w *indexer.Writer, mapper *ingestion.Mapper, retry resilience.RetryConfig) error {
	var client *postgres.Client
	err := resilience.Retry(ctx, "postgres-connect", retry, func() error {
		var err error
		client, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		return fmt.Errorf("connecting to source: %w", err)
	}
	defer client.Close()

	src := ingestion.NewPostgresSource(client, cfg.Source.Query)
	report, err := ingestion.NewBuilder(w, mapper, ingestion.WithCommitRetry(retry)).Rebuild(ctx, src)
	if err != nil {
		return err
	}
	printJSON(report)
	return nil
}

func commitRetry(cfg resilience.RetryConfig) resilience.RetryConfig {
	cfg.Retryable = func(err error) bool {
		return errors.Is(err, apperrors.ErrCommitFailure)
	}
	return cfg
}

func parseDoc(raw string, mapper *ingestion.Mapper) (*schema.Document, error) {
	var rec ingestion.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "-doc must be a JSON object")
	}
	return mapper.Map(rec)
}

// parseTerm reads field:value. A bare value is matched against idField.
func parseTerm(raw, idField string) (query.TermQuery, error) {
	field, value, ok := strings.Cut(raw, ":")
	if !ok {
		field, value = idField, raw
	}
	if field == "" || value == "" {
		return query.TermQuery{}, apperrors.Newf(apperrors.ErrInvalidInput, "-update-term %q is not field:value", raw)
	}
	return query.Term(field, value), nil
}

// deleteFields are the fields bare words of a -delete expression search. The
// ID field keeps a stray word from deleting by full-text match.
func deleteFields(cfg config.IndexConfig) []string {
	if cfg.IDField != "" {
		return []string{cfg.IDField}
	}
	return cfg.DefaultFields
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
