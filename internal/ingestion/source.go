package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/postgres"
)

// Source yields every record to index. Iteration stops at the first error,
// which is yielded with a nil record.
type Source interface {
	FetchAll(ctx context.Context) iter.Seq2[Record, error]
}

// SliceSource serves records held in memory.
type SliceSource []Record

func (s SliceSource) FetchAll(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, rec := range s {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

var errStopped = errors.New("iteration stopped")

// PostgresSource runs a SELECT in a read-only transaction. Rows and the
// transaction are released on every exit path, including an early break by
// the consumer.
type PostgresSource struct {
	client *postgres.Client
	query  string
}

func NewPostgresSource(client *postgres.Client, query string) *PostgresSource {
	return &PostgresSource{client: client, query: query}
}

func (p *PostgresSource) FetchAll(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		err := p.client.InTx(ctx, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, p.query)
			if err != nil {
				return fmt.Errorf("querying source: %w", err)
			}
			defer rows.Close()
			return scanRows(rows, yield)
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// rowScanner is the part of *sql.Rows scanRows needs.
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRows(rows rowScanner, yield func(Record, error) bool) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns: %w", err)
	}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = values[i]
		}
		if !yield(rec, nil) {
			return errStopped
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}
