package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/kafka"
)

// Publisher is the part of *kafka.Producer the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier announces finished commits. Events are keyed by index name so all
// commits of one index land on the same partition in order.
type Notifier struct {
	index     string
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

func NewNotifier(index string, p Publisher) *Notifier {
	return &Notifier{
		index:     index,
		publisher: p,
		timeout:   5 * time.Second,
		logger:    slog.Default().With("component", "commit-notifier", "index", index),
	}
}

func (n *Notifier) Notify(ctx context.Context, info indexer.CommitInfo) error {
	event := kafka.Event{
		Key: n.index,
		Value: CommitEvent{
			Index:       n.index,
			Generation:  info.Generation,
			CommitID:    info.ID,
			Segments:    info.Segments,
			NumDocs:     info.NumDocs,
			MaxDoc:      info.MaxDoc,
			CommittedAt: info.CommittedAt,
		},
	}
	return n.publisher.Publish(ctx, event)
}

// Hook adapts the notifier to indexer.WithCommitHook. Publish failures are
// logged; the commit itself has already succeeded.
func (n *Notifier) Hook() func(indexer.CommitInfo) {
	return func(info indexer.CommitInfo) {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.Notify(ctx, info); err != nil {
			n.logger.Error("commit notification failed",
				"generation", info.Generation,
				"error", err,
			)
		}
	}
}
