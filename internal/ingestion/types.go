// Package ingestion moves records from a relational source into the index:
// it reads flat records, maps them onto schema documents, rebuilds the index
// in one commit and announces finished commits on Kafka.
package ingestion

import "time"

// Record is one source row keyed by column name. Values are whatever the
// driver produced: string, []byte, int64, float64, bool, time.Time or nil.
type Record map[string]any

// CommitEvent is the Kafka message payload published after a commit.
type CommitEvent struct {
	Index       string    `json:"index"`
	Generation  uint64    `json:"generation"`
	CommitID    string    `json:"commit_id"`
	Segments    int       `json:"segments"`
	NumDocs     uint64    `json:"num_docs"`
	MaxDoc      uint64    `json:"max_doc"`
	CommittedAt time.Time `json:"committed_at"`
}

// BuildReport summarises a full rebuild.
type BuildReport struct {
	Records    int           `json:"records"`
	Deleted    int           `json:"deleted"`
	Generation uint64        `json:"generation"`
	NumDocs    uint64        `json:"num_docs"`
	Duration   time.Duration `json:"duration"`
}
