package index

import (
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/numeric"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/RoaringBitmap/roaring/v2"
)

// Term is the (field, token) key of a posting list.
type Term struct {
	Field string `json:"f"`
	Token string `json:"t"`
}

func (t Term) String() string { return t.Field + ":" + t.Token }

// Less orders terms by field, then token.
func (t Term) Less(o Term) bool {
	if t.Field != o.Field {
		return t.Field < o.Field
	}
	return t.Token < o.Token
}

// Posting records that a segment-local document contains a term Frequency
// times.
type Posting struct {
	DocID     uint32 `json:"d"`
	Frequency uint32 `json:"f"`
}

type PostingList []Posting

type TermEntry struct {
	Term     Term
	Postings PostingList
}

// SegmentData is a frozen copy of a pending buffer, ready to be written as a
// segment. Stored[i] holds the stored fields of local doc i.
type SegmentData struct {
	MaxDoc  uint32
	Terms   []TermEntry
	Numeric map[string]numeric.Column
	Stored  [][]schema.Field
}

// Segment is the read interface shared by committed segments and the
// writer's pending buffer. Doc IDs are segment-local.
type Segment interface {
	MaxDoc() uint32
	Postings(t Term) (PostingList, error)
	DocFreq(t Term) int
	NumericRange(field string, b numeric.Bounds) (*roaring.Bitmap, error)
}
