package index

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/numeric"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
)

func newTestIndex() *MemoryIndex {
	s := schema.MustNew(
		schema.FieldSpec{Name: "id", Indexed: true, Stored: true},
		schema.FieldSpec{Name: "title", Tokenized: true, Indexed: true, Stored: true},
		schema.FieldSpec{Name: "price", Numeric: true, Indexed: true, Stored: true},
		schema.FieldSpec{Name: "pic", Stored: true},
	)
	return NewMemoryIndex(s, analyzer.NewStandard())
}

func TestAddDocumentAssignsSequentialIDs(t *testing.T) {
	idx := newTestIndex()
	for want := uint32(0); want < 3; want++ {
		got := idx.AddDocument(schema.NewDocument().Add("title", schema.Text("hello")))
		if got != want {
			t.Errorf("expected doc %d, got %d", want, got)
		}
	}
	if idx.MaxDoc() != 3 || idx.DocCount() != 3 {
		t.Errorf("expected 3 docs, got %d", idx.MaxDoc())
	}
}

func TestPostingsAndFrequency(t *testing.T) {
	idx := newTestIndex()
	idx.AddDocument(schema.NewDocument().Add("title", schema.Text("Go go GO concurrency")))
	idx.AddDocument(schema.NewDocument().Add("title", schema.Text("rust safety")))
	idx.AddDocument(schema.NewDocument().Add("title", schema.Text("go generics")))

	postings, err := idx.Postings(Term{Field: "title", Token: "go"})
	if err != nil {
		t.Fatalf("Postings: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}
	if postings[0].DocID != 0 || postings[0].Frequency != 3 {
		t.Errorf("unexpected first posting %+v", postings[0])
	}
	if postings[1].DocID != 2 || postings[1].Frequency != 1 {
		t.Errorf("unexpected second posting %+v", postings[1])
	}
	if df := idx.DocFreq(Term{Field: "title", Token: "rust"}); df != 1 {
		t.Errorf("expected df 1, got %d", df)
	}
}

func TestUntokenizedFieldIsSingleTerm(t *testing.T) {
	idx := newTestIndex()
	idx.AddDocument(schema.NewDocument().Add("id", schema.Text("ISBN 978-1")))

	if df := idx.DocFreq(Term{Field: "id", Token: "ISBN 978-1"}); df != 1 {
		t.Errorf("expected exact term to be indexed, df=%d", df)
	}
	if df := idx.DocFreq(Term{Field: "id", Token: "isbn"}); df != 0 {
		t.Errorf("untokenized field must not be analyzed, df=%d", df)
	}
}

func TestStoredOnlyFieldNotIndexed(t *testing.T) {
	idx := newTestIndex()
	idx.AddDocument(schema.NewDocument().
		Add("title", schema.Text("cover")).
		Add("pic", schema.Text("cover.png")))

	if df := idx.DocFreq(Term{Field: "pic", Token: "cover.png"}); df != 0 {
		t.Errorf("stored-only field must not be searchable")
	}
	snap := idx.Snapshot()
	if len(snap.Stored) != 1 || len(snap.Stored[0]) != 2 {
		t.Fatalf("expected 2 stored fields, got %v", snap.Stored)
	}
}

func TestNumericRangeOnPending(t *testing.T) {
	idx := newTestIndex()
	for _, p := range []float64{70, 40, 50, 80} {
		idx.AddDocument(schema.NewDocument().Add("price", schema.Number(p)))
	}
	bm, err := idx.NumericRange("price", numeric.Bounds{Min: 50, Max: 70, IncludeMin: true, IncludeMax: true})
	if err != nil {
		t.Fatalf("NumericRange: %v", err)
	}
	if got := bm.ToArray(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("expected [0 2], got %v", got)
	}
}

func TestSnapshotIsSorted(t *testing.T) {
	idx := newTestIndex()
	idx.AddDocument(schema.NewDocument().Add("title", schema.Text("zebra apple")).Add("price", schema.Number(9)))
	idx.AddDocument(schema.NewDocument().Add("id", schema.Text("a")).Add("price", schema.Number(1)))

	snap := idx.Snapshot()
	if snap.MaxDoc != 2 || len(snap.Stored) != 2 {
		t.Fatalf("unexpected snapshot size %d/%d", snap.MaxDoc, len(snap.Stored))
	}
	for i := 1; i < len(snap.Terms); i++ {
		if !snap.Terms[i-1].Term.Less(snap.Terms[i].Term) {
			t.Errorf("terms not sorted at %d: %v >= %v", i, snap.Terms[i-1].Term, snap.Terms[i].Term)
		}
	}
	col := snap.Numeric["price"]
	if len(col) != 2 || col[0].DocID != 1 {
		t.Errorf("numeric column not sorted by key: %+v", col)
	}
}

func TestReset(t *testing.T) {
	idx := newTestIndex()
	idx.AddDocument(schema.NewDocument().Add("title", schema.Text("hello")))
	if idx.Size() == 0 {
		t.Error("expected non-zero size")
	}
	idx.Reset()
	if idx.DocCount() != 0 || idx.Size() != 0 {
		t.Error("expected empty index after reset")
	}
	if df := idx.DocFreq(Term{Field: "title", Token: "hello"}); df != 0 {
		t.Error("expected no postings after reset")
	}
}
