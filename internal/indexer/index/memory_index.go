// Package index holds the mutable in-memory buffer a writer fills between
// commits, together with the term and posting types shared with on-disk
// segments.
package index

import (
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/numeric"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/RoaringBitmap/roaring/v2"
)

// MemoryIndex is the pending pre-segment. Documents get consecutive local IDs
// starting at zero. It implements Segment so pending documents can be matched
// by deletes before they are committed.
type MemoryIndex struct {
	mu       sync.RWMutex
	schema   *schema.Schema
	analyzer analyzer.Analyzer
	index    map[Term]map[uint32]uint32
	numeric  map[string]numeric.Column
	stored   [][]schema.Field
	size     int64
}

func NewMemoryIndex(s *schema.Schema, a analyzer.Analyzer) *MemoryIndex {
	return &MemoryIndex{
		schema:   s,
		analyzer: a,
		index:    make(map[Term]map[uint32]uint32),
		numeric:  make(map[string]numeric.Column),
	}
}

// AddDocument indexes a document that already passed schema validation and
// returns its local ID.
func (m *MemoryIndex) AddDocument(doc *schema.Document) uint32 {
	termData := make(map[Term]uint32)
	var numData []struct {
		field string
		key   uint64
	}
	var stored []schema.Field

	for _, f := range doc.Fields {
		spec, _ := m.schema.Field(f.Name)
		if spec.Stored {
			stored = append(stored, f)
		}
		if !spec.Indexed {
			continue
		}
		switch {
		case spec.Numeric:
			numData = append(numData, struct {
				field string
				key   uint64
			}{f.Name, numeric.Encode(f.Value.Number())})
		case spec.Tokenized:
			for tok := range m.analyzer.Analyze(f.Value.Text()) {
				termData[Term{Field: f.Name, Token: tok.Term}]++
			}
		default:
			termData[Term{Field: f.Name, Token: f.Value.Text()}]++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docID := uint32(len(m.stored))
	for term, freq := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[uint32]uint32)
		}
		m.index[term][docID] = freq
		m.size += int64(len(term.Field) + len(term.Token) + 16)
	}
	for _, n := range numData {
		m.numeric[n.field] = append(m.numeric[n.field], numeric.Entry{Key: n.key, DocID: docID})
		m.size += 12
	}
	for _, f := range stored {
		m.size += int64(len(f.Name) + len(f.Value.Text()) + 16)
	}
	m.stored = append(m.stored, stored)
	return docID
}

func (m *MemoryIndex) MaxDoc() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.stored))
}

func (m *MemoryIndex) Postings(t Term) (PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[t]
	if !exists {
		return nil, nil
	}
	result := make(PostingList, 0, len(docs))
	for docID, freq := range docs {
		result = append(result, Posting{DocID: docID, Frequency: freq})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result, nil
}

func (m *MemoryIndex) DocFreq(t Term) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index[t])
}

func (m *MemoryIndex) NumericRange(field string, b numeric.Bounds) (*roaring.Bitmap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numeric[field].Scan(b), nil
}

// Snapshot freezes the buffer into sorted segment data.
func (m *MemoryIndex) Snapshot() SegmentData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for docID, freq := range docs {
			postings = append(postings, Posting{DocID: docID, Frequency: freq})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term.Less(entries[j].Term)
	})
	cols := make(map[string]numeric.Column, len(m.numeric))
	for field, col := range m.numeric {
		sorted := slices.Clone(col)
		sorted.Sort()
		cols[field] = sorted
	}
	return SegmentData{
		MaxDoc:  uint32(len(m.stored)),
		Terms:   entries,
		Numeric: cols,
		Stored:  slices.Clone(m.stored),
	}
}

// Size is a rough estimate of the buffer's memory footprint in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[Term]map[uint32]uint32)
	m.numeric = make(map[string]numeric.Column)
	m.stored = nil
	m.size = 0
}
